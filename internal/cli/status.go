package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show server health and engine configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Get(cmd.Context(), "/api/v1/health")
			if err != nil {
				return fmt.Errorf("get health: %w", err)
			}

			var h struct {
				Status    string `json:"status"`
				Version   string `json:"version"`
				Uptime    string `json:"uptime"`
				Scheduler string `json:"scheduler"`
				Store     string `json:"store"`
				Config    string `json:"config"`
				Timezone  string `json:"timezone"`
			}
			if err := resp.decode(&h); err != nil {
				return err
			}

			printf(cmd, "Server:    %s (%s)\n", h.Status, h.Version)
			printf(cmd, "  Uptime:    %s\n", h.Uptime)
			printf(cmd, "  Scheduler: %s\n", h.Scheduler)
			printf(cmd, "  Store:     %s\n", h.Store)
			printf(cmd, "  Config:    %s\n", h.Config)
			printf(cmd, "  Timezone:  %s\n", h.Timezone)
			return nil
		},
	}
}
