package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/me/postpilot/pkg/model"
)

func newCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <entry_id>",
		Short: "Cancel a PENDING or GENERATED entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return transition(cmd, args[0], "cancel")
		},
	}
}

func newPostedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "posted <entry_id>",
		Short: "Mark a GENERATED entry as published",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return transition(cmd, args[0], "posted")
		},
	}
}

func transition(cmd *cobra.Command, id, action string) error {
	resp, err := client.Put(cmd.Context(), "/api/v1/schedules/"+id+"/"+action, nil)
	if err != nil {
		return fmt.Errorf("%s %s: %w", action, id, err)
	}
	var e model.ScheduleEntry
	if err := resp.decode(&e); err != nil {
		return err
	}
	printf(cmd, "Entry %s: %s\n", e.ID, e.Status)
	return nil
}
