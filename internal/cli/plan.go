package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/me/postpilot/internal/engine"
	"github.com/me/postpilot/pkg/model"
)

func newPlanCmd() *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Plan a date (today by default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{}
			if date != "" {
				body["date"] = date
			}
			resp, err := client.Post(cmd.Context(), "/api/v1/plan", body)
			if err != nil {
				return fmt.Errorf("plan: %w", err)
			}

			var data struct {
				Date    string               `json:"date"`
				Entry   *model.ScheduleEntry `json:"entry"`
				Skipped bool                 `json:"skipped"`
				Reason  string               `json:"reason"`
			}
			if err := resp.decode(&data); err != nil {
				return err
			}
			if data.Skipped {
				printf(cmd, "%s: skipped (%s)\n", data.Date, data.Reason)
				return nil
			}
			printEntry(cmd, data.Entry)
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Date to plan (YYYY-MM-DD)")
	return cmd
}

func newExecuteCmd() *cobra.Command {
	var now string
	cmd := &cobra.Command{
		Use:   "execute",
		Short: "Execute due entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{}
			if now != "" {
				t, err := time.Parse(time.RFC3339, now)
				if err != nil {
					return fmt.Errorf("--now: %w", err)
				}
				body["now"] = t
			}
			resp, err := client.Post(cmd.Context(), "/api/v1/execute", body)
			if err != nil {
				return fmt.Errorf("execute: %w", err)
			}

			var r engine.ExecuteReport
			if err := resp.decode(&r); err != nil {
				return err
			}
			printf(cmd, "Due: %d  Generated: %d  Resumed: %d  Failed: %d  Shifted: %d  Skipped: %d\n",
				r.Due, r.Generated, r.Resumed, r.Failed, r.Shifted, r.Skipped)
			return nil
		},
	}
	cmd.Flags().StringVar(&now, "now", "", "Evaluate due entries as of this RFC 3339 time")
	return cmd
}

func printEntry(cmd *cobra.Command, e *model.ScheduleEntry) {
	if e == nil {
		return
	}
	printf(cmd, "Entry: %s\n", e.ID)
	printf(cmd, "  Date:      %s\n", e.ScheduleDate)
	printf(cmd, "  Status:    %s\n", e.Status)
	printf(cmd, "  Slot:      %s\n", e.SlotID)
	printf(cmd, "  Template:  %s (%s, score %.3f)\n", e.TemplateID, e.Label, e.UCBScore)
	printf(cmd, "  At:        %s\n", e.ScheduledTime.Format(time.RFC3339))
	if e.Rationale != "" {
		printf(cmd, "  Rationale: %s\n", e.Rationale)
	}
	if e.PostID != "" {
		printf(cmd, "  Post:      %s\n", e.PostID)
	}
	if e.ErrorMessage != "" {
		printf(cmd, "  Error:     %s\n", e.ErrorMessage)
	}
}
