package cli

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/me/postpilot/pkg/model"
)

func newSchedulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "schedules",
		Aliases: []string{"sched"},
		Short:   "Inspect and manage schedule entries",
	}
	cmd.AddCommand(
		newScheduleListCmd(),
		newScheduleGetCmd(),
		newScheduleCreateCmd(),
		newCancelCmd(),
		newPostedCmd(),
	)
	return cmd
}

func newScheduleListCmd() *cobra.Command {
	var (
		status, from, to string
		limit, offset    int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List schedule entries, newest date first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			for k, v := range map[string]string{"status": status, "from": from, "to": to} {
				if v != "" {
					q.Set(k, v)
				}
			}
			if limit > 0 {
				q.Set("limit", strconv.Itoa(limit))
			}
			if offset > 0 {
				q.Set("offset", strconv.Itoa(offset))
			}
			path := "/api/v1/schedules/"
			if len(q) > 0 {
				path += "?" + q.Encode()
			}

			resp, err := client.Get(cmd.Context(), path)
			if err != nil {
				return fmt.Errorf("list schedules: %w", err)
			}
			var data []model.ScheduleEntry
			if err := resp.decode(&data); err != nil {
				return err
			}

			if len(data) == 0 {
				printf(cmd, "No schedule entries found.\n")
				return nil
			}

			printf(cmd, "%-10s  %-10s  %-16s  %-16s  %-12s  %s\n", "DATE", "STATUS", "SLOT", "TEMPLATE", "LABEL", "ID")
			printf(cmd, "%-10s  %-10s  %-16s  %-16s  %-12s  %s\n", "----", "------", "----", "--------", "-----", "--")
			for _, e := range data {
				printf(cmd, "%-10s  %-10s  %-16s  %-16s  %-12s  %s\n",
					e.ScheduleDate, e.Status, e.SlotID, e.TemplateID, e.Label, e.ID)
			}

			if resp.Pagination != nil && resp.Pagination.HasMore {
				printf(cmd, "\n(%d of %d shown)\n", len(data), resp.Pagination.Total)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&status, "status", "", "Filter by status (PENDING, GENERATED, POSTED, FAILED, CANCELLED)")
	f.StringVar(&from, "from", "", "First date (YYYY-MM-DD)")
	f.StringVar(&to, "to", "", "Last date (YYYY-MM-DD)")
	f.IntVar(&limit, "limit", 0, "Page size (max 100)")
	f.IntVar(&offset, "offset", 0, "Page offset")
	return cmd
}

func newScheduleGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <entry_id>",
		Short: "Show one schedule entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Get(cmd.Context(), "/api/v1/schedules/"+args[0])
			if err != nil {
				return fmt.Errorf("get schedule: %w", err)
			}
			var e model.ScheduleEntry
			if err := resp.decode(&e); err != nil {
				return err
			}
			printEntry(cmd, &e)
			return nil
		},
	}
}

func newScheduleCreateCmd() *cobra.Command {
	var date, slot, template, at, note string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Schedule a specific template in a slot on a date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{
				"date":         date,
				"time_slot_id": slot,
				"template_id":  template,
			}
			if at != "" {
				body["scheduled_time"] = at
			}
			if note != "" {
				body["note"] = note
			}
			resp, err := client.Post(cmd.Context(), "/api/v1/schedules/", body)
			if err != nil {
				return fmt.Errorf("create schedule: %w", err)
			}
			var e model.ScheduleEntry
			if err := resp.decode(&e); err != nil {
				return err
			}
			printEntry(cmd, &e)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&date, "date", "", "Date (YYYY-MM-DD)")
	f.StringVar(&slot, "slot", "", "Time slot ID")
	f.StringVar(&template, "template", "", "Template ID")
	f.StringVar(&at, "at", "", "Exact RFC 3339 time inside the slot window (random when omitted)")
	f.StringVar(&note, "note", "", "Free-text rationale")
	cmd.MarkFlagRequired("date")
	cmd.MarkFlagRequired("slot")
	cmd.MarkFlagRequired("template")
	return cmd
}
