package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/me/postpilot/pkg/model"
)

func newTemplatesCmd() *cobra.Command {
	var byEngagement bool
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "List templates with their aggregate performance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/v1/templates/"
			if byEngagement {
				path += "?sort=engagement"
			}
			resp, err := client.Get(cmd.Context(), path)
			if err != nil {
				return fmt.Errorf("list templates: %w", err)
			}
			var data []model.Template
			if err := resp.decode(&data); err != nil {
				return err
			}
			if len(data) == 0 {
				printf(cmd, "No templates found.\n")
				return nil
			}

			printf(cmd, "%-20s  %-8s  %6s  %10s  %s\n", "ID", "ENABLED", "USES", "VIEWS", "AVG ENGAGEMENT")
			for _, t := range data {
				printf(cmd, "%-20s  %-8t  %6d  %10d  %.2f%%\n",
					t.ID, t.Enabled, t.Stats.TotalUses, t.Stats.TotalViews, t.Stats.AvgEngagementRate)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&byEngagement, "leaderboard", false, "Sort by average engagement rate")
	cmd.AddCommand(newTemplatePerformanceCmd())
	return cmd
}

func newTemplatePerformanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "performance <template_id>",
		Short: "List the performance records of a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Get(cmd.Context(), "/api/v1/templates/"+args[0]+"/performance")
			if err != nil {
				return fmt.Errorf("template performance: %w", err)
			}
			var data struct {
				Template model.Template            `json:"template"`
				Records  []model.PerformanceRecord `json:"records"`
			}
			if err := resp.decode(&data); err != nil {
				return err
			}

			s := data.Template.Stats
			printf(cmd, "Template: %s (%d uses, %.2f%% avg engagement)\n", data.Template.ID, s.TotalUses, s.AvgEngagementRate)
			for _, r := range data.Records {
				printf(cmd, "  %s  %-24s  %-12s  views=%d  engagement=%.2f%%\n",
					r.PostedAt.Format("2006-01-02 15:04"), r.PostID, r.SlotID, r.Metrics.Views, r.EngagementRate)
			}
			return nil
		},
	}
}

func newSlotsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "slots",
		Short: "List time slots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Get(cmd.Context(), "/api/v1/slots")
			if err != nil {
				return fmt.Errorf("list slots: %w", err)
			}
			var data []model.TimeSlot
			if err := resp.decode(&data); err != nil {
				return err
			}
			if len(data) == 0 {
				printf(cmd, "No time slots found.\n")
				return nil
			}

			printf(cmd, "%-16s  %-11s  %-8s  %-8s  %-28s  %s\n", "ID", "WINDOW", "PRIORITY", "ENABLED", "DAYS", "TEMPLATES")
			for _, s := range data {
				printf(cmd, "%-16s  %s-%s  %-8d  %-8t  %-28s  %s\n",
					s.ID, s.Start, s.End, s.Priority, s.Enabled,
					strings.Join(s.Weekdays.Names(), ","), strings.Join(s.AllowedTemplates.Sorted(), ","))
			}
			return nil
		},
	}
}
