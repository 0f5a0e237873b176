package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/me/postpilot/internal/feedback"
	"github.com/me/postpilot/pkg/model"
)

func newFeedbackCmd() *cobra.Command {
	var (
		m    model.Metrics
		file string
	)
	cmd := &cobra.Command{
		Use:   "feedback [post_id]",
		Short: "Report engagement metrics for a post, or a batch with --file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if file != "" {
				if len(args) > 0 {
					return errors.New("post_id and --file are mutually exclusive")
				}
				return ingestFile(cmd, file)
			}
			if len(args) == 0 {
				return errors.New("post_id or --file is required")
			}

			resp, err := client.Post(cmd.Context(), "/api/v1/feedback", map[string]any{
				"post_id": args[0],
				"metrics": m,
			})
			if err != nil {
				return fmt.Errorf("feedback: %w", err)
			}
			var data struct {
				Status string                   `json:"status"`
				Record *model.PerformanceRecord `json:"record"`
			}
			if err := resp.decode(&data); err != nil {
				return err
			}
			if data.Record == nil {
				printf(cmd, "%s: %s\n", args[0], data.Status)
				return nil
			}
			printf(cmd, "%s: %s (template %s, engagement %.2f%%)\n",
				args[0], data.Status, data.Record.TemplateID, data.Record.EngagementRate)
			return nil
		},
	}
	f := cmd.Flags()
	f.Int64Var(&m.Views, "views", 0, "Views")
	f.Int64Var(&m.Likes, "likes", 0, "Likes")
	f.Int64Var(&m.Replies, "replies", 0, "Replies")
	f.Int64Var(&m.Reposts, "reposts", 0, "Reposts")
	f.Int64Var(&m.Quotes, "quotes", 0, "Quotes")
	f.Int64Var(&m.Shares, "shares", 0, "Shares")
	f.StringVar(&file, "file", "", "JSON file with an array of {post_id, metrics} items")
	return cmd
}

func ingestFile(cmd *cobra.Command, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var items []feedback.Item
	if err := json.Unmarshal(raw, &items); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	resp, err := client.Post(cmd.Context(), "/api/v1/feedback", map[string]any{"items": items})
	if err != nil {
		return fmt.Errorf("feedback batch: %w", err)
	}
	var r feedback.BatchReport
	if err := resp.decode(&r); err != nil {
		return err
	}
	printf(cmd, "Applied: %d  Unknown: %d  Invalid: %d  Errors: %d\n", r.Applied, r.Unknown, r.Invalid, r.Errors)
	for _, res := range r.Results {
		if res.Error != "" {
			printf(cmd, "  %s: %s (%s)\n", res.PostID, res.Status, res.Error)
		}
	}
	return nil
}
