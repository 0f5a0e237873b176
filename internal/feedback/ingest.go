// Package feedback folds analytics metrics into performance records and
// template aggregates.
package feedback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/me/postpilot/internal/metrics"
	"github.com/me/postpilot/pkg/model"
)

// Store is the subset of the persistence layer the ingester needs.
type Store interface {
	ApplyFeedback(ctx context.Context, postID string, m model.Metrics, at time.Time) (*model.PerformanceRecord, error)
}

// Item is one post's metrics in a batch.
type Item struct {
	PostID  string        `json:"post_id"`
	Metrics model.Metrics `json:"metrics"`
}

// Result is the outcome of ingesting one item.
type Result struct {
	PostID         string  `json:"post_id"`
	Status         string  `json:"status"` // applied, unknown_post, invalid, error
	EngagementRate float64 `json:"engagement_rate,omitempty"`
	Error          string  `json:"error,omitempty"`
}

// BatchReport summarizes IngestBatch.
type BatchReport struct {
	Applied int      `json:"applied"`
	Unknown int      `json:"unknown"`
	Invalid int      `json:"invalid"`
	Errors  int      `json:"errors"`
	Results []Result `json:"results"`
}

// Ingester applies feedback. Re-ingesting identical metrics leaves the
// aggregates unchanged because they are rebuilt from the stored records.
type Ingester struct {
	store   Store
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewIngester creates an Ingester. m may be nil.
func NewIngester(st Store, m *metrics.Metrics, logger *slog.Logger) *Ingester {
	return &Ingester{
		store:   st,
		metrics: m,
		logger:  logger.With("component", "feedback"),
		now:     time.Now,
	}
}

// Ingest applies metrics to the record for postID. Feedback for a post that
// was never scheduled is logged and ignored: the returned record is nil and
// the error is nil.
func (in *Ingester) Ingest(ctx context.Context, postID string, m model.Metrics) (*model.PerformanceRecord, error) {
	res, rec := in.ingest(ctx, Item{PostID: postID, Metrics: m})
	switch res.Status {
	case "applied", "unknown_post":
		return rec, nil
	case "invalid":
		return nil, model.NewValidationError(res.Error)
	}
	return nil, fmt.Errorf("ingest %s: %s", postID, res.Error)
}

// IngestBatch applies every item. A failing item is counted and never stops
// the rest of the batch.
func (in *Ingester) IngestBatch(ctx context.Context, items []Item) BatchReport {
	report := BatchReport{Results: make([]Result, 0, len(items))}
	for _, item := range items {
		res, _ := in.ingest(ctx, item)
		switch res.Status {
		case "applied":
			report.Applied++
		case "unknown_post":
			report.Unknown++
		case "invalid":
			report.Invalid++
		default:
			report.Errors++
		}
		report.Results = append(report.Results, res)
	}
	in.logger.Info("feedback batch ingested",
		"items", len(items),
		"applied", report.Applied,
		"unknown", report.Unknown,
		"invalid", report.Invalid,
		"errors", report.Errors,
	)
	return report
}

func (in *Ingester) ingest(ctx context.Context, item Item) (Result, *model.PerformanceRecord) {
	res := Result{PostID: item.PostID}
	if err := validate(item); err != nil {
		res.Status, res.Error = "invalid", err.Error()
		in.metrics.Feedback(res.Status)
		return res, nil
	}

	rec, err := in.store.ApplyFeedback(ctx, item.PostID, item.Metrics, in.now().UTC())
	switch {
	case errors.Is(err, model.ErrUnknownPost):
		in.logger.Warn("feedback for unknown post ignored", "post_id", item.PostID)
		res.Status = "unknown_post"
	case err != nil:
		in.logger.Error("apply feedback", "post_id", item.PostID, "error", err)
		res.Status, res.Error = "error", err.Error()
	default:
		in.logger.Debug("feedback applied", "post_id", item.PostID,
			"template_id", rec.TemplateID, "views", rec.Metrics.Views, "engagement_rate", rec.EngagementRate)
		res.Status = "applied"
		res.EngagementRate = rec.EngagementRate
	}
	in.metrics.Feedback(res.Status)
	return res, rec
}

func validate(item Item) error {
	if item.PostID == "" {
		return errors.New("post_id is required")
	}
	m := item.Metrics
	for name, v := range map[string]int64{
		"views": m.Views, "likes": m.Likes, "replies": m.Replies,
		"reposts": m.Reposts, "quotes": m.Quotes, "shares": m.Shares,
	} {
		if v < 0 {
			return fmt.Errorf("metric %s must not be negative", name)
		}
	}
	return nil
}
