package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/me/postpilot/pkg/model"
)

const performanceColumns = `id, post_id, schedule_id, template_id, slot_id, posted_at, posted_hour, posted_minute,
	posted_weekday, views, likes, replies, reposts, quotes, shares, engagement_rate, ucb_score, label, rationale,
	created_at, updated_at`

func performanceArgs(r *model.PerformanceRecord) []any {
	return []any{
		r.ID, r.PostID, r.ScheduleID, r.TemplateID, r.SlotID, formatTime(r.PostedAt),
		r.PostedHour, r.PostedMinute, int(r.PostedWeekday),
		r.Metrics.Views, r.Metrics.Likes, r.Metrics.Replies, r.Metrics.Reposts, r.Metrics.Quotes, r.Metrics.Shares,
		r.EngagementRate, r.UCBScore, string(r.Label), r.Rationale,
		formatTime(r.CreatedAt), formatTime(r.UpdatedAt),
	}
}

func scanPerformanceRecord(row rowScanner) (*model.PerformanceRecord, error) {
	var r model.PerformanceRecord
	var postedAt, label, createdAt, updatedAt string
	var weekday int
	if err := row.Scan(&r.ID, &r.PostID, &r.ScheduleID, &r.TemplateID, &r.SlotID, &postedAt,
		&r.PostedHour, &r.PostedMinute, &weekday,
		&r.Metrics.Views, &r.Metrics.Likes, &r.Metrics.Replies, &r.Metrics.Reposts, &r.Metrics.Quotes, &r.Metrics.Shares,
		&r.EngagementRate, &r.UCBScore, &label, &r.Rationale, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	r.PostedAt = parseTime(postedAt)
	r.PostedWeekday = time.Weekday(weekday)
	r.Label = model.SelectionLabel(label)
	r.CreatedAt = parseTime(createdAt)
	r.UpdatedAt = parseTime(updatedAt)
	return &r, nil
}

func (s *SQLiteStore) GetPerformanceRecordByPost(ctx context.Context, postID string) (*model.PerformanceRecord, error) {
	s.logger.Debug("sql", "op", "select", "table", "performance_records", "post_id", postID)

	r, err := scanPerformanceRecord(s.db.QueryRowContext(ctx,
		`SELECT `+performanceColumns+` FROM performance_records WHERE post_id = ?`, postID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

// ListPerformanceRecords returns records for one template, or all records
// when templateID is empty, most recent post first.
func (s *SQLiteStore) ListPerformanceRecords(ctx context.Context, templateID string) ([]*model.PerformanceRecord, error) {
	s.logger.Debug("sql", "op", "list", "table", "performance_records", "template_id", templateID)

	query := `SELECT ` + performanceColumns + ` FROM performance_records`
	var args []any
	if templateID != "" {
		query += ` WHERE template_id = ?`
		args = append(args, templateID)
	}
	query += ` ORDER BY posted_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.PerformanceRecord
	for rows.Next() {
		r, err := scanPerformanceRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ApplyFeedback overwrites the metrics of the record for postID and
// recomputes its template's aggregate in the same transaction. If any step
// fails nothing is written, so the previous aggregate stays in place.
func (s *SQLiteStore) ApplyFeedback(ctx context.Context, postID string, m model.Metrics, at time.Time) (*model.PerformanceRecord, error) {
	s.logger.Debug("sql", "op", "apply_feedback", "table", "performance_records", "post_id", postID)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var recordID, templateID string
	err = tx.QueryRowContext(ctx,
		`SELECT id, template_id FROM performance_records WHERE post_id = ?`, postID,
	).Scan(&recordID, &templateID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", model.ErrUnknownPost, postID)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup record: %w", err)
	}

	rate := m.EngagementRate()
	_, err = tx.ExecContext(ctx,
		`UPDATE performance_records
		 SET views = ?, likes = ?, replies = ?, reposts = ?, quotes = ?, shares = ?,
		     engagement_rate = ?, updated_at = ?
		 WHERE id = ?`,
		m.Views, m.Likes, m.Replies, m.Reposts, m.Quotes, m.Shares, rate, formatTime(at), recordID,
	)
	if err != nil {
		return nil, fmt.Errorf("update metrics: %w", err)
	}

	if err := recomputeTemplateStats(ctx, tx, templateID, at); err != nil {
		return nil, err
	}

	rec, err := scanPerformanceRecord(tx.QueryRowContext(ctx,
		`SELECT `+performanceColumns+` FROM performance_records WHERE id = ?`, recordID))
	if err != nil {
		return nil, fmt.Errorf("reload record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return rec, nil
}

// RecomputeTemplateStats rebuilds one template's aggregate from its records.
func (s *SQLiteStore) RecomputeTemplateStats(ctx context.Context, templateID string) error {
	s.logger.Debug("sql", "op", "recompute", "table", "templates", "id", templateID)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := recomputeTemplateStats(ctx, tx, templateID, time.Now()); err != nil {
		return err
	}
	return tx.Commit()
}

// recomputeTemplateStats aggregates over records with at least one view.
func recomputeTemplateStats(ctx context.Context, tx *sql.Tx, templateID string, at time.Time) error {
	var stats model.TemplateStats
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(views), 0),
		        COALESCE(SUM(likes + replies + reposts + quotes + shares), 0),
		        COALESCE(AVG(engagement_rate), 0)
		 FROM performance_records
		 WHERE template_id = ? AND views > 0`, templateID,
	).Scan(&stats.TotalUses, &stats.TotalViews, &stats.TotalEngagement, &stats.AvgEngagementRate)
	if err != nil {
		return fmt.Errorf("aggregate template %s: %w", templateID, err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE templates
		 SET total_uses = ?, total_views = ?, total_engagement = ?, avg_engagement_rate = ?, updated_at = ?
		 WHERE id = ?`,
		stats.TotalUses, stats.TotalViews, stats.TotalEngagement, stats.AvgEngagementRate, formatTime(at), templateID,
	)
	if err != nil {
		return fmt.Errorf("update template %s stats: %w", templateID, err)
	}
	return nil
}

// TotalTrials counts performance records that have received at least one view.
func (s *SQLiteStore) TotalTrials(ctx context.Context) (int, error) {
	s.logger.Debug("sql", "op", "count", "table", "performance_records")

	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM performance_records WHERE views > 0`).Scan(&n)
	return n, err
}
