package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/me/postpilot/pkg/model"
)

const scheduleColumns = `id, schedule_date, slot_id, template_id, scheduled_time, status, post_id,
	ucb_score, label, rationale, executed_at, error_message, created_at, updated_at`

func scanScheduleEntry(row rowScanner) (*model.ScheduleEntry, error) {
	var e model.ScheduleEntry
	var scheduledTime, status, label, createdAt, updatedAt string
	var executedAt *string
	if err := row.Scan(&e.ID, &e.ScheduleDate, &e.SlotID, &e.TemplateID, &scheduledTime, &status, &e.PostID,
		&e.UCBScore, &label, &e.Rationale, &executedAt, &e.ErrorMessage, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	e.ScheduledTime = parseTime(scheduledTime)
	e.Status = model.ScheduleStatus(status)
	e.Label = model.SelectionLabel(label)
	e.ExecutedAt = parseTimePtr(executedAt)
	e.CreatedAt = parseTime(createdAt)
	e.UpdatedAt = parseTime(updatedAt)
	return &e, nil
}

// CreateScheduleEntry inserts a new entry. A second entry for the same
// schedule_date fails with model.ErrDuplicateSchedule.
func (s *SQLiteStore) CreateScheduleEntry(ctx context.Context, e *model.ScheduleEntry) error {
	s.logger.Debug("sql", "op", "insert", "table", "schedule_entries", "id", e.ID, "date", e.ScheduleDate)

	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
	if e.Status == "" {
		e.Status = model.ScheduleStatusPending
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO schedule_entries (`+scheduleColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ScheduleDate, e.SlotID, e.TemplateID, formatTime(e.ScheduledTime), string(e.Status), e.PostID,
		e.UCBScore, string(e.Label), e.Rationale, formatTimePtr(e.ExecutedAt), e.ErrorMessage,
		formatTime(e.CreatedAt), formatTime(e.UpdatedAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", model.ErrDuplicateSchedule, e.ScheduleDate)
	}
	return err
}

func (s *SQLiteStore) GetScheduleEntry(ctx context.Context, id string) (*model.ScheduleEntry, error) {
	s.logger.Debug("sql", "op", "select", "table", "schedule_entries", "id", id)
	return s.getScheduleEntry(ctx, `WHERE id = ?`, id)
}

func (s *SQLiteStore) GetScheduleEntryByDate(ctx context.Context, date string) (*model.ScheduleEntry, error) {
	s.logger.Debug("sql", "op", "select", "table", "schedule_entries", "date", date)
	return s.getScheduleEntry(ctx, `WHERE schedule_date = ?`, date)
}

func (s *SQLiteStore) getScheduleEntry(ctx context.Context, where string, arg any) (*model.ScheduleEntry, error) {
	e, err := scanScheduleEntry(s.db.QueryRowContext(ctx,
		`SELECT `+scheduleColumns+` FROM schedule_entries `+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return e, err
}

// ListScheduleEntries returns entries newest date first, with the total
// count matching the filters.
func (s *SQLiteStore) ListScheduleEntries(ctx context.Context, opts model.ListOptions) ([]*model.ScheduleEntry, int, error) {
	opts.Clamp()
	s.logger.Debug("sql", "op", "list", "table", "schedule_entries",
		"limit", opts.Limit, "offset", opts.Offset, "status", opts.Status)

	var conds []string
	var args []any
	if opts.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, opts.Status)
	}
	if opts.DateStart != "" {
		conds = append(conds, "schedule_date >= ?")
		args = append(args, opts.DateStart)
	}
	if opts.DateEnd != "" {
		conds = append(conds, "schedule_date <= ?")
		args = append(args, opts.DateEnd)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schedule_entries`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+scheduleColumns+` FROM schedule_entries`+where+
			` ORDER BY schedule_date DESC LIMIT ? OFFSET ?`,
		append(args, opts.Limit, opts.Offset)...,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*model.ScheduleEntry
	for rows.Next() {
		e, err := scanScheduleEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}

// ListDueEntries returns PENDING entries whose scheduled time is at or before now,
// oldest first.
func (s *SQLiteStore) ListDueEntries(ctx context.Context, now time.Time) ([]*model.ScheduleEntry, error) {
	s.logger.Debug("sql", "op", "list_due", "table", "schedule_entries")

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+scheduleColumns+` FROM schedule_entries
		 WHERE status = ? AND scheduled_time <= ?
		 ORDER BY scheduled_time ASC`,
		string(model.ScheduleStatusPending), formatTime(now),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.ScheduleEntry
	for rows.Next() {
		e, err := scanScheduleEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// UpdateScheduleEntry writes every mutable column of e, but only if the
// stored status still equals expected. It reports whether the row changed.
func (s *SQLiteStore) UpdateScheduleEntry(ctx context.Context, e *model.ScheduleEntry, expected model.ScheduleStatus) (bool, error) {
	s.logger.Debug("sql", "op", "update", "table", "schedule_entries",
		"id", e.ID, "expected", expected, "status", e.Status)

	e.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE schedule_entries SET
		   schedule_date = ?, slot_id = ?, template_id = ?, scheduled_time = ?, status = ?, post_id = ?,
		   ucb_score = ?, label = ?, rationale = ?, executed_at = ?, error_message = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		e.ScheduleDate, e.SlotID, e.TemplateID, formatTime(e.ScheduledTime), string(e.Status), e.PostID,
		e.UCBScore, string(e.Label), e.Rationale, formatTimePtr(e.ExecutedAt), e.ErrorMessage,
		formatTime(e.UpdatedAt), e.ID, string(expected),
	)
	if isUniqueViolation(err) {
		return false, fmt.Errorf("%w: %s", model.ErrDuplicateSchedule, e.ScheduleDate)
	}
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// CompleteGeneration moves a PENDING entry to GENERATED and creates its
// zero-metric performance record in one transaction. It returns false without
// error when the entry was no longer PENDING. A record already present for
// the post is kept as is.
func (s *SQLiteStore) CompleteGeneration(ctx context.Context, e *model.ScheduleEntry, rec *model.PerformanceRecord) (bool, error) {
	s.logger.Debug("sql", "op", "complete_generation", "table", "schedule_entries",
		"id", e.ID, "post_id", e.PostID)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	executedAt := now
	if e.ExecutedAt != nil {
		executedAt = *e.ExecutedAt
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE schedule_entries
		 SET status = ?, post_id = ?, executed_at = ?, error_message = '', updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(model.ScheduleStatusGenerated), e.PostID, formatTime(executedAt), formatTime(now),
		e.ID, string(model.ScheduleStatusPending),
	)
	if err != nil {
		return false, fmt.Errorf("update entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	_, err = tx.ExecContext(ctx,
		`INSERT INTO performance_records (`+performanceColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(post_id) DO NOTHING`,
		performanceArgs(rec)...,
	)
	if err != nil {
		return false, fmt.Errorf("insert performance record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}

	e.Status = model.ScheduleStatusGenerated
	e.ExecutedAt = &executedAt
	e.ErrorMessage = ""
	e.UpdatedAt = now
	return true, nil
}
