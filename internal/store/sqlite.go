package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/me/postpilot/pkg/model"

	_ "modernc.org/sqlite"
)

// timeLayout is fixed-width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns a Store.
// Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	// SQLite has a single writer; one connection also keeps ":memory:"
	// databases from splitting across the pool.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", strings.ToLower(pragma), err)
		}
	}

	return NewSQLiteStoreFromDB(db, logger), nil
}

// NewSQLiteStoreFromDB wraps an already-open database handle.
func NewSQLiteStoreFromDB(db *sql.DB, logger *slog.Logger) *SQLiteStore {
	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

func parseTimePtr(s *string) *time.Time {
	if s == nil || *s == "" {
		return nil
	}
	t := parseTime(*s)
	return &t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// --- Templates ---

const templateColumns = `id, name, prompt_spec, enabled, total_uses, total_views, total_engagement, avg_engagement_rate, created_at, updated_at`

func scanTemplate(row rowScanner) (*model.Template, error) {
	var t model.Template
	var enabled int
	var createdAt, updatedAt string
	if err := row.Scan(&t.ID, &t.Name, &t.PromptSpec, &enabled,
		&t.Stats.TotalUses, &t.Stats.TotalViews, &t.Stats.TotalEngagement, &t.Stats.AvgEngagementRate,
		&createdAt, &updatedAt); err != nil {
		return nil, err
	}
	t.Enabled = enabled != 0
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)
	return &t, nil
}

// UpsertTemplate inserts or updates a template's content and enabled flag.
// Aggregate stats are owned by feedback and are never overwritten here.
func (s *SQLiteStore) UpsertTemplate(ctx context.Context, t *model.Template) error {
	s.logger.Debug("sql", "op", "upsert", "table", "templates", "id", t.ID)

	if err := t.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO templates (id, name, prompt_spec, enabled, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   name = excluded.name,
		   prompt_spec = excluded.prompt_spec,
		   enabled = excluded.enabled,
		   updated_at = excluded.updated_at`,
		t.ID, t.Name, t.PromptSpec, boolInt(t.Enabled), formatTime(t.CreatedAt), formatTime(t.UpdatedAt),
	)
	return err
}

func (s *SQLiteStore) GetTemplate(ctx context.Context, id string) (*model.Template, error) {
	s.logger.Debug("sql", "op", "select", "table", "templates", "id", id)

	t, err := scanTemplate(s.db.QueryRowContext(ctx,
		`SELECT `+templateColumns+` FROM templates WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

func (s *SQLiteStore) ListTemplates(ctx context.Context) ([]*model.Template, error) {
	return s.listTemplates(ctx, false)
}

func (s *SQLiteStore) ListEnabledTemplates(ctx context.Context) ([]*model.Template, error) {
	return s.listTemplates(ctx, true)
}

func (s *SQLiteStore) listTemplates(ctx context.Context, enabledOnly bool) ([]*model.Template, error) {
	s.logger.Debug("sql", "op", "list", "table", "templates", "enabled_only", enabledOnly)

	query := `SELECT ` + templateColumns + ` FROM templates`
	if enabledOnly {
		query += ` WHERE enabled = 1`
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// --- Time slots ---

const slotColumns = `id, name, start_minute, end_minute, weekdays, priority, enabled, created_at, updated_at`

func scanSlot(row rowScanner) (*model.TimeSlot, error) {
	var sl model.TimeSlot
	var start, end, weekdays, enabled int
	var createdAt, updatedAt string
	if err := row.Scan(&sl.ID, &sl.Name, &start, &end, &weekdays, &sl.Priority, &enabled, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	sl.Start = model.ClockTime(start)
	sl.End = model.ClockTime(end)
	sl.Weekdays = model.WeekdaySet(weekdays)
	sl.Enabled = enabled != 0
	sl.AllowedTemplates = model.NewIDSet()
	sl.CreatedAt = parseTime(createdAt)
	sl.UpdatedAt = parseTime(updatedAt)
	return &sl, nil
}

// UpsertTimeSlot validates and stores a slot together with its allowed-template set.
func (s *SQLiteStore) UpsertTimeSlot(ctx context.Context, sl *model.TimeSlot) error {
	s.logger.Debug("sql", "op", "upsert", "table", "time_slots", "id", sl.ID)

	if err := sl.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()
	if sl.CreatedAt.IsZero() {
		sl.CreatedAt = now
	}
	sl.UpdatedAt = now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO time_slots (id, name, start_minute, end_minute, weekdays, priority, enabled, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   name = excluded.name,
		   start_minute = excluded.start_minute,
		   end_minute = excluded.end_minute,
		   weekdays = excluded.weekdays,
		   priority = excluded.priority,
		   enabled = excluded.enabled,
		   updated_at = excluded.updated_at`,
		sl.ID, sl.Name, int(sl.Start), int(sl.End), int(sl.Weekdays), sl.Priority, boolInt(sl.Enabled),
		formatTime(sl.CreatedAt), formatTime(sl.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert slot: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM time_slot_templates WHERE slot_id = ?`, sl.ID); err != nil {
		return fmt.Errorf("clear allowed templates: %w", err)
	}
	for _, tid := range sl.AllowedTemplates.Sorted() {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO time_slot_templates (slot_id, template_id) VALUES (?, ?)`, sl.ID, tid); err != nil {
			return fmt.Errorf("allow template %s: %w", tid, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetTimeSlot(ctx context.Context, id string) (*model.TimeSlot, error) {
	s.logger.Debug("sql", "op", "select", "table", "time_slots", "id", id)

	sl, err := scanSlot(s.db.QueryRowContext(ctx, `SELECT `+slotColumns+` FROM time_slots WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadAllowedTemplates(ctx, map[string]*model.TimeSlot{sl.ID: sl}); err != nil {
		return nil, err
	}
	return sl, nil
}

func (s *SQLiteStore) ListTimeSlots(ctx context.Context) ([]*model.TimeSlot, error) {
	return s.listTimeSlots(ctx, false)
}

func (s *SQLiteStore) ListEnabledTimeSlots(ctx context.Context) ([]*model.TimeSlot, error) {
	return s.listTimeSlots(ctx, true)
}

func (s *SQLiteStore) listTimeSlots(ctx context.Context, enabledOnly bool) ([]*model.TimeSlot, error) {
	s.logger.Debug("sql", "op", "list", "table", "time_slots", "enabled_only", enabledOnly)

	query := `SELECT ` + slotColumns + ` FROM time_slots`
	if enabledOnly {
		query += ` WHERE enabled = 1`
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	var out []*model.TimeSlot
	byID := make(map[string]*model.TimeSlot)
	for rows.Next() {
		sl, err := scanSlot(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, sl)
		byID[sl.ID] = sl
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.loadAllowedTemplates(ctx, byID); err != nil {
		return nil, err
	}
	return out, nil
}

// loadAllowedTemplates fills AllowedTemplates for the given slots.
func (s *SQLiteStore) loadAllowedTemplates(ctx context.Context, byID map[string]*model.TimeSlot) error {
	if len(byID) == 0 {
		return nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT slot_id, template_id FROM time_slot_templates`)
	if err != nil {
		return fmt.Errorf("load allowed templates: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var slotID, templateID string
		if err := rows.Scan(&slotID, &templateID); err != nil {
			return err
		}
		if sl, ok := byID[slotID]; ok {
			sl.AllowedTemplates[templateID] = struct{}{}
		}
	}
	return rows.Err()
}

// --- Engine config ---

// GetEngineConfig returns the stored config, or nil when none has been saved.
func (s *SQLiteStore) GetEngineConfig(ctx context.Context) (*model.EngineConfig, error) {
	s.logger.Debug("sql", "op", "select", "table", "engine_config")

	var cfg model.EngineConfig
	var auto int
	var pollMS, latenessMS, backoffMS int64
	var retryPolicy, conflictPolicy, updatedAt string

	err := s.db.QueryRowContext(ctx,
		`SELECT exploration_factor, min_trials, posts_per_day, auto_schedule, poll_interval_ms,
		        lateness_bound_ms, retry_policy, max_retries, retry_backoff_ms, conflict_policy, updated_at
		 FROM engine_config WHERE id = 1`,
	).Scan(&cfg.ExplorationFactor, &cfg.MinTrialsPerTemplate, &cfg.PostsPerDay, &auto, &pollMS,
		&latenessMS, &retryPolicy, &cfg.MaxRetries, &backoffMS, &conflictPolicy, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	cfg.AutoScheduleEnabled = auto != 0
	cfg.PollInterval = model.Duration(time.Duration(pollMS) * time.Millisecond)
	cfg.LatenessBound = model.Duration(time.Duration(latenessMS) * time.Millisecond)
	cfg.RetryBackoff = model.Duration(time.Duration(backoffMS) * time.Millisecond)
	cfg.RetryPolicy = model.RetryPolicy(retryPolicy)
	cfg.ConflictPolicy = model.ConflictPolicy(conflictPolicy)
	cfg.UpdatedAt = parseTime(updatedAt)
	return &cfg, nil
}

// SaveEngineConfig replaces the singleton config row.
func (s *SQLiteStore) SaveEngineConfig(ctx context.Context, cfg *model.EngineConfig) error {
	s.logger.Debug("sql", "op", "upsert", "table", "engine_config")

	cfg.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO engine_config (id, exploration_factor, min_trials, posts_per_day, auto_schedule, poll_interval_ms,
		                            lateness_bound_ms, retry_policy, max_retries, retry_backoff_ms, conflict_policy, updated_at)
		 VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   exploration_factor = excluded.exploration_factor,
		   min_trials = excluded.min_trials,
		   posts_per_day = excluded.posts_per_day,
		   auto_schedule = excluded.auto_schedule,
		   poll_interval_ms = excluded.poll_interval_ms,
		   lateness_bound_ms = excluded.lateness_bound_ms,
		   retry_policy = excluded.retry_policy,
		   max_retries = excluded.max_retries,
		   retry_backoff_ms = excluded.retry_backoff_ms,
		   conflict_policy = excluded.conflict_policy,
		   updated_at = excluded.updated_at`,
		cfg.ExplorationFactor, cfg.MinTrialsPerTemplate, cfg.PostsPerDay, boolInt(cfg.AutoScheduleEnabled),
		cfg.PollInterval.Std().Milliseconds(), cfg.LatenessBound.Std().Milliseconds(),
		string(cfg.RetryPolicy), cfg.MaxRetries, cfg.RetryBackoff.Std().Milliseconds(),
		string(cfg.ConflictPolicy), formatTime(cfg.UpdatedAt),
	)
	return err
}
