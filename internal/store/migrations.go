package store

import (
	"context"
	"database/sql"
)

// schema contains the DDL for all postpilot tables.
// Each statement uses IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS templates (
		id                  TEXT PRIMARY KEY,
		name                TEXT NOT NULL DEFAULT '',
		prompt_spec         TEXT NOT NULL DEFAULT '',
		enabled             INTEGER NOT NULL DEFAULT 1,
		total_uses          INTEGER NOT NULL DEFAULT 0,
		total_views         INTEGER NOT NULL DEFAULT 0,
		total_engagement    INTEGER NOT NULL DEFAULT 0,
		avg_engagement_rate REAL NOT NULL DEFAULT 0,
		created_at          TEXT NOT NULL,
		updated_at          TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS time_slots (
		id           TEXT PRIMARY KEY,
		name         TEXT NOT NULL DEFAULT '',
		start_minute INTEGER NOT NULL,
		end_minute   INTEGER NOT NULL,
		weekdays     INTEGER NOT NULL DEFAULT 127,
		priority     INTEGER NOT NULL DEFAULT 0,
		enabled      INTEGER NOT NULL DEFAULT 1,
		created_at   TEXT NOT NULL,
		updated_at   TEXT NOT NULL,
		CHECK (start_minute < end_minute)
	)`,

	// Allowed templates per slot, one row per member.
	`CREATE TABLE IF NOT EXISTS time_slot_templates (
		slot_id     TEXT NOT NULL REFERENCES time_slots(id) ON DELETE CASCADE,
		template_id TEXT NOT NULL REFERENCES templates(id),
		PRIMARY KEY (slot_id, template_id)
	)`,

	`CREATE TABLE IF NOT EXISTS engine_config (
		id                 INTEGER PRIMARY KEY CHECK (id = 1),
		exploration_factor REAL NOT NULL,
		min_trials         INTEGER NOT NULL,
		posts_per_day      INTEGER NOT NULL,
		auto_schedule      INTEGER NOT NULL,
		poll_interval_ms   INTEGER NOT NULL,
		lateness_bound_ms  INTEGER NOT NULL,
		retry_policy       TEXT NOT NULL,
		max_retries        INTEGER NOT NULL DEFAULT 0,
		retry_backoff_ms   INTEGER NOT NULL DEFAULT 0,
		conflict_policy    TEXT NOT NULL,
		updated_at         TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS schedule_entries (
		id             TEXT PRIMARY KEY,
		schedule_date  TEXT NOT NULL UNIQUE,
		slot_id        TEXT NOT NULL REFERENCES time_slots(id),
		template_id    TEXT NOT NULL REFERENCES templates(id),
		scheduled_time TEXT NOT NULL,
		status         TEXT NOT NULL DEFAULT 'PENDING',
		post_id        TEXT NOT NULL DEFAULT '',
		ucb_score      REAL NOT NULL DEFAULT 0,
		label          TEXT NOT NULL DEFAULT '',
		rationale      TEXT NOT NULL DEFAULT '',
		executed_at    TEXT,
		error_message  TEXT NOT NULL DEFAULT '',
		created_at     TEXT NOT NULL,
		updated_at     TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_schedule_entries_due ON schedule_entries(status, scheduled_time)`,

	`CREATE TABLE IF NOT EXISTS performance_records (
		id              TEXT PRIMARY KEY,
		post_id         TEXT NOT NULL UNIQUE,
		schedule_id     TEXT NOT NULL DEFAULT '',
		template_id     TEXT NOT NULL REFERENCES templates(id),
		slot_id         TEXT NOT NULL REFERENCES time_slots(id),
		posted_at       TEXT NOT NULL,
		posted_hour     INTEGER NOT NULL,
		posted_minute   INTEGER NOT NULL,
		posted_weekday  INTEGER NOT NULL,
		views           INTEGER NOT NULL DEFAULT 0,
		likes           INTEGER NOT NULL DEFAULT 0,
		replies         INTEGER NOT NULL DEFAULT 0,
		reposts         INTEGER NOT NULL DEFAULT 0,
		quotes          INTEGER NOT NULL DEFAULT 0,
		shares          INTEGER NOT NULL DEFAULT 0,
		engagement_rate REAL NOT NULL DEFAULT 0,
		ucb_score       REAL NOT NULL DEFAULT 0,
		label           TEXT NOT NULL DEFAULT '',
		rationale       TEXT NOT NULL DEFAULT '',
		created_at      TEXT NOT NULL,
		updated_at      TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_performance_records_template ON performance_records(template_id, views)`,
}

// migrate executes all schema DDL statements.
func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
