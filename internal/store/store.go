package store

import (
	"context"
	"time"

	"github.com/me/postpilot/pkg/model"
)

// Store defines the persistence layer for postpilot entities.
// Consumers depend on narrower interfaces declared in their own packages.
type Store interface {
	// Templates
	UpsertTemplate(ctx context.Context, t *model.Template) error
	GetTemplate(ctx context.Context, id string) (*model.Template, error)
	ListTemplates(ctx context.Context) ([]*model.Template, error)
	ListEnabledTemplates(ctx context.Context) ([]*model.Template, error)

	// Time slots
	UpsertTimeSlot(ctx context.Context, s *model.TimeSlot) error
	GetTimeSlot(ctx context.Context, id string) (*model.TimeSlot, error)
	ListTimeSlots(ctx context.Context) ([]*model.TimeSlot, error)
	ListEnabledTimeSlots(ctx context.Context) ([]*model.TimeSlot, error)

	// Engine config singleton
	GetEngineConfig(ctx context.Context) (*model.EngineConfig, error)
	SaveEngineConfig(ctx context.Context, cfg *model.EngineConfig) error

	// Schedule entries
	CreateScheduleEntry(ctx context.Context, e *model.ScheduleEntry) error
	GetScheduleEntry(ctx context.Context, id string) (*model.ScheduleEntry, error)
	GetScheduleEntryByDate(ctx context.Context, date string) (*model.ScheduleEntry, error)
	ListScheduleEntries(ctx context.Context, opts model.ListOptions) ([]*model.ScheduleEntry, int, error)
	ListDueEntries(ctx context.Context, now time.Time) ([]*model.ScheduleEntry, error)
	UpdateScheduleEntry(ctx context.Context, e *model.ScheduleEntry, expected model.ScheduleStatus) (bool, error)
	CompleteGeneration(ctx context.Context, e *model.ScheduleEntry, rec *model.PerformanceRecord) (bool, error)

	// Performance records
	GetPerformanceRecordByPost(ctx context.Context, postID string) (*model.PerformanceRecord, error)
	ListPerformanceRecords(ctx context.Context, templateID string) ([]*model.PerformanceRecord, error)
	ApplyFeedback(ctx context.Context, postID string, m model.Metrics, at time.Time) (*model.PerformanceRecord, error)
	RecomputeTemplateStats(ctx context.Context, templateID string) error
	TotalTrials(ctx context.Context) (int, error)

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}
