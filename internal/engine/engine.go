// Package engine owns the schedule-entry lifecycle: planning one entry per
// date, executing due entries against the content generator, and the
// operator transitions (manual schedule, cancel, mark posted).
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/me/postpilot/internal/bandit"
	"github.com/me/postpilot/internal/generator"
	"github.com/me/postpilot/internal/metrics"
	"github.com/me/postpilot/internal/slots"
	"github.com/me/postpilot/pkg/model"
)

// Store is the subset of the persistence layer the engine needs.
type Store interface {
	GetEngineConfig(ctx context.Context) (*model.EngineConfig, error)
	GetTemplate(ctx context.Context, id string) (*model.Template, error)
	ListEnabledTemplates(ctx context.Context) ([]*model.Template, error)
	GetTimeSlot(ctx context.Context, id string) (*model.TimeSlot, error)
	ListEnabledTimeSlots(ctx context.Context) ([]*model.TimeSlot, error)
	TotalTrials(ctx context.Context) (int, error)

	CreateScheduleEntry(ctx context.Context, e *model.ScheduleEntry) error
	GetScheduleEntry(ctx context.Context, id string) (*model.ScheduleEntry, error)
	GetScheduleEntryByDate(ctx context.Context, date string) (*model.ScheduleEntry, error)
	ListDueEntries(ctx context.Context, now time.Time) ([]*model.ScheduleEntry, error)
	UpdateScheduleEntry(ctx context.Context, e *model.ScheduleEntry, expected model.ScheduleStatus) (bool, error)
	CompleteGeneration(ctx context.Context, e *model.ScheduleEntry, rec *model.PerformanceRecord) (bool, error)
}

// Renderer expands a template's prompt spec for one job.
type Renderer interface {
	Render(spec string, vars map[string]any) (string, error)
}

// Engine plans and executes schedule entries. It is safe for concurrent use.
type Engine struct {
	store    Store
	gen      generator.Generator
	renderer Renderer
	selector *bandit.Selector
	metrics  *metrics.Metrics
	logger   *slog.Logger
	loc      *time.Location
	now      func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand

	// inflight holds entry ids currently being executed by this process.
	inflightMu sync.Mutex
	inflight   map[string]struct{}
}

// Option configures an Engine.
type Option func(*Engine)

// WithLocation sets the timezone in which dates and slot windows are read.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// WithRand sets the randomness source for selection and scheduled instants.
func WithRand(rng *rand.Rand) Option {
	return func(e *Engine) {
		if rng != nil {
			e.rng = rng
			e.selector = bandit.NewSelector(rand.New(rand.NewPCG(rng.Uint64(), rng.Uint64())))
		}
	}
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithRenderer sets the prompt renderer. Without one the prompt spec is sent verbatim.
func WithRenderer(r Renderer) Option {
	return func(e *Engine) { e.renderer = r }
}

// New creates an Engine.
func New(st Store, gen generator.Generator, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:    st,
		gen:      gen,
		logger:   logger.With("component", "engine"),
		loc:      time.UTC,
		now:      time.Now,
		rng:      rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		inflight: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.selector == nil {
		e.selector = bandit.NewSelector(nil)
	}
	return e
}

// Location returns the engine's timezone.
func (e *Engine) Location() *time.Location {
	return e.loc
}

// Now returns the engine clock's current time in the engine's timezone.
func (e *Engine) Now() time.Time {
	return e.now().In(e.loc)
}

// config loads the engine config, failing with ErrConfigurationMissing when unset.
func (e *Engine) config(ctx context.Context) (*model.EngineConfig, error) {
	cfg, err := e.store.GetEngineConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load engine config: %w", err)
	}
	if cfg == nil {
		return nil, model.ErrConfigurationMissing
	}
	return cfg, nil
}

// catalog is the enabled templates and slots as of one call.
type catalog struct {
	templates map[string]*model.Template
	enabled   model.IDSet
	slots     []*model.TimeSlot
}

func (e *Engine) loadCatalog(ctx context.Context) (*catalog, error) {
	tmpls, err := e.store.ListEnabledTemplates(ctx)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	sl, err := e.store.ListEnabledTimeSlots(ctx)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	c := &catalog{templates: make(map[string]*model.Template, len(tmpls)), enabled: model.NewIDSet(), slots: sl}
	for _, t := range tmpls {
		c.templates[t.ID] = t
		c.enabled[t.ID] = struct{}{}
	}
	return c, nil
}

// day returns midnight of t's calendar date in the engine's timezone.
func (e *Engine) day(t time.Time) time.Time {
	y, m, d := t.In(e.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, e.loc)
}

func (e *Engine) randomInstant(date time.Time, slot *model.TimeSlot) time.Time {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return slots.RandomInstant(e.rng, date, slot)
}

func newEntryID() string {
	return "sch_" + uuid.New().String()
}

func newRecordID() string {
	return "perf_" + uuid.New().String()
}

// transition moves entry to next if the state machine allows it.
func transition(entry *model.ScheduleEntry, next model.ScheduleStatus) error {
	if !entry.Status.CanTransitionTo(next) {
		return &model.InvalidTransitionError{
			Entity: "schedule_entry",
			ID:     entry.ID,
			From:   entry.Status.String(),
			To:     next.String(),
		}
	}
	entry.Status = next
	return nil
}

// SkipReason names a planning-skip cause for logs and metrics.
func SkipReason(err error) string {
	switch {
	case errors.Is(err, model.ErrConfigurationMissing):
		return "configuration_missing"
	case errors.Is(err, model.ErrNoEligibleSlot):
		return "no_eligible_slot"
	case errors.Is(err, model.ErrEmptyCandidateSet):
		return "empty_candidate_set"
	}
	return "other"
}
