package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/me/postpilot/internal/engine"
	"github.com/me/postpilot/internal/metrics"
	"github.com/me/postpilot/pkg/model"
)

// Engine is the planning and execution surface the loop drives.
type Engine interface {
	Plan(ctx context.Context, date time.Time) (*model.ScheduleEntry, error)
	ExecuteDue(ctx context.Context, now time.Time) (engine.ExecuteReport, error)
	Now() time.Time
}

// ConfigSource returns the current engine config, or nil when none is stored.
type ConfigSource interface {
	GetEngineConfig(ctx context.Context) (*model.EngineConfig, error)
}

// Config holds scheduler configuration.
type Config struct {
	// PlanInterval is how often the plan driver runs. Planning is idempotent
	// per date, so running more than once a day only catches up missed days.
	PlanInterval time.Duration
	// PlanAheadDays is how many days after today are planned on each pass.
	PlanAheadDays int
	// FallbackExecuteInterval is used while no engine config is stored.
	FallbackExecuteInterval time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		PlanInterval:            time.Hour,
		PlanAheadDays:           1,
		FallbackExecuteInterval: time.Minute,
	}
}

// Loop runs the plan driver and the execute driver as two independent goroutines.
type Loop struct {
	engine  Engine
	configs ConfigSource
	config  Config
	metrics *metrics.Metrics
	logger  *slog.Logger
	stopCh  chan struct{}
	doneCh  chan struct{}
	once    sync.Once
}

// NewLoop creates a new scheduler loop. m may be nil.
func NewLoop(eng Engine, configs ConfigSource, cfg Config, m *metrics.Metrics, logger *slog.Logger) *Loop {
	if cfg.PlanInterval <= 0 {
		cfg.PlanInterval = DefaultConfig().PlanInterval
	}
	if cfg.FallbackExecuteInterval <= 0 {
		cfg.FallbackExecuteInterval = DefaultConfig().FallbackExecuteInterval
	}
	return &Loop{
		engine:  eng,
		configs: configs,
		config:  cfg,
		metrics: m,
		logger:  logger.With("component", "scheduler"),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start begins both drivers. Blocks until ctx is cancelled or Stop is called.
func (l *Loop) Start(ctx context.Context) error {
	l.logger.Info("scheduler started", "plan_interval", l.config.PlanInterval, "plan_ahead_days", l.config.PlanAheadDays)
	defer close(l.doneCh)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-l.stopCh:
			cancel()
		case <-runCtx.Done():
		}
	}()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		l.runPlan(runCtx)
	}()
	go func() {
		defer wg.Done()
		l.runExecute(runCtx)
	}()
	wg.Wait()

	if err := ctx.Err(); err != nil {
		l.logger.Info("scheduler stopping (context cancelled)")
		return err
	}
	l.logger.Info("scheduler stopping (stop called)")
	return nil
}

// Stop gracefully shuts down the scheduler and waits for in-progress ticks to finish.
func (l *Loop) Stop() error {
	l.once.Do(func() { close(l.stopCh) })
	<-l.doneCh
	return nil
}

func (l *Loop) runPlan(ctx context.Context) {
	ticker := time.NewTicker(l.config.PlanInterval)
	defer ticker.Stop()

	for {
		if err := l.PlanTick(ctx); err != nil {
			l.logger.Error("plan tick error", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (l *Loop) runExecute(ctx context.Context) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		if err := l.ExecuteTick(ctx); err != nil {
			l.logger.Error("execute tick error", "error", err)
		}
		// The poll interval is hot-reloadable, so it is re-read every pass.
		timer.Reset(l.executeInterval(ctx))
	}
}

func (l *Loop) executeInterval(ctx context.Context) time.Duration {
	cfg, err := l.configs.GetEngineConfig(ctx)
	if err != nil || cfg == nil || cfg.PollInterval <= 0 {
		return l.config.FallbackExecuteInterval
	}
	return cfg.PollInterval.Std()
}

// Tick runs a single plan pass followed by a single execute pass.
func (l *Loop) Tick(ctx context.Context) error {
	if err := l.PlanTick(ctx); err != nil {
		return fmt.Errorf("plan: %w", err)
	}
	if err := l.ExecuteTick(ctx); err != nil {
		return fmt.Errorf("execute: %w", err)
	}
	return nil
}

// PlanTick plans today and the configured number of following days. It is a
// no-op while auto scheduling is disabled. Skipped dates are not errors.
func (l *Loop) PlanTick(ctx context.Context) error {
	start := time.Now()
	defer func() { l.metrics.Tick("plan", time.Since(start)) }()

	cfg, err := l.configs.GetEngineConfig(ctx)
	if err != nil {
		return fmt.Errorf("load engine config: %w", err)
	}
	if cfg != nil && !cfg.AutoScheduleEnabled {
		l.logger.Debug("auto scheduling disabled; plan tick skipped")
		return nil
	}

	today := l.engine.Now()
	var errs []error
	for k := 0; k <= l.config.PlanAheadDays; k++ {
		date := today.AddDate(0, 0, k)
		if _, err := l.engine.Plan(ctx, date); err != nil && !errors.Is(err, model.ErrPlanningSkipped) {
			errs = append(errs, fmt.Errorf("plan %s: %w", model.DateKey(date), err))
		}
	}
	return errors.Join(errs...)
}

// ExecuteTick runs every due entry once.
func (l *Loop) ExecuteTick(ctx context.Context) error {
	start := time.Now()
	defer func() { l.metrics.Tick("execute", time.Since(start)) }()

	report, err := l.engine.ExecuteDue(ctx, l.engine.Now())
	if errors.Is(err, model.ErrConfigurationMissing) {
		l.logger.Warn("execute tick skipped: engine configuration missing")
		return nil
	}
	if err != nil {
		return err
	}
	if report.Due > 0 {
		l.logger.Debug("execute tick", "due", report.Due, "generated", report.Generated, "failed", report.Failed)
	}
	return nil
}
