package model

import (
	"errors"
	"fmt"
	"time"
)

// RetryPolicy decides what happens when a generation submission fails.
type RetryPolicy string

const (
	// RetryNone marks the entry FAILED on the first submission error.
	RetryNone RetryPolicy = "none"
	// RetryBounded retries up to MaxRetries times within one execute pass.
	RetryBounded RetryPolicy = "bounded"
	// RetryShiftNextSlot moves the still-PENDING entry into the next eligible
	// slot later the same day.
	RetryShiftNextSlot RetryPolicy = "shift_next_slot"
)

// ConflictPolicy decides how a manual schedule that collides with an existing
// entry for the same date is handled.
type ConflictPolicy string

const (
	ConflictReject   ConflictPolicy = "reject"
	ConflictShift    ConflictPolicy = "shift"
	ConflictOverride ConflictPolicy = "override"
)

// EngineConfig is the singleton, hot-reloadable decision-engine configuration.
// It is read fresh from the store at every tick.
type EngineConfig struct {
	ExplorationFactor    float64        `json:"exploration_factor" yaml:"exploration_factor"`
	MinTrialsPerTemplate int            `json:"min_trials_per_template" yaml:"min_trials_per_template"`
	PostsPerDay          int            `json:"posts_per_day" yaml:"posts_per_day"`
	AutoScheduleEnabled  bool           `json:"auto_schedule_enabled" yaml:"auto_schedule_enabled"`
	PollInterval         Duration       `json:"poll_interval" yaml:"poll_interval"`
	LatenessBound        Duration       `json:"lateness_bound" yaml:"lateness_bound"`
	RetryPolicy          RetryPolicy    `json:"retry_policy" yaml:"retry_policy"`
	MaxRetries           int            `json:"max_retries" yaml:"max_retries"`
	RetryBackoff         Duration       `json:"retry_backoff" yaml:"retry_backoff"`
	ConflictPolicy       ConflictPolicy `json:"conflict_policy" yaml:"conflict_policy"`
	UpdatedAt            time.Time      `json:"updated_at" yaml:"-"`
}

// DefaultEngineConfig returns numeric defaults. The retry and conflict
// policies are deliberately left empty: they must be chosen by the operator,
// and Validate rejects a config that omits them.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		ExplorationFactor:    1.5,
		MinTrialsPerTemplate: 5,
		PostsPerDay:          1,
		AutoScheduleEnabled:  true,
		PollInterval:         Duration(5 * time.Minute),
		LatenessBound:        Duration(30 * time.Minute),
		MaxRetries:           2,
		RetryBackoff:         Duration(2 * time.Second),
	}
}

// Validate checks ranges and enumerations.
func (c *EngineConfig) Validate() error {
	var errs []error
	if !(c.ExplorationFactor > 0) {
		errs = append(errs, fmt.Errorf("exploration_factor must be > 0, got %v", c.ExplorationFactor))
	}
	if c.MinTrialsPerTemplate < 0 {
		errs = append(errs, fmt.Errorf("min_trials_per_template must be >= 0, got %d", c.MinTrialsPerTemplate))
	}
	if c.PostsPerDay < 1 {
		errs = append(errs, fmt.Errorf("posts_per_day must be >= 1, got %d", c.PostsPerDay))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll_interval must be > 0, got %s", c.PollInterval))
	}
	if c.LatenessBound < 0 {
		errs = append(errs, fmt.Errorf("lateness_bound must be >= 0, got %s", c.LatenessBound))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("max_retries must be >= 0, got %d", c.MaxRetries))
	}
	if c.RetryBackoff < 0 {
		errs = append(errs, fmt.Errorf("retry_backoff must be >= 0, got %s", c.RetryBackoff))
	}
	switch c.RetryPolicy {
	case RetryNone, RetryBounded, RetryShiftNextSlot:
	default:
		errs = append(errs, fmt.Errorf("retry_policy must be one of none, bounded, shift_next_slot, got %q", c.RetryPolicy))
	}
	switch c.ConflictPolicy {
	case ConflictReject, ConflictShift, ConflictOverride:
	default:
		errs = append(errs, fmt.Errorf("conflict_policy must be one of reject, shift, override, got %q", c.ConflictPolicy))
	}
	return errors.Join(errs...)
}
