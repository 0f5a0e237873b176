package scheduler

import "context"

// Scheduler drives planning and execution of schedule entries.
type Scheduler interface {
	// Start begins the plan and execute drivers. Blocks until ctx is cancelled.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the scheduler.
	Stop() error

	// Tick runs one plan pass and one execute pass. Used for testing.
	Tick(ctx context.Context) error
}
