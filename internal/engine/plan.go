package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/me/postpilot/internal/bandit"
	"github.com/me/postpilot/internal/slots"
	"github.com/me/postpilot/pkg/model"
)

// PlanToday plans the current date in the engine's timezone.
func (e *Engine) PlanToday(ctx context.Context) (*model.ScheduleEntry, error) {
	return e.Plan(ctx, e.Now())
}

// Plan creates the PENDING entry for date's calendar day. If the day already
// has an entry it is returned unchanged. When no config, slot, or template is
// available the day is skipped: nothing is persisted and the returned error
// wraps model.ErrPlanningSkipped along with the cause.
func (e *Engine) Plan(ctx context.Context, date time.Time) (*model.ScheduleEntry, error) {
	day := e.day(date)
	key := model.DateKey(day)

	existing, err := e.store.GetScheduleEntryByDate(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", key, err)
	}
	if existing != nil {
		e.logger.Debug("date already planned", "date", key, "entry_id", existing.ID)
		return existing, nil
	}

	cfg, err := e.config(ctx)
	if err != nil {
		if errors.Is(err, model.ErrConfigurationMissing) {
			return nil, e.skip(key, err)
		}
		return nil, err
	}
	if cfg.PostsPerDay > 1 {
		e.logger.Warn("posts_per_day above 1 is not supported by the planner; planning one entry",
			"date", key, "posts_per_day", cfg.PostsPerDay)
	}

	cat, err := e.loadCatalog(ctx)
	if err != nil {
		return nil, err
	}

	slot, err := slots.Resolve(day, cat.slots, cat.enabled)
	if err != nil {
		return nil, e.skip(key, err)
	}

	allowed := slots.EligibleTemplates(slot, cat.enabled)
	candidates := make([]bandit.Candidate, 0, allowed.Len())
	for _, id := range allowed.Sorted() {
		t := cat.templates[id]
		candidates = append(candidates, bandit.Candidate{
			TemplateID:        id,
			Uses:              t.Stats.TotalUses,
			AvgEngagementRate: t.Stats.AvgEngagementRate,
		})
	}

	totalTrials, err := e.store.TotalTrials(ctx)
	if err != nil {
		return nil, fmt.Errorf("total trials: %w", err)
	}

	sel, err := e.selector.Select(candidates, totalTrials, cfg.ExplorationFactor, cfg.MinTrialsPerTemplate)
	if err != nil {
		return nil, e.skip(key, err)
	}

	entry := &model.ScheduleEntry{
		ID:            newEntryID(),
		ScheduleDate:  key,
		SlotID:        slot.ID,
		TemplateID:    sel.TemplateID,
		ScheduledTime: e.randomInstant(day, slot),
		Status:        model.ScheduleStatusPending,
		UCBScore:      sel.Score,
		Label:         sel.Label,
		Rationale:     fmt.Sprintf("slot %s (priority %d); %s", slot.ID, slot.Priority, sel.Rationale),
	}

	if err := e.store.CreateScheduleEntry(ctx, entry); err != nil {
		if errors.Is(err, model.ErrDuplicateSchedule) {
			// Lost the race to a concurrent planner; its entry stands.
			winner, getErr := e.store.GetScheduleEntryByDate(ctx, key)
			if getErr != nil {
				return nil, fmt.Errorf("lookup %s after duplicate: %w", key, getErr)
			}
			e.logger.Debug("concurrent plan detected", "date", key)
			return winner, nil
		}
		return nil, fmt.Errorf("create entry for %s: %w", key, err)
	}

	e.metrics.Selection(sel.Label.String())
	e.metrics.Transition(model.ScheduleStatusPending.String())
	e.logger.Info("date planned",
		"date", key,
		"entry_id", entry.ID,
		"slot_id", slot.ID,
		"template_id", entry.TemplateID,
		"label", entry.Label,
		"score", entry.UCBScore,
		"scheduled_time", entry.ScheduledTime,
	)
	return entry, nil
}

func (e *Engine) skip(date string, cause error) error {
	reason := SkipReason(cause)
	e.metrics.PlanSkipped(reason)
	e.logger.Warn("planning skipped", "date", date, "reason", reason, "error", cause)
	return fmt.Errorf("%w for %s: %w", model.ErrPlanningSkipped, date, cause)
}
