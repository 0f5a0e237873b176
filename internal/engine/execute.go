package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"github.com/me/postpilot/internal/generator"
	"github.com/me/postpilot/internal/slots"
	"github.com/me/postpilot/pkg/model"
)

// missedWindow is the error message recorded for entries that were too late to run.
const missedWindow = "missed window"

// ExecuteReport summarizes one ExecuteDue pass.
type ExecuteReport struct {
	Due       int `json:"due"`
	Generated int `json:"generated"`
	Resumed   int `json:"resumed"`
	Failed    int `json:"failed"`
	Shifted   int `json:"shifted"`
	Skipped   int `json:"skipped"`
}

// ExecuteDue runs every PENDING entry whose scheduled time is at or before now.
// Entries moved out of PENDING by a concurrent run are skipped.
func (e *Engine) ExecuteDue(ctx context.Context, now time.Time) (ExecuteReport, error) {
	var report ExecuteReport

	cfg, err := e.config(ctx)
	if err != nil {
		return report, err
	}

	due, err := e.store.ListDueEntries(ctx, now)
	if err != nil {
		return report, fmt.Errorf("list due entries: %w", err)
	}
	report.Due = len(due)

	for _, entry := range due {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		e.executeEntry(ctx, cfg, entry, now, &report)
	}

	if report.Due > 0 {
		e.logger.Info("execute pass complete",
			"due", report.Due,
			"generated", report.Generated,
			"resumed", report.Resumed,
			"failed", report.Failed,
			"shifted", report.Shifted,
			"skipped", report.Skipped,
		)
	}
	return report, nil
}

func (e *Engine) claim(id string) bool {
	e.inflightMu.Lock()
	defer e.inflightMu.Unlock()
	if _, busy := e.inflight[id]; busy {
		return false
	}
	e.inflight[id] = struct{}{}
	return true
}

func (e *Engine) release(id string) {
	e.inflightMu.Lock()
	delete(e.inflight, id)
	e.inflightMu.Unlock()
}

func (e *Engine) executeEntry(ctx context.Context, cfg *model.EngineConfig, entry *model.ScheduleEntry, now time.Time, report *ExecuteReport) {
	if !e.claim(entry.ID) {
		report.Skipped++
		return
	}
	defer e.release(entry.ID)

	log := e.logger.With("entry_id", entry.ID, "date", entry.ScheduleDate)

	// A post id on a PENDING entry means an earlier pass submitted the job
	// but stopped before completing the transition.
	if entry.PostID != "" {
		ok, err := e.complete(ctx, entry, now)
		switch {
		case err != nil:
			log.Error("resume generated entry", "error", err)
		case ok:
			log.Info("entry resumed without resubmitting", "post_id", entry.PostID)
			report.Resumed++
		default:
			report.Skipped++
		}
		return
	}

	if late := now.Sub(entry.ScheduledTime); late > cfg.LatenessBound.Std() {
		e.fail(ctx, log, entry, missedWindow, now, report)
		return
	}

	tpl, err := e.store.GetTemplate(ctx, entry.TemplateID)
	if err != nil {
		log.Error("load template", "template_id", entry.TemplateID, "error", err)
		return
	}
	if tpl == nil || !tpl.Enabled {
		e.fail(ctx, log, entry, fmt.Sprintf("template %s is unavailable", entry.TemplateID), now, report)
		return
	}

	req, err := e.buildRequest(entry, tpl)
	if err != nil {
		e.fail(ctx, log, entry, err.Error(), now, report)
		return
	}

	postID, err := e.submit(ctx, cfg, req)
	if err != nil {
		if ctx.Err() != nil {
			log.Warn("submission interrupted", "error", err)
			return
		}
		if cfg.RetryPolicy == model.RetryShiftNextSlot {
			shifted, shiftErr := e.shiftToNextSlot(ctx, entry, err, now)
			if shiftErr != nil {
				log.Error("shift to next slot", "error", shiftErr)
			}
			if shifted {
				log.Warn("submission failed; entry moved to next slot",
					"slot_id", entry.SlotID, "scheduled_time", entry.ScheduledTime, "error", err)
				report.Shifted++
				return
			}
		}
		e.fail(ctx, log, entry, err.Error(), now, report)
		return
	}

	// Persist the post id while still PENDING so a crash before the
	// transition resumes instead of submitting twice.
	entry.PostID = postID
	attached, err := e.store.UpdateScheduleEntry(ctx, entry, model.ScheduleStatusPending)
	if err != nil {
		log.Error("attach post id", "post_id", postID, "error", err)
		return
	}
	if !attached {
		log.Warn("entry left PENDING during submission; generated post is orphaned", "post_id", postID)
		report.Skipped++
		return
	}

	ok, err := e.complete(ctx, entry, now)
	switch {
	case err != nil:
		log.Error("complete generation", "post_id", postID, "error", err)
	case ok:
		log.Info("entry generated", "post_id", postID, "template_id", entry.TemplateID)
		report.Generated++
	default:
		report.Skipped++
	}
}

// complete moves entry to GENERATED and creates its zero-metric performance record.
func (e *Engine) complete(ctx context.Context, entry *model.ScheduleEntry, now time.Time) (bool, error) {
	executedAt := now
	entry.ExecutedAt = &executedAt
	rec := model.NewPerformanceRecord(newRecordID(), entry, e.loc, now)
	ok, err := e.store.CompleteGeneration(ctx, entry, rec)
	if err != nil {
		return false, err
	}
	if ok {
		e.metrics.Transition(model.ScheduleStatusGenerated.String())
	}
	return ok, nil
}

func (e *Engine) fail(ctx context.Context, log *slog.Logger, entry *model.ScheduleEntry, reason string, now time.Time, report *ExecuteReport) {
	if err := transition(entry, model.ScheduleStatusFailed); err != nil {
		log.Error("fail entry", "error", err)
		return
	}
	executedAt := now
	entry.ExecutedAt = &executedAt
	entry.ErrorMessage = reason

	ok, err := e.store.UpdateScheduleEntry(ctx, entry, model.ScheduleStatusPending)
	if err != nil {
		log.Error("persist failed entry", "error", err)
		return
	}
	if !ok {
		report.Skipped++
		return
	}
	e.metrics.Transition(model.ScheduleStatusFailed.String())
	log.Warn("entry failed", "reason", reason)
	report.Failed++
}

func (e *Engine) buildRequest(entry *model.ScheduleEntry, tpl *model.Template) (generator.Request, error) {
	local := entry.ScheduledTime.In(e.loc)
	meta := map[string]string{
		"schedule_id":    entry.ID,
		"schedule_date":  entry.ScheduleDate,
		"template_id":    entry.TemplateID,
		"time_slot_id":   entry.SlotID,
		"scheduled_time": local.Format(time.RFC3339),
		"label":          entry.Label.String(),
	}

	prompt := tpl.PromptSpec
	if e.renderer != nil {
		vars := map[string]any{
			"job": map[string]any{
				"schedule_id":    entry.ID,
				"schedule_date":  entry.ScheduleDate,
				"scheduled_time": local.Format(time.RFC3339),
				"weekday":        local.Weekday().String(),
				"hour":           local.Hour(),
				"label":          entry.Label.String(),
			},
			"template": map[string]any{
				"id":   tpl.ID,
				"name": tpl.Name,
			},
		}
		rendered, err := e.renderer.Render(tpl.PromptSpec, vars)
		if err != nil {
			return generator.Request{}, fmt.Errorf("render prompt: %w", err)
		}
		prompt = rendered
	}
	return generator.Request{Prompt: prompt, Metadata: meta}, nil
}

// submit calls the generator, retrying per the bounded policy. Every error
// returned wraps model.ErrGenerationSubmission.
func (e *Engine) submit(ctx context.Context, cfg *model.EngineConfig, req generator.Request) (string, error) {
	attempt := func() (string, error) {
		start := time.Now()
		postID, err := e.gen.Submit(ctx, req)
		if err == nil && postID == "" {
			err = errors.New("generator returned an empty post id")
		}
		e.metrics.Submission(err == nil, time.Since(start))
		if err != nil {
			return "", fmt.Errorf("%w: %w", model.ErrGenerationSubmission, err)
		}
		return postID, nil
	}

	if cfg.RetryPolicy != model.RetryBounded || cfg.MaxRetries <= 0 {
		return attempt()
	}

	builder := retrypolicy.NewBuilder[string]().
		WithMaxRetries(cfg.MaxRetries).
		ReturnLastFailure()
	if backoff := cfg.RetryBackoff.Std(); backoff > 0 {
		builder = builder.WithBackoff(backoff, 8*backoff)
	}
	return failsafe.With[string](builder.Build()).WithContext(ctx).Get(attempt)
}

// shiftToNextSlot keeps entry PENDING but moves it into the next slot later
// the same day that still allows its template. The new slot must start after
// both the failed scheduled time and now. It reports false when no such slot
// exists.
func (e *Engine) shiftToNextSlot(ctx context.Context, entry *model.ScheduleEntry, cause error, now time.Time) (bool, error) {
	cat, err := e.loadCatalog(ctx)
	if err != nil {
		return false, err
	}
	after := entry.ScheduledTime.In(e.loc)
	if now.After(after) {
		after = now.In(e.loc)
	}
	if model.DateKey(after) != entry.ScheduleDate {
		return false, nil
	}
	next, err := slots.NextSlot(after, cat.slots, entry.TemplateID, cat.enabled)
	if errors.Is(err, model.ErrNoEligibleSlot) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	prev := *entry
	entry.SlotID = next.ID
	entry.ScheduledTime = e.randomInstant(after, next)
	entry.ErrorMessage = cause.Error()
	entry.Rationale = fmt.Sprintf("%s; shifted from slot %s after submission failure", prev.Rationale, prev.SlotID)

	ok, err := e.store.UpdateScheduleEntry(ctx, entry, model.ScheduleStatusPending)
	if err != nil || !ok {
		*entry = prev
		return false, err
	}
	return true, nil
}
