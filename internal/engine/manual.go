package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/me/postpilot/pkg/model"
)

// maxShiftDays bounds how far the shift conflict policy looks for a free date.
const maxShiftDays = 30

// ManualRequest asks for a specific slot and template on a date.
type ManualRequest struct {
	Date          time.Time
	SlotID        string
	TemplateID    string
	ScheduledTime *time.Time // optional; must fall inside the slot window on Date
	Note          string
}

// ScheduleManual creates an operator-chosen entry labelled MANUAL. A collision
// with an existing entry for the same date is resolved by the configured
// conflict policy.
func (e *Engine) ScheduleManual(ctx context.Context, req ManualRequest) (*model.ScheduleEntry, error) {
	cfg, err := e.config(ctx)
	if err != nil {
		return nil, err
	}

	tpl, err := e.store.GetTemplate(ctx, req.TemplateID)
	if err != nil {
		return nil, err
	}
	if tpl == nil {
		return nil, model.NewNotFoundError("template", req.TemplateID)
	}
	if !tpl.Enabled {
		return nil, model.NewValidationError("template is disabled",
			model.FieldError{Field: "template_id", Message: req.TemplateID + " is disabled"})
	}

	slot, err := e.store.GetTimeSlot(ctx, req.SlotID)
	if err != nil {
		return nil, err
	}
	if slot == nil {
		return nil, model.NewNotFoundError("time_slot", req.SlotID)
	}
	if !slot.Enabled {
		return nil, model.NewValidationError("time slot is disabled",
			model.FieldError{Field: "time_slot_id", Message: req.SlotID + " is disabled"})
	}
	if !slot.AllowedTemplates.Contains(tpl.ID) {
		return nil, model.NewValidationError("template not allowed in slot",
			model.FieldError{Field: "template_id", Message: fmt.Sprintf("%s is not allowed in slot %s", tpl.ID, slot.ID)})
	}

	day := e.day(req.Date)
	if req.ScheduledTime != nil {
		at := req.ScheduledTime.In(e.loc)
		if model.DateKey(at) != model.DateKey(day) || !slot.Contains(at) {
			return nil, model.NewValidationError("scheduled time outside slot window",
				model.FieldError{Field: "scheduled_time", Message: fmt.Sprintf("must fall in %s-%s on %s", slot.Start, slot.End, model.DateKey(day))})
		}
	}
	if !slot.ActiveOn(day) {
		return nil, model.NewValidationError("time slot inactive on date",
			model.FieldError{Field: "date", Message: fmt.Sprintf("slot %s does not run on %s", slot.ID, day.Weekday())})
	}

	build := func(d time.Time) *model.ScheduleEntry {
		at := e.randomInstant(d, slot)
		if req.ScheduledTime != nil {
			t := req.ScheduledTime.In(e.loc)
			y, m, dd := d.Date()
			at = time.Date(y, m, dd, t.Hour(), t.Minute(), t.Second(), 0, e.loc)
		}
		rationale := "manually scheduled"
		if req.Note != "" {
			rationale += ": " + req.Note
		}
		return &model.ScheduleEntry{
			ID:            newEntryID(),
			ScheduleDate:  model.DateKey(d),
			SlotID:        slot.ID,
			TemplateID:    tpl.ID,
			ScheduledTime: at,
			Status:        model.ScheduleStatusPending,
			Label:         model.LabelManual,
			Rationale:     rationale,
		}
	}

	entry := build(day)
	err = e.store.CreateScheduleEntry(ctx, entry)
	if err == nil {
		e.recordManual(entry)
		return entry, nil
	}
	if !errors.Is(err, model.ErrDuplicateSchedule) {
		return nil, err
	}

	switch cfg.ConflictPolicy {
	case model.ConflictShift:
		return e.manualShift(ctx, day, slot, build)
	case model.ConflictOverride:
		return e.manualOverride(ctx, entry)
	default:
		return nil, fmt.Errorf("%w: %s is already scheduled", model.ErrScheduleConflict, entry.ScheduleDate)
	}
}

func (e *Engine) manualShift(ctx context.Context, day time.Time, slot *model.TimeSlot, build func(time.Time) *model.ScheduleEntry) (*model.ScheduleEntry, error) {
	for k := 1; k <= maxShiftDays; k++ {
		d := day.AddDate(0, 0, k)
		if !slot.ActiveOn(d) {
			continue
		}
		entry := build(d)
		err := e.store.CreateScheduleEntry(ctx, entry)
		if errors.Is(err, model.ErrDuplicateSchedule) {
			continue
		}
		if err != nil {
			return nil, err
		}
		e.logger.Info("manual schedule shifted", "requested", model.DateKey(day), "date", entry.ScheduleDate)
		e.recordManual(entry)
		return entry, nil
	}
	return nil, fmt.Errorf("%w: no free date within %d days of %s", model.ErrScheduleConflict, maxShiftDays, model.DateKey(day))
}

// manualOverride replaces the existing entry's choice in place. Only a PENDING
// entry that has not been submitted can be overridden.
func (e *Engine) manualOverride(ctx context.Context, replacement *model.ScheduleEntry) (*model.ScheduleEntry, error) {
	existing, err := e.store.GetScheduleEntryByDate(ctx, replacement.ScheduleDate)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("%w: entry for %s vanished during override", model.ErrScheduleConflict, replacement.ScheduleDate)
	}
	if existing.Status != model.ScheduleStatusPending || existing.PostID != "" {
		return nil, fmt.Errorf("%w: entry %s for %s is %s", model.ErrScheduleConflict, existing.ID, existing.ScheduleDate, existing.Status)
	}

	existing.SlotID = replacement.SlotID
	existing.TemplateID = replacement.TemplateID
	existing.ScheduledTime = replacement.ScheduledTime
	existing.Label = model.LabelManual
	existing.UCBScore = 0
	existing.Rationale = replacement.Rationale + " (override)"

	ok, err := e.store.UpdateScheduleEntry(ctx, existing, model.ScheduleStatusPending)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: entry %s changed during override", model.ErrScheduleConflict, existing.ID)
	}
	e.logger.Info("schedule overridden", "entry_id", existing.ID, "date", existing.ScheduleDate,
		"slot_id", existing.SlotID, "template_id", existing.TemplateID)
	e.metrics.Selection(model.LabelManual.String())
	return existing, nil
}

func (e *Engine) recordManual(entry *model.ScheduleEntry) {
	e.metrics.Selection(model.LabelManual.String())
	e.metrics.Transition(model.ScheduleStatusPending.String())
	e.logger.Info("manual entry scheduled", "entry_id", entry.ID, "date", entry.ScheduleDate,
		"slot_id", entry.SlotID, "template_id", entry.TemplateID, "scheduled_time", entry.ScheduledTime)
}

// Cancel moves a non-terminal entry to CANCELLED.
func (e *Engine) Cancel(ctx context.Context, id string) (*model.ScheduleEntry, error) {
	return e.operatorTransition(ctx, id, model.ScheduleStatusCancelled)
}

// MarkPosted records that the publish collaborator posted a GENERATED entry.
func (e *Engine) MarkPosted(ctx context.Context, id string) (*model.ScheduleEntry, error) {
	return e.operatorTransition(ctx, id, model.ScheduleStatusPosted)
}

func (e *Engine) operatorTransition(ctx context.Context, id string, next model.ScheduleStatus) (*model.ScheduleEntry, error) {
	entry, err := e.store.GetScheduleEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, model.NewNotFoundError("schedule", id)
	}

	prev := entry.Status
	if err := transition(entry, next); err != nil {
		return nil, err
	}
	ok, err := e.store.UpdateScheduleEntry(ctx, entry, prev)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: entry %s changed concurrently", model.ErrScheduleConflict, id)
	}

	e.metrics.Transition(next.String())
	e.logger.Info("entry transitioned", "entry_id", id, "from", prev, "to", next)
	return entry, nil
}
