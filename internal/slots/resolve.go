// Package slots picks the posting window for a date.
package slots

import (
	"math/rand/v2"
	"sort"
	"time"

	"github.com/me/postpilot/pkg/model"
)

// EligibleTemplates returns the slot's allowed templates that are currently enabled.
func EligibleTemplates(slot *model.TimeSlot, enabledTemplates model.IDSet) model.IDSet {
	return slot.AllowedTemplates.Intersect(enabledTemplates)
}

// Eligible filters slots that are enabled, active on date's weekday, and allow
// at least one enabled template. The result is ordered by priority (highest
// first) then by id.
func Eligible(date time.Time, slots []*model.TimeSlot, enabledTemplates model.IDSet) []*model.TimeSlot {
	var out []*model.TimeSlot
	for _, s := range slots {
		if s == nil || !s.Enabled || !s.ActiveOn(date) {
			continue
		}
		if EligibleTemplates(s, enabledTemplates).Len() == 0 {
			continue
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Resolve returns the eligible slot with the highest priority on date.
// Ties go to the lexicographically smallest id. It returns
// model.ErrNoEligibleSlot when nothing survives the filter.
func Resolve(date time.Time, slots []*model.TimeSlot, enabledTemplates model.IDSet) (*model.TimeSlot, error) {
	eligible := Eligible(date, slots, enabledTemplates)
	if len(eligible) == 0 {
		return nil, model.ErrNoEligibleSlot
	}
	return eligible[0], nil
}

// NextSlot finds the eligible slot on after's day that starts strictly after
// `after` and still allows templateID. Slots are tried in start-time order.
func NextSlot(after time.Time, slots []*model.TimeSlot, templateID string, enabledTemplates model.IDSet) (*model.TimeSlot, error) {
	var best *model.TimeSlot
	for _, s := range Eligible(after, slots, enabledTemplates) {
		if !EligibleTemplates(s, enabledTemplates).Contains(templateID) {
			continue
		}
		start, _ := s.Window(after)
		if !start.After(after) {
			continue
		}
		if best == nil || s.Start < best.Start || (s.Start == best.Start && s.ID < best.ID) {
			best = s
		}
	}
	if best == nil {
		return nil, model.ErrNoEligibleSlot
	}
	return best, nil
}

// RandomInstant picks a uniformly random second in the slot's [start, end)
// window on date's day.
func RandomInstant(rng *rand.Rand, date time.Time, slot *model.TimeSlot) time.Time {
	start, end := slot.Window(date)
	span := int64(end.Sub(start) / time.Second)
	if span <= 0 {
		return start
	}
	return start.Add(time.Duration(rng.Int64N(span)) * time.Second)
}
