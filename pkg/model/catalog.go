package model

import (
	"errors"
	"fmt"
	"time"
)

// Template is a prompt specification the engine can choose for a post.
// Templates are soft-disabled, never deleted while history references them.
type Template struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	PromptSpec string        `json:"prompt_spec"`
	Enabled    bool          `json:"enabled"`
	Stats      TemplateStats `json:"stats"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// TemplateStats is the aggregate over a template's performance records with views > 0.
type TemplateStats struct {
	TotalUses         int     `json:"total_uses"`
	TotalViews        int64   `json:"total_views"`
	TotalEngagement   int64   `json:"total_engagement"`
	AvgEngagementRate float64 `json:"avg_engagement_rate"` // percentage, 0-100
}

// Validate checks the template's required fields.
func (t *Template) Validate() error {
	if t.ID == "" {
		return errors.New("template id is required")
	}
	if t.Enabled && t.PromptSpec == "" {
		return fmt.Errorf("template %s: prompt spec is required while enabled", t.ID)
	}
	return nil
}

// TimeSlot is a recurring daily posting window.
type TimeSlot struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Start            ClockTime  `json:"start_time"`
	End              ClockTime  `json:"end_time"`
	AllowedTemplates IDSet      `json:"allowed_template_ids"`
	Weekdays         WeekdaySet `json:"active_weekdays"`
	Priority         int        `json:"priority"`
	Enabled          bool       `json:"enabled"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Validate enforces start < end and a non-empty allowed set while enabled.
func (s *TimeSlot) Validate() error {
	if s.ID == "" {
		return errors.New("time slot id is required")
	}
	if s.Start < 0 || s.End > MinutesPerDay {
		return fmt.Errorf("time slot %s: window %s-%s out of range", s.ID, s.Start, s.End)
	}
	if s.Start >= s.End {
		return fmt.Errorf("time slot %s: start %s must be before end %s", s.ID, s.Start, s.End)
	}
	if s.Enabled && s.AllowedTemplates.Len() == 0 {
		return fmt.Errorf("time slot %s: allowed templates must not be empty while enabled", s.ID)
	}
	return nil
}

// Window returns the slot's [start, end) instants on date's calendar day.
func (s *TimeSlot) Window(date time.Time) (time.Time, time.Time) {
	return s.Start.On(date), s.End.On(date)
}

// Contains reports whether t falls inside the slot window on t's own day.
func (s *TimeSlot) Contains(t time.Time) bool {
	start, end := s.Window(t)
	return !t.Before(start) && t.Before(end)
}

// ActiveOn reports whether the slot runs on date's weekday.
func (s *TimeSlot) ActiveOn(date time.Time) bool {
	return s.Weekdays.Contains(date.Weekday())
}
