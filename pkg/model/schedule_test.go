package model

import (
	"testing"
	"time"
)

func TestNewPerformanceRecord_PostedFieldsInZone(t *testing.T) {
	zone := time.FixedZone("UTC-4", -4*3600)
	e := &ScheduleEntry{
		ID:            "sch_1",
		PostID:        "post_1",
		TemplateID:    "tpl_a",
		SlotID:        "slot_evening",
		ScheduledTime: time.Date(2026, 6, 2, 1, 10, 0, 0, time.UTC),
		Label:         LabelExploitation,
	}

	tests := []struct {
		name    string
		loc     *time.Location
		hour    int
		weekday time.Weekday
	}{
		{"utc default", nil, 1, time.Tuesday},
		{"local zone", zone, 21, time.Monday},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewPerformanceRecord("perf_1", e, tt.loc, time.Now())
			if r.PostedHour != tt.hour || r.PostedMinute != 10 || r.PostedWeekday != tt.weekday {
				t.Errorf("posted = %02d:%02d %s, want %02d:10 %s",
					r.PostedHour, r.PostedMinute, r.PostedWeekday, tt.hour, tt.weekday)
			}
			if !r.PostedAt.Equal(e.ScheduledTime) {
				t.Errorf("PostedAt = %v, want %v", r.PostedAt, e.ScheduledTime)
			}
		})
	}
}
