package slots

import (
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/me/postpilot/pkg/model"
)

func slot(t *testing.T, id, start, end string, priority int, allowed []string, days ...time.Weekday) *model.TimeSlot {
	t.Helper()
	s, err := model.ParseClockTime(start)
	if err != nil {
		t.Fatal(err)
	}
	e, err := model.ParseClockTime(end)
	if err != nil {
		t.Fatal(err)
	}
	wd := model.AllWeekdays
	if len(days) > 0 {
		wd = model.NewWeekdaySet(days...)
	}
	return &model.TimeSlot{
		ID:               id,
		Start:            s,
		End:              e,
		AllowedTemplates: model.NewIDSet(allowed...),
		Weekdays:         wd,
		Priority:         priority,
		Enabled:          true,
	}
}

// 2026-06-01 is a Monday.
var monday = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

func TestResolve_HighestPriorityWins(t *testing.T) {
	slots := []*model.TimeSlot{
		slot(t, "low", "08:00", "09:00", 1, []string{"t1"}),
		slot(t, "high", "18:00", "20:00", 9, []string{"t1"}),
		slot(t, "mid", "12:00", "13:00", 5, []string{"t1"}),
	}
	got, err := Resolve(monday, slots, model.NewIDSet("t1"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.ID != "high" {
		t.Errorf("got %q, want high", got.ID)
	}
}

func TestResolve_WeekdayFilter(t *testing.T) {
	slots := []*model.TimeSlot{
		slot(t, "weekend", "10:00", "11:00", 10, []string{"t1"}, time.Saturday, time.Sunday),
		slot(t, "weekday", "10:00", "11:00", 1, []string{"t1"}, time.Monday),
	}
	got, err := Resolve(monday, slots, model.NewIDSet("t1"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.ID != "weekday" {
		t.Errorf("got %q, want weekday", got.ID)
	}
}

func TestResolve_RequiresEnabledAllowedTemplate(t *testing.T) {
	slots := []*model.TimeSlot{
		slot(t, "disabled-templates", "10:00", "11:00", 10, []string{"gone"}),
		slot(t, "ok", "10:00", "11:00", 1, []string{"t1", "gone"}),
	}
	got, err := Resolve(monday, slots, model.NewIDSet("t1"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.ID != "ok" {
		t.Errorf("got %q, want ok", got.ID)
	}
}

func TestResolve_TieIsDeterministic(t *testing.T) {
	for i := 0; i < 10; i++ {
		slots := []*model.TimeSlot{
			slot(t, "zeta", "10:00", "11:00", 3, []string{"t1"}),
			slot(t, "alpha", "12:00", "13:00", 3, []string{"t1"}),
			slot(t, "mike", "14:00", "15:00", 3, []string{"t1"}),
		}
		// Rotate input order; the answer must not move.
		slots = append(slots[i%3:], slots[:i%3]...)
		got, err := Resolve(monday, slots, model.NewIDSet("t1"))
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if got.ID != "alpha" {
			t.Fatalf("got %q, want alpha", got.ID)
		}
	}
}

func TestResolve_NoEligibleSlot(t *testing.T) {
	disabled := slot(t, "off", "10:00", "11:00", 1, []string{"t1"})
	disabled.Enabled = false
	tests := []struct {
		name    string
		slots   []*model.TimeSlot
		enabled model.IDSet
	}{
		{"no slots", nil, model.NewIDSet("t1")},
		{"disabled slot", []*model.TimeSlot{disabled}, model.NewIDSet("t1")},
		{"no enabled templates", []*model.TimeSlot{slot(t, "s", "10:00", "11:00", 1, []string{"t1"})}, model.NewIDSet()},
		{"wrong weekday", []*model.TimeSlot{slot(t, "s", "10:00", "11:00", 1, []string{"t1"}, time.Friday)}, model.NewIDSet("t1")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(monday, tt.slots, tt.enabled)
			if !errors.Is(err, model.ErrNoEligibleSlot) {
				t.Errorf("err = %v, want ErrNoEligibleSlot", err)
			}
		})
	}
}

func TestRandomInstant_InsideWindow(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	s := slot(t, "s", "09:00", "09:05", 1, []string{"t1"})
	day := time.Date(2026, 6, 1, 15, 0, 0, 0, time.UTC)
	start, end := s.Window(day)
	seen := map[time.Time]bool{}
	for i := 0; i < 2000; i++ {
		got := RandomInstant(rng, day, s)
		if got.Before(start) || !got.Before(end) {
			t.Fatalf("instant %v outside [%v, %v)", got, start, end)
		}
		seen[got] = true
	}
	if len(seen) < 100 {
		t.Errorf("only %d distinct instants, expected spread over the window", len(seen))
	}
}

func TestNextSlot(t *testing.T) {
	slots := []*model.TimeSlot{
		slot(t, "morning", "08:00", "09:00", 5, []string{"t1"}),
		slot(t, "noon", "12:00", "13:00", 1, []string{"t2"}),
		slot(t, "evening", "18:00", "19:00", 1, []string{"t1", "t2"}),
		slot(t, "late", "21:00", "22:00", 1, []string{"t1"}),
	}
	enabled := model.NewIDSet("t1", "t2")

	after := monday.Add(8*time.Hour + 30*time.Minute)
	got, err := NextSlot(after, slots, "t1", enabled)
	if err != nil {
		t.Fatalf("NextSlot: %v", err)
	}
	if got.ID != "evening" {
		t.Errorf("got %q, want evening (noon does not allow t1)", got.ID)
	}

	_, err = NextSlot(monday.Add(21*time.Hour+10*time.Minute), slots, "t1", enabled)
	if !errors.Is(err, model.ErrNoEligibleSlot) {
		t.Errorf("err = %v, want ErrNoEligibleSlot", err)
	}
}
