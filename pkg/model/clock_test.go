package model

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseClockTime(t *testing.T) {
	tests := []struct {
		in      string
		want    ClockTime
		wantErr bool
	}{
		{"09:30", 9*60 + 30, false},
		{"00:00", 0, false},
		{"24:00", MinutesPerDay, false},
		{" 7:05 ", 7*60 + 5, false},
		{"24:01", 0, true},
		{"12:60", 0, true},
		{"1230", 0, true},
		{"ab:cd", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseClockTime(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseClockTime(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseClockTime(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestClockTime_On(t *testing.T) {
	loc := time.FixedZone("test", 2*3600)
	date := time.Date(2026, 3, 4, 17, 45, 12, 0, loc)
	ct, _ := ParseClockTime("08:15")
	got := ct.On(date)
	want := time.Date(2026, 3, 4, 8, 15, 0, 0, loc)
	if !got.Equal(want) {
		t.Errorf("On = %v, want %v", got, want)
	}
}

func TestWeekdaySet_ParseAndJSON(t *testing.T) {
	s, err := ParseWeekdays([]string{"mon", "Wednesday", "5"})
	if err != nil {
		t.Fatalf("ParseWeekdays: %v", err)
	}
	for _, d := range []time.Weekday{time.Monday, time.Wednesday, time.Friday} {
		if !s.Contains(d) {
			t.Errorf("set missing %s", d)
		}
	}
	if s.Contains(time.Sunday) {
		t.Error("set should not contain Sunday")
	}

	b, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `["mon","wed","fri"]` {
		t.Errorf("json = %s", b)
	}

	var back WeekdaySet
	if err := json.Unmarshal([]byte(`["mon", 3, "fri"]`), &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back != s {
		t.Errorf("round trip = %v, want %v", back.Names(), s.Names())
	}

	if _, err := ParseWeekdays([]string{"someday"}); err == nil {
		t.Error("expected error for unknown weekday")
	}
}

func TestIDSet(t *testing.T) {
	a := NewIDSet("t3", "t1", " ", "t2")
	if a.Len() != 3 {
		t.Fatalf("Len = %d, want 3", a.Len())
	}
	b := NewIDSet("t2", "t3", "t9")
	got := a.Intersect(b).Sorted()
	if len(got) != 2 || got[0] != "t2" || got[1] != "t3" {
		t.Errorf("Intersect = %v", got)
	}
	var nilSet IDSet
	if nilSet.Contains("t1") || nilSet.Len() != 0 {
		t.Error("nil set should be empty")
	}
	raw, _ := json.Marshal(a)
	if string(raw) != `["t1","t2","t3"]` {
		t.Errorf("json = %s", raw)
	}
}

func TestDuration_Text(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("90s")); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if d.Std() != 90*time.Second {
		t.Errorf("d = %s", d)
	}
	if err := d.UnmarshalText([]byte("soon")); err == nil {
		t.Error("expected parse error")
	}
}

func TestDateKey(t *testing.T) {
	loc := time.FixedZone("minus5", -5*3600)
	// 02:00 UTC on the 5th is still the 4th at UTC-5.
	inst := time.Date(2026, 3, 5, 2, 0, 0, 0, time.UTC).In(loc)
	if got := DateKey(inst); got != "2026-03-04" {
		t.Errorf("DateKey = %s, want 2026-03-04", got)
	}
	d, err := ParseDate("2026-03-04", loc)
	if err != nil {
		t.Fatalf("ParseDate: %v", err)
	}
	if d.Location() != loc || d.Hour() != 0 {
		t.Errorf("ParseDate = %v", d)
	}
}
