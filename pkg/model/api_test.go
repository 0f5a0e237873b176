package model

import "testing"

func TestListOptions_Clamp(t *testing.T) {
	tests := []struct {
		name       string
		input      ListOptions
		wantLimit  int
		wantOffset int
	}{
		{"defaults", ListOptions{}, 20, 0},
		{"negative limit", ListOptions{Limit: -5}, 20, 0},
		{"over max", ListOptions{Limit: 500}, 100, 0},
		{"negative offset", ListOptions{Limit: 10, Offset: -3}, 10, 0},
		{"filters untouched", ListOptions{Limit: 50, Offset: 10, Status: "PENDING", DateStart: "2026-01-01"}, 50, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := tt.input
			in.Clamp()
			if in.Limit != tt.wantLimit {
				t.Errorf("Limit = %d, want %d", in.Limit, tt.wantLimit)
			}
			if in.Offset != tt.wantOffset {
				t.Errorf("Offset = %d, want %d", in.Offset, tt.wantOffset)
			}
			if in.Status != tt.input.Status || in.DateStart != tt.input.DateStart {
				t.Error("Clamp must not touch filters")
			}
		})
	}
}

func TestPageOf(t *testing.T) {
	opts := ListOptions{Limit: 2, Offset: 2}
	if pg := PageOf(opts, 2, 5); !pg.HasMore || pg.Total != 5 || pg.Limit != 2 || pg.Offset != 2 {
		t.Errorf("middle page = %+v", pg)
	}
	if pg := PageOf(ListOptions{Limit: 2, Offset: 4}, 1, 5); pg.HasMore {
		t.Errorf("last page = %+v, want HasMore false", pg)
	}
}
