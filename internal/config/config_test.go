package config

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/me/postpilot/internal/store"
	"github.com/me/postpilot/pkg/model"
)

const sampleYAML = `
engine:
  exploration_factor: 2.0
  lateness_bound: 45m
  retry_policy: bounded
  max_retries: 3
  conflict_policy: shift
templates:
  - id: tips
    prompt_spec: "Share a tip for $(job.weekday)"
  - id: story
    prompt_spec: "Tell a short story"
    enabled: false
slots:
  - id: morning
    start_time: "09:00"
    end_time: "11:30"
    allowed_template_ids: [tips, story]
    active_weekdays: [mon, tue, wed, thu, fri]
    priority: 5
`

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"POSTPILOT_ADDR":            ":9090",
		"POSTPILOT_DB":              "/tmp/pp.db",
		"POSTPILOT_PLAN_INTERVAL":   "15m",
		"POSTPILOT_PLAN_AHEAD_DAYS": "3",
		"POSTPILOT_TIMEZONE":        "Europe/Berlin",
	}
	cfg := DefaultServerConfig()
	err := cfg.ApplyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	if err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.Addr != ":9090" || cfg.DBPath != "/tmp/pp.db" || cfg.PlanInterval != 15*time.Minute || cfg.PlanAheadDays != 3 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("unset variables must keep defaults, log level = %q", cfg.LogLevel)
	}

	bad := DefaultServerConfig()
	err = bad.ApplyEnv(func(k string) (string, bool) {
		if k == "POSTPILOT_PLAN_INTERVAL" {
			return "soon", true
		}
		return "", false
	})
	if err == nil {
		t.Error("expected error for bad duration")
	}
}

func TestLocation(t *testing.T) {
	cfg := DefaultServerConfig()
	loc, err := cfg.Location()
	if err != nil || loc != time.UTC {
		t.Fatalf("default location = %v, %v", loc, err)
	}
	cfg.Timezone = "Not/AZone"
	if _, err := cfg.Location(); err == nil {
		t.Error("expected error for unknown zone")
	}
}

func TestParse(t *testing.T) {
	f, err := Parse([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if f.Engine == nil {
		t.Fatal("engine section missing")
	}
	if f.Engine.ExplorationFactor != 2.0 || f.Engine.MaxRetries != 3 {
		t.Errorf("engine = %+v", f.Engine)
	}
	if f.Engine.LatenessBound.Std() != 45*time.Minute {
		t.Errorf("lateness = %v", f.Engine.LatenessBound)
	}
	// Unset fields keep their defaults.
	if f.Engine.MinTrialsPerTemplate != 5 || f.Engine.PollInterval.Std() != 5*time.Minute {
		t.Errorf("defaults lost: %+v", f.Engine)
	}
	if len(f.Templates) != 2 || len(f.Slots) != 1 {
		t.Fatalf("seeds = %d templates, %d slots", len(f.Templates), len(f.Slots))
	}
	slot, err := f.Slots[0].toModel()
	if err != nil {
		t.Fatalf("slot: %v", err)
	}
	if slot.End.String() != "11:30" || slot.Weekdays.Contains(time.Saturday) || !slot.Weekdays.Contains(time.Monday) {
		t.Errorf("slot = %+v", slot)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"missing policy", "engine:\n  exploration_factor: 1\n", "engine"},
		{"bad exploration", "engine:\n  exploration_factor: -1\n  retry_policy: none\n  conflict_policy: reject\n", "engine"},
		{"inverted slot", "slots:\n  - id: s\n    start_time: \"12:00\"\n    end_time: \"11:00\"\n    allowed_template_ids: [a]\n", "slots[0]"},
		{"bad weekday", "slots:\n  - id: s\n    start_time: \"09:00\"\n    end_time: \"11:00\"\n    allowed_template_ids: [a]\n    active_weekdays: [someday]\n", "slots[0]"},
		{"template without id", "templates:\n  - prompt_spec: x\n", "templates[0]"},
		{"not yaml", "engine: [", "parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func testStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLiteStore(":memory:", slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestApply(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	f, err := Parse([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := f.Apply(ctx, st); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	cfg, _ := st.GetEngineConfig(ctx)
	if cfg == nil || cfg.RetryPolicy != model.RetryBounded || cfg.ConflictPolicy != model.ConflictShift {
		t.Errorf("stored config = %+v", cfg)
	}
	story, _ := st.GetTemplate(ctx, "story")
	if story == nil || story.Enabled {
		t.Errorf("story = %+v, want disabled", story)
	}
	slot, _ := st.GetTimeSlot(ctx, "morning")
	if slot == nil || slot.AllowedTemplates.Len() != 2 || slot.Priority != 5 {
		t.Errorf("slot = %+v", slot)
	}
}

func TestWatcher_Reload(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "postpilot.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	w := NewWatcher(path, st, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if !w.Reload(ctx) {
		t.Fatal("initial reload failed")
	}

	// A broken file keeps the stored config.
	if err := os.WriteFile(path, []byte("engine:\n  exploration_factor: -3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if w.Reload(ctx) {
		t.Error("invalid file should not reload")
	}
	cfg, _ := st.GetEngineConfig(ctx)
	if cfg.ExplorationFactor != 2.0 {
		t.Errorf("exploration = %v, want last good 2.0", cfg.ExplorationFactor)
	}
	if w.Reloads() != 1 {
		t.Errorf("reloads = %d, want 1", w.Reloads())
	}
}

func TestWatcher_Run(t *testing.T) {
	st := testStore(t)
	path := filepath.Join(t.TempDir(), "postpilot.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	w := NewWatcher(path, st, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	w.debounce = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	updated := strings.Replace(sampleYAML, "exploration_factor: 2.0", "exploration_factor: 0.5", 1)
	deadline := time.Now().Add(5 * time.Second)
	for {
		// Rewrite until the watcher is registered and picks the change up.
		if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
			t.Fatal(err)
		}
		time.Sleep(50 * time.Millisecond)
		cfg, _ := st.GetEngineConfig(context.Background())
		if cfg != nil && cfg.ExplorationFactor == 0.5 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("config change was not picked up")
		}
	}
}
