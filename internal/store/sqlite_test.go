package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/me/postpilot/pkg/model"
)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))
	st, err := NewSQLiteStore(":memory:", logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

// seedCatalog stores templates tpl_a and tpl_b and a morning slot allowing both.
func seedCatalog(t *testing.T, st *SQLiteStore) {
	t.Helper()
	ctx := context.Background()
	for _, id := range []string{"tpl_a", "tpl_b"} {
		if err := st.UpsertTemplate(ctx, &model.Template{ID: id, Name: id, PromptSpec: "write about " + id, Enabled: true}); err != nil {
			t.Fatalf("upsert template %s: %v", id, err)
		}
	}
	slot := &model.TimeSlot{
		ID:               "slot_morning",
		Name:             "morning",
		Start:            model.ClockTime(9 * 60),
		End:              model.ClockTime(11 * 60),
		AllowedTemplates: model.NewIDSet("tpl_a", "tpl_b"),
		Weekdays:         model.AllWeekdays,
		Priority:         10,
		Enabled:          true,
	}
	if err := st.UpsertTimeSlot(ctx, slot); err != nil {
		t.Fatalf("upsert slot: %v", err)
	}
}

func sampleEntry(date string, at time.Time) *model.ScheduleEntry {
	return &model.ScheduleEntry{
		ID:            "sch_" + date,
		ScheduleDate:  date,
		SlotID:        "slot_morning",
		TemplateID:    "tpl_a",
		ScheduledTime: at,
		Status:        model.ScheduleStatusPending,
		UCBScore:      0.42,
		Label:         model.LabelExploitation,
		Rationale:     "highest score",
	}
}

// generatedPost creates a GENERATED entry with a performance record for postID.
func generatedPost(t *testing.T, st *SQLiteStore, date, templateID, postID string) *model.ScheduleEntry {
	t.Helper()
	ctx := context.Background()
	at := time.Date(2026, 6, 1, 9, 30, 0, 0, time.UTC)
	e := sampleEntry(date, at)
	e.ID = "sch_" + postID
	e.TemplateID = templateID
	if err := st.CreateScheduleEntry(ctx, e); err != nil {
		t.Fatalf("create entry: %v", err)
	}
	e.PostID = postID
	ok, err := st.CompleteGeneration(ctx, e, model.NewPerformanceRecord("perf_"+postID, e, nil, time.Now().UTC()))
	if err != nil || !ok {
		t.Fatalf("complete generation: ok=%v err=%v", ok, err)
	}
	return e
}

// --- Migration tests ---

func TestMigrate_Idempotent(t *testing.T) {
	st := testStore(t)
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

// --- Template tests ---

func TestUpsertAndGetTemplate(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	tpl := &model.Template{ID: "tpl_1", Name: "tips", PromptSpec: "share a tip", Enabled: true}
	if err := st.UpsertTemplate(ctx, tpl); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := st.GetTemplate(ctx, "tpl_1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("got nil template")
	}
	if got.Name != "tips" || got.PromptSpec != "share a tip" || !got.Enabled {
		t.Errorf("template = %+v", got)
	}

	tpl.Enabled = false
	if err := st.UpsertTemplate(ctx, tpl); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}
	enabled, err := st.ListEnabledTemplates(ctx)
	if err != nil {
		t.Fatalf("list enabled: %v", err)
	}
	if len(enabled) != 0 {
		t.Errorf("enabled templates = %d, want 0", len(enabled))
	}
	all, err := st.ListTemplates(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("templates = %d, want 1", len(all))
	}
}

func TestGetTemplate_NotFound(t *testing.T) {
	st := testStore(t)
	got, err := st.GetTemplate(context.Background(), "tpl_missing")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

func TestUpsertTemplate_Invalid(t *testing.T) {
	st := testStore(t)
	err := st.UpsertTemplate(context.Background(), &model.Template{ID: "tpl_1", Enabled: true})
	if err == nil {
		t.Fatal("expected error for enabled template without prompt")
	}
}

// --- Time slot tests ---

func TestUpsertAndGetTimeSlot(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	seedCatalog(t, st)

	got, err := st.GetTimeSlot(ctx, "slot_morning")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("got nil slot")
	}
	if got.Start.String() != "09:00" || got.End.String() != "11:00" {
		t.Errorf("window = %s-%s, want 09:00-11:00", got.Start, got.End)
	}
	if got.Weekdays != model.AllWeekdays {
		t.Errorf("weekdays = %v, want all", got.Weekdays.Names())
	}
	if !got.AllowedTemplates.Contains("tpl_a") || !got.AllowedTemplates.Contains("tpl_b") {
		t.Errorf("allowed = %v", got.AllowedTemplates.Sorted())
	}

	// Narrowing the allowed set replaces the stored membership.
	got.AllowedTemplates = model.NewIDSet("tpl_b")
	if err := st.UpsertTimeSlot(ctx, got); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}
	slots, err := st.ListEnabledTimeSlots(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(slots) != 1 || slots[0].AllowedTemplates.Len() != 1 || !slots[0].AllowedTemplates.Contains("tpl_b") {
		t.Errorf("after update allowed = %v", slots[0].AllowedTemplates.Sorted())
	}
}

func TestUpsertTimeSlot_RejectsInvertedWindow(t *testing.T) {
	st := testStore(t)
	seedCatalog(t, st)
	slot := &model.TimeSlot{
		ID:               "slot_bad",
		Start:            model.ClockTime(12 * 60),
		End:              model.ClockTime(11 * 60),
		AllowedTemplates: model.NewIDSet("tpl_a"),
		Weekdays:         model.AllWeekdays,
		Enabled:          true,
	}
	if err := st.UpsertTimeSlot(context.Background(), slot); err == nil {
		t.Fatal("expected error for start after end")
	}
}

func TestUpsertTimeSlot_UnknownTemplate(t *testing.T) {
	st := testStore(t)
	slot := &model.TimeSlot{
		ID:               "slot_x",
		Start:            model.ClockTime(60),
		End:              model.ClockTime(120),
		AllowedTemplates: model.NewIDSet("tpl_ghost"),
		Weekdays:         model.AllWeekdays,
		Enabled:          true,
	}
	if err := st.UpsertTimeSlot(context.Background(), slot); err == nil {
		t.Fatal("expected foreign key error")
	}
	got, err := st.GetTimeSlot(context.Background(), "slot_x")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Error("slot should not persist after failed upsert")
	}
}

// --- Engine config tests ---

func TestEngineConfig_MissingThenSaved(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	got, err := st.GetEngineConfig(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil config, got %+v", got)
	}

	cfg := model.DefaultEngineConfig()
	cfg.RetryPolicy = model.RetryBounded
	cfg.ConflictPolicy = model.ConflictShift
	cfg.LatenessBound = model.Duration(45 * time.Minute)
	if err := st.SaveEngineConfig(ctx, &cfg); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err = st.GetEngineConfig(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ExplorationFactor != 1.5 || got.MinTrialsPerTemplate != 5 {
		t.Errorf("numeric fields = %v/%d", got.ExplorationFactor, got.MinTrialsPerTemplate)
	}
	if got.LatenessBound.Std() != 45*time.Minute {
		t.Errorf("lateness = %v, want 45m", got.LatenessBound)
	}
	if got.RetryPolicy != model.RetryBounded || got.ConflictPolicy != model.ConflictShift {
		t.Errorf("policies = %s/%s", got.RetryPolicy, got.ConflictPolicy)
	}
	if !got.AutoScheduleEnabled {
		t.Error("auto schedule should round trip as true")
	}
}

// --- Schedule entry tests ---

func TestCreateAndGetScheduleEntry(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	seedCatalog(t, st)

	loc := time.FixedZone("UTC+2", 2*3600)
	at := time.Date(2026, 6, 1, 9, 45, 10, 0, loc)
	e := sampleEntry("2026-06-01", at)
	if err := st.CreateScheduleEntry(ctx, e); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := st.GetScheduleEntryByDate(ctx, "2026-06-01")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.ID != e.ID {
		t.Fatalf("got %+v", got)
	}
	if !got.ScheduledTime.Equal(at) {
		t.Errorf("scheduled time = %v, want %v", got.ScheduledTime, at)
	}
	if got.Status != model.ScheduleStatusPending || got.Label != model.LabelExploitation {
		t.Errorf("status/label = %s/%s", got.Status, got.Label)
	}
	if got.ExecutedAt != nil {
		t.Errorf("executed_at = %v, want nil", got.ExecutedAt)
	}
}

func TestCreateScheduleEntry_DuplicateDate(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	seedCatalog(t, st)

	at := time.Date(2026, 6, 1, 9, 30, 0, 0, time.UTC)
	if err := st.CreateScheduleEntry(ctx, sampleEntry("2026-06-01", at)); err != nil {
		t.Fatalf("create: %v", err)
	}
	dup := sampleEntry("2026-06-01", at)
	dup.ID = "sch_other"
	err := st.CreateScheduleEntry(ctx, dup)
	if !errors.Is(err, model.ErrDuplicateSchedule) {
		t.Fatalf("err = %v, want ErrDuplicateSchedule", err)
	}
}

func TestListScheduleEntries_Filters(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	seedCatalog(t, st)

	for day := 1; day <= 5; day++ {
		date := fmt.Sprintf("2026-06-%02d", day)
		e := sampleEntry(date, time.Date(2026, 6, day, 10, 0, 0, 0, time.UTC))
		if day == 3 {
			e.Status = model.ScheduleStatusCancelled
		}
		if err := st.CreateScheduleEntry(ctx, e); err != nil {
			t.Fatalf("create %s: %v", date, err)
		}
	}

	entries, total, err := st.ListScheduleEntries(ctx, model.ListOptions{Limit: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 5 || len(entries) != 2 {
		t.Fatalf("total=%d len=%d, want 5/2", total, len(entries))
	}
	if entries[0].ScheduleDate != "2026-06-05" {
		t.Errorf("first date = %s, want newest first", entries[0].ScheduleDate)
	}

	_, total, err = st.ListScheduleEntries(ctx, model.ListOptions{Status: "PENDING", DateStart: "2026-06-02", DateEnd: "2026-06-04"})
	if err != nil {
		t.Fatalf("list filtered: %v", err)
	}
	if total != 2 {
		t.Errorf("filtered total = %d, want 2", total)
	}
}

func TestListDueEntries(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	seedCatalog(t, st)

	past := sampleEntry("2026-06-01", time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC))
	exact := sampleEntry("2026-06-02", time.Date(2026, 6, 2, 9, 0, 0, 0, time.UTC))
	future := sampleEntry("2026-06-03", time.Date(2026, 6, 3, 9, 0, 0, 0, time.UTC))
	done := sampleEntry("2026-05-31", time.Date(2026, 5, 31, 9, 0, 0, 0, time.UTC))
	done.Status = model.ScheduleStatusFailed
	for _, e := range []*model.ScheduleEntry{past, exact, future, done} {
		if err := st.CreateScheduleEntry(ctx, e); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	due, err := st.ListDueEntries(ctx, time.Date(2026, 6, 2, 9, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("due = %d, want 2", len(due))
	}
	if due[0].ID != past.ID || due[1].ID != exact.ID {
		t.Errorf("due order = %s, %s", due[0].ID, due[1].ID)
	}
}

func TestUpdateScheduleEntry_CompareAndSet(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	seedCatalog(t, st)

	e := sampleEntry("2026-06-01", time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC))
	if err := st.CreateScheduleEntry(ctx, e); err != nil {
		t.Fatalf("create: %v", err)
	}

	e.Status = model.ScheduleStatusCancelled
	ok, err := st.UpdateScheduleEntry(ctx, e, model.ScheduleStatusPending)
	if err != nil || !ok {
		t.Fatalf("first update: ok=%v err=%v", ok, err)
	}

	// A second writer that still believes the entry is PENDING loses.
	e.Status = model.ScheduleStatusFailed
	ok, err = st.UpdateScheduleEntry(ctx, e, model.ScheduleStatusPending)
	if err != nil {
		t.Fatalf("second update: %v", err)
	}
	if ok {
		t.Error("stale update should not apply")
	}

	got, _ := st.GetScheduleEntry(ctx, e.ID)
	if got.Status != model.ScheduleStatusCancelled {
		t.Errorf("status = %s, want CANCELLED", got.Status)
	}
}

func TestCompleteGeneration(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	seedCatalog(t, st)

	e := generatedPost(t, st, "2026-06-01", "tpl_a", "post_1")

	got, err := st.GetScheduleEntry(ctx, e.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != model.ScheduleStatusGenerated || got.PostID != "post_1" || got.ExecutedAt == nil {
		t.Errorf("entry = %+v", got)
	}

	rec, err := st.GetPerformanceRecordByPost(ctx, "post_1")
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if rec == nil {
		t.Fatal("record missing")
	}
	if rec.ScheduleID != e.ID || rec.TemplateID != "tpl_a" || rec.Metrics.Views != 0 {
		t.Errorf("record = %+v", rec)
	}
	if rec.PostedHour != 9 || rec.PostedMinute != 30 || rec.PostedWeekday != time.Monday {
		t.Errorf("posted = %d:%d %v", rec.PostedHour, rec.PostedMinute, rec.PostedWeekday)
	}

	// Completing again is a no-op and does not duplicate the record.
	ok, err := st.CompleteGeneration(ctx, e, model.NewPerformanceRecord("perf_again", e, nil, time.Now()))
	if err != nil {
		t.Fatalf("second complete: %v", err)
	}
	if ok {
		t.Error("second completion should report false")
	}
	records, _ := st.ListPerformanceRecords(ctx, "")
	if len(records) != 1 {
		t.Errorf("records = %d, want 1", len(records))
	}
}

// --- Performance / feedback tests ---

func TestApplyFeedback_RecomputesAggregate(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	seedCatalog(t, st)

	generatedPost(t, st, "2026-06-01", "tpl_a", "post_1")
	generatedPost(t, st, "2026-06-02", "tpl_a", "post_2")
	generatedPost(t, st, "2026-06-03", "tpl_a", "post_3")

	at := time.Now()
	if _, err := st.ApplyFeedback(ctx, "post_1", model.Metrics{Views: 100, Likes: 5, Replies: 5}, at); err != nil {
		t.Fatalf("feedback 1: %v", err)
	}
	rec, err := st.ApplyFeedback(ctx, "post_2", model.Metrics{Views: 200, Likes: 8, Shares: 2}, at)
	if err != nil {
		t.Fatalf("feedback 2: %v", err)
	}
	if math.Abs(rec.EngagementRate-5) > 1e-9 {
		t.Errorf("rate = %v, want 5", rec.EngagementRate)
	}
	// Zero views never counts as a trial.
	if _, err := st.ApplyFeedback(ctx, "post_3", model.Metrics{Views: 0, Likes: 3}, at); err != nil {
		t.Fatalf("feedback 3: %v", err)
	}

	tpl, _ := st.GetTemplate(ctx, "tpl_a")
	if tpl.Stats.TotalUses != 2 {
		t.Errorf("uses = %d, want 2", tpl.Stats.TotalUses)
	}
	if tpl.Stats.TotalViews != 300 || tpl.Stats.TotalEngagement != 20 {
		t.Errorf("views/engagement = %d/%d, want 300/20", tpl.Stats.TotalViews, tpl.Stats.TotalEngagement)
	}
	if math.Abs(tpl.Stats.AvgEngagementRate-7.5) > 1e-9 {
		t.Errorf("avg = %v, want 7.5", tpl.Stats.AvgEngagementRate)
	}

	trials, err := st.TotalTrials(ctx)
	if err != nil {
		t.Fatalf("total trials: %v", err)
	}
	if trials != 2 {
		t.Errorf("trials = %d, want 2", trials)
	}
}

func TestApplyFeedback_Idempotent(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	seedCatalog(t, st)
	generatedPost(t, st, "2026-06-01", "tpl_b", "post_1")

	m := model.Metrics{Views: 50, Likes: 5}
	for i := 0; i < 3; i++ {
		if _, err := st.ApplyFeedback(ctx, "post_1", m, time.Now()); err != nil {
			t.Fatalf("feedback %d: %v", i, err)
		}
	}
	tpl, _ := st.GetTemplate(ctx, "tpl_b")
	if tpl.Stats.TotalUses != 1 || tpl.Stats.TotalViews != 50 {
		t.Errorf("stats = %+v, want 1 use / 50 views", tpl.Stats)
	}
	if math.Abs(tpl.Stats.AvgEngagementRate-10) > 1e-9 {
		t.Errorf("avg = %v, want 10", tpl.Stats.AvgEngagementRate)
	}
}

func TestApplyFeedback_UnknownPost(t *testing.T) {
	st := testStore(t)
	_, err := st.ApplyFeedback(context.Background(), "post_ghost", model.Metrics{Views: 1}, time.Now())
	if !errors.Is(err, model.ErrUnknownPost) {
		t.Fatalf("err = %v, want ErrUnknownPost", err)
	}
}

func TestRecomputeTemplateStats_NoRecords(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	seedCatalog(t, st)

	if err := st.RecomputeTemplateStats(ctx, "tpl_a"); err != nil {
		t.Fatalf("recompute: %v", err)
	}
	tpl, _ := st.GetTemplate(ctx, "tpl_a")
	if tpl.Stats != (model.TemplateStats{}) {
		t.Errorf("stats = %+v, want zero", tpl.Stats)
	}
}
