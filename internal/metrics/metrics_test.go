package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()
	m.Selection("EXPLORATION")
	m.Selection("EXPLORATION")
	m.Selection("EXPLOITATION")
	m.Feedback("unknown_post")

	if got := testutil.ToFloat64(m.selections.WithLabelValues("EXPLORATION")); got != 2 {
		t.Errorf("exploration = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.feedbackTotal.WithLabelValues("unknown_post")); got != 1 {
		t.Errorf("unknown_post = %v, want 1", got)
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.Selection("RANDOM")
	m.PlanSkipped("no_slot")
	m.Transition("FAILED")
	m.Submission(false, time.Second)
	m.Feedback("applied")
	m.Tick("plan", time.Millisecond)
	m.ConfigReload(true)
	if m.Registry() != nil {
		t.Error("nil metrics should have nil registry")
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.Transition("GENERATED")
	m.Tick("execute", 10*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		`postpilot_schedule_transitions_total{to="GENERATED"} 1`,
		"postpilot_last_execute_tick_timestamp_seconds",
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}
