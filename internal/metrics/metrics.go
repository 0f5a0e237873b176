// Package metrics holds the Prometheus collectors for postpilot.
// All methods are safe to call on a nil *Metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "postpilot"

// Metrics groups the collectors registered on one registry.
type Metrics struct {
	registry *prometheus.Registry

	selections        *prometheus.CounterVec
	planSkips         *prometheus.CounterVec
	transitions       *prometheus.CounterVec
	submissions       *prometheus.CounterVec
	submitDuration    prometheus.Histogram
	feedbackTotal     *prometheus.CounterVec
	tickDuration      *prometheus.HistogramVec
	configReloads     *prometheus.CounterVec
	lastExecuteTickTS prometheus.Gauge
}

// New creates a registry with Go and process collectors plus postpilot's own.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		selections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "selections_total",
			Help:      "Template selections by label",
		}, []string{"label"}), // RANDOM, EXPLORATION, EXPLOITATION, MANUAL
		planSkips: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plan_skipped_total",
			Help:      "Dates left unplanned, by reason",
		}, []string{"reason"}),
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schedule_transitions_total",
			Help:      "Schedule entry state transitions",
		}, []string{"to"}),
		submissions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_submissions_total",
			Help:      "Content generation submissions by outcome",
		}, []string{"status"}),
		submitDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_submit_duration_seconds",
			Help:      "Duration of content generation submissions",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		feedbackTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feedback_ingested_total",
			Help:      "Feedback items by outcome",
		}, []string{"status"}), // applied, unknown_post, error
		tickDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Duration of scheduler ticks",
			Buckets:   prometheus.DefBuckets,
		}, []string{"driver"}), // plan, execute
		configReloads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "config_reloads_total",
			Help:      "Engine config file reloads by outcome",
		}, []string{"status"}),
		lastExecuteTickTS: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_execute_tick_timestamp_seconds",
			Help:      "Unix time of the last completed execute tick",
		}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Selection(label string) {
	if m == nil {
		return
	}
	m.selections.WithLabelValues(label).Inc()
}

func (m *Metrics) PlanSkipped(reason string) {
	if m == nil {
		return
	}
	m.planSkips.WithLabelValues(reason).Inc()
}

func (m *Metrics) Transition(to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(to).Inc()
}

// Submission records one generation attempt.
func (m *Metrics) Submission(ok bool, d time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "error"
	}
	m.submissions.WithLabelValues(status).Inc()
	m.submitDuration.Observe(d.Seconds())
}

func (m *Metrics) Feedback(status string) {
	if m == nil {
		return
	}
	m.feedbackTotal.WithLabelValues(status).Inc()
}

// Tick records a scheduler tick for driver ("plan" or "execute").
func (m *Metrics) Tick(driver string, d time.Duration) {
	if m == nil {
		return
	}
	m.tickDuration.WithLabelValues(driver).Observe(d.Seconds())
	if driver == "execute" {
		m.lastExecuteTickTS.SetToCurrentTime()
	}
}

func (m *Metrics) ConfigReload(ok bool) {
	if m == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "error"
	}
	m.configReloads.WithLabelValues(status).Inc()
}
