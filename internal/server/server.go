package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/me/postpilot/internal/config"
	"github.com/me/postpilot/internal/engine"
	"github.com/me/postpilot/internal/feedback"
	"github.com/me/postpilot/internal/metrics"
	"github.com/me/postpilot/internal/scheduler"
	"github.com/me/postpilot/internal/store"
)

// Server is the postpilot REST API server.
type Server struct {
	router    chi.Router
	logger    *slog.Logger
	config    config.ServerConfig
	startTime time.Time
	store     store.Store
	engine    *engine.Engine
	ingester  *feedback.Ingester
	scheduler scheduler.Scheduler // optional; reported by /health
	metrics   *metrics.Metrics    // optional; /metrics is 404 without it
}

// Option configures optional Server dependencies.
type Option func(*Server)

// WithScheduler marks the background drivers as running in /health.
func WithScheduler(sched scheduler.Scheduler) Option {
	return func(s *Server) {
		s.scheduler = sched
	}
}

// WithMetrics exposes m on /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// New creates a new Server with all routes registered.
func New(cfg config.ServerConfig, st store.Store, eng *engine.Engine, in *feedback.Ingester, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		logger:    logger.With("component", "server"),
		config:    cfg,
		startTime: time.Now(),
		store:     st,
		engine:    eng,
		ingester:  in,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	// Global middleware
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))

	r.Handle("/metrics", s.metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", s.handleDiscovery)
		r.Get("/health", s.handleHealth)

		// Engine triggers
		r.Post("/plan", s.handlePlan)
		r.Post("/execute", s.handleExecute)
		r.Post("/feedback", s.handleFeedback)

		r.Route("/schedules", func(r chi.Router) {
			r.Get("/", s.handleListSchedules)
			r.Post("/", s.handleCreateSchedule)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetSchedule)
				r.Put("/cancel", s.handleCancelSchedule)
				r.Put("/posted", s.handleMarkPosted)
			})
		})

		r.Route("/templates", func(r chi.Router) {
			r.Get("/", s.handleListTemplates)
			r.Get("/{id}/performance", s.handleTemplatePerformance)
		})
		r.Get("/slots", s.handleListSlots)

		r.Get("/config", s.handleGetConfig)
		r.Put("/config", s.handlePutConfig)
	})
}
