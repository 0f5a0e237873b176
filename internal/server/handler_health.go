package server

import (
	"context"
	"net/http"
	"runtime"
	"time"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

type healthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	Uptime    string `json:"uptime"`
	Scheduler string `json:"scheduler"`
	Store     string `json:"store"`
	Config    string `json:"config"`
	Timezone  string `json:"timezone"`
}

type pinger interface {
	Ping(ctx context.Context) error
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	resp := healthResponse{
		Status:    "healthy",
		Version:   Version,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Scheduler: "disabled",
		Store:     "ok",
		Config:    "missing",
		Timezone:  s.engine.Location().String(),
	}
	if s.scheduler != nil {
		resp.Scheduler = "running"
	}
	if p, ok := s.store.(pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			resp.Status, resp.Store = "degraded", err.Error()
		}
	}
	if cfg, err := s.store.GetEngineConfig(r.Context()); err == nil && cfg != nil {
		resp.Config = "loaded"
	}
	respondOK(w, reqID, resp)
}
