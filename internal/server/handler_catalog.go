package server

import (
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/me/postpilot/pkg/model"
)

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	tpls, err := s.store.ListTemplates(r.Context())
	if err != nil {
		respondErr(w, reqID, err)
		return
	}
	if tpls == nil {
		tpls = []*model.Template{}
	}
	if r.URL.Query().Get("sort") == "engagement" {
		sort.SliceStable(tpls, func(i, j int) bool {
			a, b := tpls[i].Stats, tpls[j].Stats
			if a.AvgEngagementRate != b.AvgEngagementRate {
				return a.AvgEngagementRate > b.AvgEngagementRate
			}
			return a.TotalUses > b.TotalUses
		})
	}
	respondOK(w, reqID, tpls)
}

type templatePerformance struct {
	Template *model.Template           `json:"template"`
	Records  []*model.PerformanceRecord `json:"records"`
}

func (s *Server) handleTemplatePerformance(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	tpl, err := s.store.GetTemplate(r.Context(), id)
	if err != nil {
		respondErr(w, reqID, err)
		return
	}
	if tpl == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("template", id))
		return
	}
	recs, err := s.store.ListPerformanceRecords(r.Context(), id)
	if err != nil {
		respondErr(w, reqID, err)
		return
	}
	if recs == nil {
		recs = []*model.PerformanceRecord{}
	}
	respondOK(w, reqID, templatePerformance{Template: tpl, Records: recs})
}

func (s *Server) handleListSlots(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	slots, err := s.store.ListTimeSlots(r.Context())
	if err != nil {
		respondErr(w, reqID, err)
		return
	}
	if slots == nil {
		slots = []*model.TimeSlot{}
	}
	respondOK(w, reqID, slots)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	cfg, err := s.store.GetEngineConfig(r.Context())
	if err != nil {
		respondErr(w, reqID, err)
		return
	}
	if cfg == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("config", "engine"))
		return
	}
	respondOK(w, reqID, cfg)
}

// handlePutConfig merges the body over the stored config (or the defaults
// when none is stored yet), validates and saves it.
func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	current, err := s.store.GetEngineConfig(r.Context())
	if err != nil {
		respondErr(w, reqID, err)
		return
	}
	cfg := model.DefaultEngineConfig()
	if current != nil {
		cfg = *current
	}
	if apiErr := decodeBody(r, &cfg); apiErr != nil {
		respondError(w, reqID, http.StatusBadRequest, apiErr)
		return
	}
	if err := cfg.Validate(); err != nil {
		respondError(w, reqID, http.StatusBadRequest,
			model.NewValidationError("invalid engine config", model.FieldError{Message: err.Error()}))
		return
	}
	cfg.UpdatedAt = time.Now().UTC()
	if err := s.store.SaveEngineConfig(r.Context(), &cfg); err != nil {
		respondErr(w, reqID, err)
		return
	}
	s.logger.Info("engine config updated",
		"retry_policy", cfg.RetryPolicy,
		"conflict_policy", cfg.ConflictPolicy,
		"exploration_factor", cfg.ExplorationFactor,
	)
	respondOK(w, reqID, cfg)
}
