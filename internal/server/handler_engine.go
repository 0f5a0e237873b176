package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/me/postpilot/internal/engine"
	"github.com/me/postpilot/internal/feedback"
	"github.com/me/postpilot/pkg/model"
)

type planResponse struct {
	Date    string               `json:"date"`
	Entry   *model.ScheduleEntry `json:"entry,omitempty"`
	Skipped bool                 `json:"skipped"`
	Reason  string               `json:"reason,omitempty"`
	Message string               `json:"message,omitempty"`
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var req struct {
		Date string `json:"date"`
	}
	if apiErr := decodeBody(r, &req); apiErr != nil {
		respondError(w, reqID, http.StatusBadRequest, apiErr)
		return
	}

	date := s.engine.Now()
	if req.Date != "" {
		d, err := model.ParseDate(req.Date, s.engine.Location())
		if err != nil {
			respondError(w, reqID, http.StatusBadRequest,
				model.NewValidationError("invalid date", model.FieldError{Field: "date", Message: err.Error()}))
			return
		}
		date = d
	}

	resp := planResponse{Date: model.DateKey(date.In(s.engine.Location()))}
	entry, err := s.engine.Plan(r.Context(), date)
	switch {
	case errors.Is(err, model.ErrPlanningSkipped):
		resp.Skipped = true
		resp.Reason = engine.SkipReason(err)
		resp.Message = err.Error()
	case err != nil:
		respondErr(w, reqID, err)
		return
	default:
		resp.Entry = entry
	}
	respondOK(w, reqID, resp)
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var req struct {
		Now *time.Time `json:"now"`
	}
	if apiErr := decodeBody(r, &req); apiErr != nil {
		respondError(w, reqID, http.StatusBadRequest, apiErr)
		return
	}
	now := s.engine.Now()
	if req.Now != nil {
		now = *req.Now
	}

	report, err := s.engine.ExecuteDue(r.Context(), now)
	if err != nil {
		respondErr(w, reqID, err)
		return
	}
	respondOK(w, reqID, report)
}

type feedbackRequest struct {
	PostID  string          `json:"post_id"`
	Metrics *model.Metrics  `json:"metrics"`
	Items   []feedback.Item `json:"items"`
}

type feedbackResponse struct {
	PostID string                   `json:"post_id"`
	Status string                   `json:"status"`
	Record *model.PerformanceRecord `json:"record,omitempty"`
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var req feedbackRequest
	if apiErr := decodeBody(r, &req); apiErr != nil {
		respondError(w, reqID, http.StatusBadRequest, apiErr)
		return
	}

	if len(req.Items) > 0 {
		if req.PostID != "" {
			respondError(w, reqID, http.StatusBadRequest,
				model.NewValidationError("send either post_id and metrics or items, not both"))
			return
		}
		respondOK(w, reqID, s.ingester.IngestBatch(r.Context(), req.Items))
		return
	}

	if req.Metrics == nil {
		respondError(w, reqID, http.StatusBadRequest,
			model.NewValidationError("missing required field",
				model.FieldError{Field: "metrics", Message: "metrics or items is required"}))
		return
	}
	rec, err := s.ingester.Ingest(r.Context(), req.PostID, *req.Metrics)
	if err != nil {
		respondErr(w, reqID, err)
		return
	}
	resp := feedbackResponse{PostID: req.PostID, Status: "applied", Record: rec}
	if rec == nil {
		resp.Status = "unknown_post"
	}
	respondOK(w, reqID, resp)
}
