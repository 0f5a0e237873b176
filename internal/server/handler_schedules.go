package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/me/postpilot/internal/engine"
	"github.com/me/postpilot/pkg/model"
)

func (s *Server) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	opts, apiErr := parseListOptions(r)
	if apiErr != nil {
		respondError(w, reqID, http.StatusBadRequest, apiErr)
		return
	}

	entries, total, err := s.store.ListScheduleEntries(r.Context(), opts)
	if err != nil {
		respondErr(w, reqID, err)
		return
	}
	if entries == nil {
		entries = []*model.ScheduleEntry{}
	}
	respondList(w, reqID, entries, model.PageOf(opts, len(entries), total))
}

func parseListOptions(r *http.Request) (model.ListOptions, *model.APIError) {
	q := r.URL.Query()
	opts := model.DefaultListOptions()

	var details []model.FieldError
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			details = append(details, model.FieldError{Field: "limit", Message: "must be an integer"})
		}
		opts.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			details = append(details, model.FieldError{Field: "offset", Message: "must be an integer"})
		}
		opts.Offset = n
	}
	if v := q.Get("status"); v != "" {
		if !model.ScheduleStatus(v).IsValid() {
			details = append(details, model.FieldError{Field: "status", Message: "unknown status " + v})
		}
		opts.Status = v
	}
	for field, dst := range map[string]*string{"from": &opts.DateStart, "to": &opts.DateEnd} {
		v := q.Get(field)
		if v == "" {
			continue
		}
		if _, err := model.ParseDate(v, time.UTC); err != nil {
			details = append(details, model.FieldError{Field: field, Message: err.Error()})
		}
		*dst = v
	}
	if len(details) > 0 {
		return opts, model.NewValidationError("invalid query parameters", details...)
	}
	opts.Clamp()
	return opts, nil
}

func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	entry, err := s.store.GetScheduleEntry(r.Context(), id)
	if err != nil {
		respondErr(w, reqID, err)
		return
	}
	if entry == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("schedule", id))
		return
	}
	respondOK(w, reqID, entry)
}

type manualScheduleRequest struct {
	Date          string     `json:"date"`
	SlotID        string     `json:"time_slot_id"`
	TemplateID    string     `json:"template_id"`
	ScheduledTime *time.Time `json:"scheduled_time"`
	Note          string     `json:"note"`
}

func (s *Server) handleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var req manualScheduleRequest
	if apiErr := decodeBody(r, &req); apiErr != nil {
		respondError(w, reqID, http.StatusBadRequest, apiErr)
		return
	}

	var details []model.FieldError
	if req.Date == "" {
		details = append(details, model.FieldError{Field: "date", Message: "date is required"})
	}
	if req.SlotID == "" {
		details = append(details, model.FieldError{Field: "time_slot_id", Message: "time_slot_id is required"})
	}
	if req.TemplateID == "" {
		details = append(details, model.FieldError{Field: "template_id", Message: "template_id is required"})
	}
	if len(details) > 0 {
		respondError(w, reqID, http.StatusBadRequest, model.NewValidationError("missing required field", details...))
		return
	}
	date, err := model.ParseDate(req.Date, s.engine.Location())
	if err != nil {
		respondError(w, reqID, http.StatusBadRequest,
			model.NewValidationError("invalid date", model.FieldError{Field: "date", Message: err.Error()}))
		return
	}

	entry, err := s.engine.ScheduleManual(r.Context(), engine.ManualRequest{
		Date:          date,
		SlotID:        req.SlotID,
		TemplateID:    req.TemplateID,
		ScheduledTime: req.ScheduledTime,
		Note:          req.Note,
	})
	if err != nil {
		respondErr(w, reqID, err)
		return
	}
	respondCreated(w, reqID, entry)
}

func (s *Server) handleCancelSchedule(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	entry, err := s.engine.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondErr(w, reqID, err)
		return
	}
	respondOK(w, reqID, entry)
}

func (s *Server) handleMarkPosted(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	entry, err := s.engine.MarkPosted(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondErr(w, reqID, err)
		return
	}
	respondOK(w, reqID, entry)
}
