package server

import "net/http"

type endpointInfo struct {
	Path        string   `json:"path"`
	Methods     []string `json:"methods"`
	Description string   `json:"description"`
}

type discoveryResponse struct {
	Name        string         `json:"name"`
	Version     string         `json:"version"`
	Description string         `json:"description"`
	Endpoints   []endpointInfo `json:"endpoints"`
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	respondOK(w, reqID, discoveryResponse{
		Name:        "postpilot API",
		Version:     "v1",
		Description: "Adaptive post scheduling: UCB1 template selection, slot planning and engagement feedback",
		Endpoints: []endpointInfo{
			{"/api/v1/plan", []string{"POST"}, "Plan a date (today when no date is given)"},
			{"/api/v1/execute", []string{"POST"}, "Execute due PENDING entries"},
			{"/api/v1/feedback", []string{"POST"}, "Ingest engagement metrics for one post or a batch"},
			{"/api/v1/schedules", []string{"GET", "POST"}, "List schedule entries or create a manual one"},
			{"/api/v1/schedules/{id}", []string{"GET"}, "Single schedule entry"},
			{"/api/v1/schedules/{id}/cancel", []string{"PUT"}, "Cancel a non-terminal entry"},
			{"/api/v1/schedules/{id}/posted", []string{"PUT"}, "Mark a GENERATED entry as posted"},
			{"/api/v1/templates", []string{"GET"}, "Templates with aggregate performance. ?sort=engagement for a leaderboard"},
			{"/api/v1/templates/{id}/performance", []string{"GET"}, "Performance records of one template"},
			{"/api/v1/slots", []string{"GET"}, "Time slots"},
			{"/api/v1/config", []string{"GET", "PUT"}, "Engine configuration"},
			{"/api/v1/health", []string{"GET"}, "Server health and version"},
			{"/metrics", []string{"GET"}, "Prometheus metrics"},
		},
	})
}
