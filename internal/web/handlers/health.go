package handlers

import (
	"net/http"
)

// HealthHandler reports dependency health.
type HealthHandler struct {
	deps Deps
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(deps Deps) *HealthHandler {
	return &HealthHandler{deps: deps}
}

// HealthResponse is the body of the health endpoints.
type HealthResponse struct {
	Status   string `json:"status"`
	Database bool   `json:"database"`
	Detector bool   `json:"detector"`
	Events   bool   `json:"events"`
}

// Get handles GET /health. It always answers 200; status is "degraded"
// when the store or the detector does not respond.
func (h *HealthHandler) Get(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Events: h.deps.Sink != nil}
	if h.deps.Health != nil {
		resp.Database, resp.Detector = h.deps.Health(r.Context())
	}
	if !resp.Database || !resp.Detector {
		resp.Status = "degraded"
	}
	respondJSON(w, http.StatusOK, resp)
}
