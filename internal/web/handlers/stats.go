package handlers

import (
	"log/slog"
	"net/http"

	"github.com/androidcarpooling/AI-CCTV-Detection/internal/database"
	"github.com/androidcarpooling/AI-CCTV-Detection/internal/events"
)

// StatsHandler serves dashboard counters.
type StatsHandler struct {
	store      database.IdentityReader
	sink       *events.Sink
	jobManager *JobManager
	logger     *slog.Logger
}

// NewStatsHandler creates a new stats handler
func NewStatsHandler(deps Deps, jm *JobManager) *StatsHandler {
	return &StatsHandler{store: deps.Store, sink: deps.Sink, jobManager: jm, logger: deps.logger()}
}

// StatsResponse is the body of GET /stats.
type StatsResponse struct {
	TotalFaces  int `json:"total_faces"`
	TotalEvents int `json:"total_events"`
	Alerts      int `json:"alerts"`
	Detections  int `json:"detections"`
	Tracks      int `json:"tracks"`
	ActiveJobs  int `json:"active_jobs"`
	Dropped     int `json:"dropped_deliveries"`
}

// Get handles GET /stats.
func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	total, err := h.store.Count(r.Context())
	if err != nil {
		h.logger.Error("stats: counting watchlist", "error", err)
		respondError(w, http.StatusServiceUnavailable, "watchlist store unavailable")
		return
	}
	st := h.sink.Stats()
	respondJSON(w, http.StatusOK, StatsResponse{
		TotalFaces:  total,
		TotalEvents: st.Total,
		Alerts:      st.Alerts,
		Detections:  st.Detections,
		Tracks:      st.Tracks,
		ActiveJobs:  h.jobManager.ActiveCount(),
		Dropped:     st.Dropped,
	})
}
