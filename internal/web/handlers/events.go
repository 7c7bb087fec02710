package handlers

import (
	"net/http"

	"github.com/androidcarpooling/AI-CCTV-Detection/internal/constants"
	"github.com/androidcarpooling/AI-CCTV-Detection/internal/events"
)

// EventsHandler exposes the in-memory event log.
type EventsHandler struct {
	sink *events.Sink
}

// NewEventsHandler creates a new events handler
func NewEventsHandler(deps Deps) *EventsHandler {
	return &EventsHandler{sink: deps.Sink}
}

// List handles GET /events?type=&limit=. Events are returned oldest first.
func (h *EventsHandler) List(w http.ResponseWriter, r *http.Request) {
	typ, ok := events.ParseType(r.URL.Query().Get("type"))
	if !ok {
		respondError(w, http.StatusBadRequest, "type must be detection, alert or track")
		return
	}
	limit, ok := formInt(r, "limit", constants.DefaultEventLimit)
	if !ok {
		respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}
	respondJSON(w, http.StatusOK, h.sink.GetEvents(typ, limit))
}

// Clear handles DELETE /events.
func (h *EventsHandler) Clear(w http.ResponseWriter, r *http.Request) {
	h.sink.Clear()
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}
