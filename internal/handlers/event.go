package handlers

import (
	"net/http"

	"quincy-backend/internal/middleware"
	"quincy-backend/internal/services"
)

// EventHandler handles the active event and RSVPs
type EventHandler struct {
	eventService *services.EventService
}

func NewEventHandler(eventService *services.EventService) *EventHandler {
	return &EventHandler{eventService: eventService}
}

// GetActive handles GET /api/v1/events/active
func (h *EventHandler) GetActive(w http.ResponseWriter, r *http.Request) {
	event, err := h.eventService.ActiveEvent(r.Context())
	if err != nil {
		respondServiceError(w, err, "Failed to get active event")
		return
	}
	respondJSON(w, http.StatusOK, event)
}

// RSVP handles POST /api/v1/events/active/rsvp
func (h *EventHandler) RSVP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	rsvp, err := h.eventService.RSVP(ctx, middleware.GetUserID(ctx))
	if err != nil {
		respondServiceError(w, err, "Failed to RSVP")
		return
	}
	respondJSON(w, http.StatusOK, rsvp)
}
