package handlers

import (
	"net/http"

	"quincy-backend/internal/services"

	"github.com/rs/zerolog/log"
)

// AdminHandler serves operator endpoints behind the admin key
type AdminHandler struct {
	eventService    *services.EventService
	reminderService *services.ReminderService
}

func NewAdminHandler(eventService *services.EventService, reminderService *services.ReminderService) *AdminHandler {
	return &AdminHandler{
		eventService:    eventService,
		reminderService: reminderService,
	}
}

// SendReminders handles POST /api/v1/admin/reminders?type=
func (h *AdminHandler) SendReminders(w http.ResponseWriter, r *http.Request) {
	reminderType := services.ParseReminderType(r.URL.Query().Get("type"))

	result, err := h.reminderService.Send(r.Context(), reminderType)
	if err != nil {
		respondServiceError(w, err, "Failed to send reminders")
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// CreateEvent handles POST /api/v1/admin/events
func (h *AdminHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req services.CreateEventRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	event, err := h.eventService.CreateEvent(r.Context(), req)
	if err != nil {
		respondServiceError(w, err, "Failed to create event")
		return
	}

	log.Info().Str("event_id", event.ID).Bool("active", event.IsActive).Msg("Event created")
	respondJSON(w, http.StatusCreated, event)
}
