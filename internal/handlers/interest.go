package handlers

import (
	"context"
	"net/http"

	"quincy-backend/internal/middleware"
	"quincy-backend/internal/models"
	"quincy-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// IncomingLister is satisfied by *repository.InterestRepository
type IncomingLister interface {
	ListIncoming(ctx context.Context, eventID, receiverID string) ([]*models.Interest, error)
}

// InterestHandler handles interests and the connections they form
type InterestHandler struct {
	ledger       *services.Ledger
	eventService *services.EventService
	incoming     IncomingLister
}

// NewInterestHandler creates a new interest handler
func NewInterestHandler(ledger *services.Ledger, eventService *services.EventService, incoming IncomingLister) *InterestHandler {
	return &InterestHandler{
		ledger:       ledger,
		eventService: eventService,
		incoming:     incoming,
	}
}

// ExpressInterestRequest represents the request body for expressing interest
type ExpressInterestRequest struct {
	ReceiverID      string  `json:"receiver_id"`
	SubjectRecordID *string `json:"subject_record_id,omitempty"`
}

// InterestResponse reports the stored interest and whether the pair is now connected
type InterestResponse struct {
	Interest  *models.Interest `json:"interest"`
	Connected bool             `json:"connected"`
}

// Express handles POST /api/v1/interests
func (h *InterestHandler) Express(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req ExpressInterestRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	event, err := h.eventService.ActiveEvent(ctx)
	if err != nil {
		respondServiceError(w, err, "Failed to get active event")
		return
	}

	interest, err := h.ledger.ExpressInterest(ctx, event.ID, userID, req.ReceiverID, req.SubjectRecordID)
	if err != nil {
		log.Error().
			Err(err).
			Str("user_id", userID).
			Str("receiver_id", req.ReceiverID).
			Msg("Failed to express interest")
		respondServiceError(w, err, "Failed to express interest")
		return
	}

	respondJSON(w, http.StatusOK, InterestResponse{
		Interest:  interest,
		Connected: interest.Status == models.InterestAccepted,
	})
}

// Incoming handles GET /api/v1/interests/incoming
func (h *InterestHandler) Incoming(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	event, err := h.eventService.ActiveEvent(ctx)
	if err != nil {
		respondServiceError(w, err, "Failed to get active event")
		return
	}

	interests, err := h.incoming.ListIncoming(ctx, event.ID, userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to list incoming interests")
		respondError(w, "Failed to list interests", http.StatusInternalServerError)
		return
	}
	if interests == nil {
		interests = []*models.Interest{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"interests": interests,
	})
}

// RespondRequest carries the receiver's decision
type RespondRequest struct {
	Decision models.InterestStatus `json:"decision"`
}

// Respond handles POST /api/v1/interests/{interest_id}/respond
func (h *InterestHandler) Respond(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	interestID := chi.URLParam(r, "interest_id")

	var req RespondRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	interest, err := h.ledger.RespondToInterest(ctx, interestID, userID, req.Decision)
	if err != nil {
		respondServiceError(w, err, "Failed to respond to interest")
		return
	}

	respondJSON(w, http.StatusOK, InterestResponse{
		Interest:  interest,
		Connected: interest.Status == models.InterestAccepted,
	})
}
