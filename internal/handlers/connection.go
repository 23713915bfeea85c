package handlers

import (
	"net/http"

	"quincy-backend/internal/middleware"
	"quincy-backend/internal/services"

	"github.com/go-chi/chi/v5"
)

// ConnectionHandler handles connections and their chat
type ConnectionHandler struct {
	ledger      *services.Ledger
	chatService *services.ChatService
}

func NewConnectionHandler(ledger *services.Ledger, chatService *services.ChatService) *ConnectionHandler {
	return &ConnectionHandler{
		ledger:      ledger,
		chatService: chatService,
	}
}

// List handles GET /api/v1/connections
func (h *ConnectionHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := middleware.GetUserID(ctx)

	conns, err := h.ledger.ListConnectionsFor(ctx, userID)
	if err != nil {
		respondServiceError(w, err, "Failed to list connections")
		return
	}
	connections, err := h.chatService.Summarize(ctx, userID, conns)
	if err != nil {
		respondServiceError(w, err, "Failed to list connections")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"connections": connections,
	})
}

// Messages handles GET /api/v1/connections/{connection_id}/messages
func (h *ConnectionHandler) Messages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	msgs, err := h.chatService.Messages(ctx, userID, chi.URLParam(r, "connection_id"),
		queryInt(r, "limit", 50), queryInt(r, "offset", 0))
	if err != nil {
		respondServiceError(w, err, "Failed to get messages")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"messages": msgs,
	})
}

// SendMessageRequest represents the request body for a chat message
type SendMessageRequest struct {
	Content string `json:"content"`
}

// Send handles POST /api/v1/connections/{connection_id}/messages
func (h *ConnectionHandler) Send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req SendMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	msg, err := h.chatService.Send(ctx, userID, chi.URLParam(r, "connection_id"), req.Content)
	if err != nil {
		respondServiceError(w, err, "Failed to send message")
		return
	}

	respondJSON(w, http.StatusCreated, msg)
}
