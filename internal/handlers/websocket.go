package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"quincy-backend/internal/progress"
	"quincy-backend/internal/services"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Inbound message types
const (
	wsTypeChatMessage     = "chat_message"
	wsTypeRefreshProgress = "refresh_progress"
)

// WebSocketHandler handles WebSocket connections
type WebSocketHandler struct {
	hub         *services.WSHub
	userService *services.UserService
	chatService *services.ChatService
	watcher     *progress.Watcher
	upgrader    websocket.Upgrader
}

// NewWebSocketHandler creates a new WebSocket handler. originAllowed decides
// the upgrade origin check.
func NewWebSocketHandler(
	hub *services.WSHub,
	userService *services.UserService,
	chatService *services.ChatService,
	watcher *progress.Watcher,
	originAllowed func(origin string) bool,
) *WebSocketHandler {
	return &WebSocketHandler{
		hub:         hub,
		userService: userService,
		chatService: chatService,
		watcher:     watcher,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || originAllowed == nil || originAllowed(origin)
			},
		},
	}
}

// wsInbound is a message sent by the client
type wsInbound struct {
	Type         string `json:"type"`
	ConnectionID string `json:"connection_id,omitempty"`
	Content      string `json:"content,omitempty"`
}

// HandleWebSocket handles GET /ws?token=
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		respondError(w, "token required", http.StatusUnauthorized)
		return
	}

	userID, err := h.userService.ValidateJWT(token)
	if err != nil {
		respondError(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}
	// The socket outlives the server's ReadTimeout.
	conn.SetReadDeadline(time.Time{})

	h.hub.Register(userID, conn)
	defer h.hub.Unregister(userID, conn)

	ctx := r.Context()

	// Subscribe before the first push so no change is lost in between.
	sub := h.watcher.Subscribe(userID)
	defer sub.Close()
	go h.forwardProgress(userID, conn, sub)
	h.watcher.Publish(ctx, userID)

	log.Info().Str("user_id", userID).Msg("WebSocket connection established")

	for {
		_, messageBytes, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Error().Err(err).Str("user_id", userID).Msg("WebSocket error")
			}
			break
		}

		var msg wsInbound
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			log.Warn().Err(err).Str("user_id", userID).Msg("Failed to parse WebSocket message")
			h.hub.SendError(userID, conn, "Invalid message format")
			continue
		}

		h.handleMessage(ctx, userID, conn, msg)
	}
}

// forwardProgress pushes snapshots to conn until sub is closed
func (h *WebSocketHandler) forwardProgress(userID string, conn *websocket.Conn, sub *progress.Subscription) {
	for snap := range sub.C() {
		if err := h.hub.SendProgress(userID, conn, snap.Progress); err != nil {
			log.Debug().Err(err).Str("user_id", userID).Msg("Failed to push progress")
		}
	}
}

func (h *WebSocketHandler) handleMessage(ctx context.Context, userID string, conn *websocket.Conn, msg wsInbound) {
	switch msg.Type {
	case wsTypeRefreshProgress:
		h.watcher.Publish(ctx, userID)
	case wsTypeChatMessage:
		if _, err := h.chatService.Send(ctx, userID, msg.ConnectionID, msg.Content); err != nil {
			log.Warn().Err(err).Str("user_id", userID).Str("connection_id", msg.ConnectionID).Msg("Failed to send chat message")
			h.hub.SendError(userID, conn, "Failed to send message")
		}
	default:
		h.hub.SendError(userID, conn, "Unknown message type")
	}
}
