package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"quincy-backend/internal/models"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// WebSocket event types
const (
	WSTypeProgress         = "progress"
	WSTypeConnectionFormed = "connection_formed"
	WSTypeChatMessage      = "chat_message"
	WSTypeError            = "error"
)

const wsWriteTimeout = 10 * time.Second

// ErrOffline is returned when the recipient has no open socket
var ErrOffline = errors.New("user is not connected")

// WSMessage represents a WebSocket message
type WSMessage struct {
	Type      string      `json:"type"`
	Timestamp int64       `json:"timestamp,omitempty"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

// wsConn is the subset of *websocket.Conn the hub writes to
type wsConn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

type wsClient struct {
	conn wsConn
	// gorilla/websocket allows one concurrent writer
	writeMu sync.Mutex
}

func (c *wsClient) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// WSHub manages WebSocket connections. A user may hold several sockets, one
// per open tab or device.
type WSHub struct {
	mu      sync.RWMutex
	clients map[string]map[wsConn]*wsClient
}

// NewWSHub creates a new WebSocket hub
func NewWSHub() *WSHub {
	return &WSHub{
		clients: make(map[string]map[wsConn]*wsClient),
	}
}

// Register adds a WebSocket connection for a user
func (h *WSHub) Register(userID string, conn wsConn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns, ok := h.clients[userID]
	if !ok {
		conns = make(map[wsConn]*wsClient)
		h.clients[userID] = conns
	}
	conns[conn] = &wsClient{conn: conn}

	log.Info().Str("user_id", userID).Int("sockets", len(conns)).Msg("WebSocket connection registered")
}

// Unregister closes and removes conn. Other sockets of the user stay open.
func (h *WSHub) Unregister(userID string, conn wsConn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns := h.clients[userID]
	client, ok := conns[conn]
	if !ok {
		return
	}
	client.conn.Close()
	delete(conns, conn)
	if len(conns) == 0 {
		delete(h.clients, userID)
	}
	log.Info().Str("user_id", userID).Int("sockets", len(conns)).Msg("WebSocket connection unregistered")
}

func encodeWSMessage(message WSMessage) ([]byte, error) {
	if message.Timestamp == 0 {
		message.Timestamp = time.Now().UnixMilli()
	}
	data, err := json.Marshal(message)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}
	return data, nil
}

// SendToUser sends a message to every socket of a user. Sockets that fail
// the write are unregistered.
func (h *WSHub) SendToUser(userID string, message WSMessage) error {
	h.mu.RLock()
	targets := make([]*wsClient, 0, len(h.clients[userID]))
	for _, client := range h.clients[userID] {
		targets = append(targets, client)
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		return fmt.Errorf("%s: %w", userID, ErrOffline)
	}

	data, err := encodeWSMessage(message)
	if err != nil {
		return err
	}

	var errs []error
	for _, client := range targets {
		if err := client.write(data); err != nil {
			h.Unregister(userID, client.conn)
			errs = append(errs, fmt.Errorf("failed to send message: %w", err))
		}
	}
	if len(errs) == len(targets) {
		return errors.Join(errs...)
	}
	return nil
}

// SendToConn sends a message to one socket of a user
func (h *WSHub) SendToConn(userID string, conn wsConn, message WSMessage) error {
	h.mu.RLock()
	client, ok := h.clients[userID][conn]
	h.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%s: %w", userID, ErrOffline)
	}

	data, err := encodeWSMessage(message)
	if err != nil {
		return err
	}
	if err := client.write(data); err != nil {
		h.Unregister(userID, conn)
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// IsOnline checks if a user has at least one socket open
func (h *WSHub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

// SendProgress pushes a progress snapshot to the socket that subscribed to it
func (h *WSHub) SendProgress(userID string, conn wsConn, p models.Progress) error {
	return h.SendToConn(userID, conn, WSMessage{Type: WSTypeProgress, Data: p})
}

// SendConnectionFormed tells recipientID about a new connection
func (h *WSHub) SendConnectionFormed(recipientID string, conn *models.Connection) error {
	return h.SendToUser(recipientID, WSMessage{
		Type: WSTypeConnectionFormed,
		Data: map[string]interface{}{
			"connection_id": conn.ID,
			"event_id":      conn.EventID,
			"partner_id":    conn.PartnerOf(recipientID),
			"created_at":    conn.CreatedAt,
		},
	})
}

// SendChatMessage relays a chat message to recipientID
func (h *WSHub) SendChatMessage(recipientID string, msg *models.Message) error {
	return h.SendToUser(recipientID, WSMessage{Type: WSTypeChatMessage, Data: msg})
}

// SendError reports a problem with a client message on the socket it came from
func (h *WSHub) SendError(userID string, conn wsConn, text string) error {
	return h.SendToConn(userID, conn, WSMessage{Type: WSTypeError, Message: text})
}

// Close closes every connection
func (h *WSHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for userID, conns := range h.clients {
		for _, client := range conns {
			client.conn.Close()
		}
		delete(h.clients, userID)
	}
}
