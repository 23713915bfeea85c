package notify

import (
	"context"
	"errors"

	"quincy-backend/internal/models"
	"quincy-backend/internal/services"
)

// ConnectionSender is satisfied by *services.WSHub
type ConnectionSender interface {
	SendConnectionFormed(recipientID string, conn *models.Connection) error
}

// Hub pushes connection_formed to a recipient with an open socket
type Hub struct {
	sender ConnectionSender
}

func NewHub(sender ConnectionSender) *Hub {
	return &Hub{sender: sender}
}

// Notify is a no-op for offline recipients
func (h *Hub) Notify(ctx context.Context, conn *models.Connection, recipientID string) error {
	err := h.sender.SendConnectionFormed(recipientID, conn)
	if errors.Is(err, services.ErrOffline) {
		return nil
	}
	return err
}
