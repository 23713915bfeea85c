package notify

import (
	"context"
	"fmt"

	"quincy-backend/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"
)

// pusher is satisfied by *apns2.Client
type pusher interface {
	PushWithContext(ctx apns2.Context, n *apns2.Notification) (*apns2.Response, error)
}

// PushConfig holds APNs token-auth settings
type PushConfig struct {
	KeyPath    string
	KeyID      string
	TeamID     string
	Topic      string
	Production bool
}

// Push sends an APNs notification to the recipient's device
type Push struct {
	client   pusher
	topic    string
	users    UserLookup
	profiles ProfileLookup
}

// NewPush creates an APNs notifier authenticated with a .p8 signing key
func NewPush(cfg PushConfig, users UserLookup, profiles ProfileLookup) (*Push, error) {
	authKey, err := token.AuthKeyFromFile(cfg.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load APNs auth key: %w", err)
	}

	client := apns2.NewTokenClient(&token.Token{
		AuthKey: authKey,
		KeyID:   cfg.KeyID,
		TeamID:  cfg.TeamID,
	})
	if cfg.Production {
		client = client.Production()
	} else {
		client = client.Development()
	}

	return newPush(client, cfg.Topic, users, profiles), nil
}

func newPush(client pusher, topic string, users UserLookup, profiles ProfileLookup) *Push {
	return &Push{client: client, topic: topic, users: users, profiles: profiles}
}

// Notify skips recipients without a registered device
func (p *Push) Notify(ctx context.Context, conn *models.Connection, recipientID string) error {
	user, err := p.users.GetByID(ctx, recipientID)
	if err != nil {
		return fmt.Errorf("push: %w", err)
	}
	if user.PushToken == nil || *user.PushToken == "" {
		return nil
	}

	body := payload.NewPayload().
		AlertTitle("It's a match! 🎶").
		AlertBody(matchText(partnerName(ctx, p.profiles, conn, recipientID))).
		Sound("default").
		Custom("type", "connection_formed").
		Custom("connection_id", conn.ID)

	res, err := p.client.PushWithContext(ctx, &apns2.Notification{
		DeviceToken: *user.PushToken,
		Topic:       p.topic,
		Payload:     body,
	})
	if err != nil {
		return fmt.Errorf("push: %w", err)
	}
	if !res.Sent() {
		return fmt.Errorf("push rejected: %d %s", res.StatusCode, res.Reason)
	}

	log.Debug().Str("user_id", recipientID).Str("apns_id", res.ApnsID).Msg("Push notification sent")
	return nil
}
