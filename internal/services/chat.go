package services

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"quincy-backend/internal/models"

	"github.com/google/uuid"
)

const maxMessageLength = 2000

type ChatStore interface {
	GetByID(ctx context.Context, id string) (*models.Connection, error)
	AppendMessage(ctx context.Context, msg *models.Message) error
	ListMessages(ctx context.Context, connectionID string, limit, offset int) ([]*models.Message, error)
	Previews(ctx context.Context, userID string, connectionIDs []string) (map[string]models.ConnectionPreview, error)
}

// MessageRelay delivers a new message to an online recipient
type MessageRelay interface {
	SendChatMessage(recipientID string, msg *models.Message) error
}

// ChatService handles messages between connected users
type ChatService struct {
	store ChatStore
	relay MessageRelay
}

func NewChatService(store ChatStore, relay MessageRelay) *ChatService {
	return &ChatService{store: store, relay: relay}
}

func (s *ChatService) connectionFor(ctx context.Context, userID, connectionID string) (*models.Connection, error) {
	conn, err := s.store.GetByID(ctx, connectionID)
	if err != nil {
		return nil, storeError("get connection", err)
	}
	if !conn.HasMember(userID) {
		return nil, ErrForbidden
	}
	return conn, nil
}

// Messages returns the conversation oldest first
func (s *ChatService) Messages(ctx context.Context, userID, connectionID string, limit, offset int) ([]*models.Message, error) {
	if _, err := s.connectionFor(ctx, userID, connectionID); err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}

	msgs, err := s.store.ListMessages(ctx, connectionID, limit, offset)
	if err != nil {
		return nil, storeError("list messages", err)
	}
	if msgs == nil {
		msgs = []*models.Message{}
	}
	return msgs, nil
}

// Send appends a message and relays it to the partner if they are online
func (s *ChatService) Send(ctx context.Context, userID, connectionID, content string) (*models.Message, error) {
	if !utf8.ValidString(content) {
		return nil, validationError("message is not valid UTF-8")
	}
	if strings.ContainsRune(content, 0) {
		return nil, validationError("message contains a NUL character")
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, validationError("message is empty")
	}
	if utf8.RuneCountInString(content) > maxMessageLength {
		return nil, validationError("message is longer than %d characters", maxMessageLength)
	}

	conn, err := s.connectionFor(ctx, userID, connectionID)
	if err != nil {
		return nil, err
	}

	msg := &models.Message{
		ID:           uuid.New().String(),
		ConnectionID: conn.ID,
		SenderID:     userID,
		Content:      content,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.AppendMessage(ctx, msg); err != nil {
		return nil, storeError("send message", err)
	}

	if s.relay != nil {
		// Offline partners read the message on their next fetch.
		_ = s.relay.SendChatMessage(conn.PartnerOf(userID), msg)
	}
	return msg, nil
}

// ConnectionSummary is a connection as listed to one of its members
type ConnectionSummary struct {
	*models.Connection
	PartnerID        string          `json:"partner_id"`
	PartnerName      string          `json:"partner_name"`
	PartnerAvatarURL *string         `json:"partner_avatar_url,omitempty"`
	LastMessage      *models.Message `json:"last_message,omitempty"`
}

// Summarize decorates userID's connections with the partner's profile and
// the latest message, keeping their order.
func (s *ChatService) Summarize(ctx context.Context, userID string, conns []*models.Connection) ([]ConnectionSummary, error) {
	out := make([]ConnectionSummary, 0, len(conns))
	if len(conns) == 0 {
		return out, nil
	}

	ids := make([]string, 0, len(conns))
	for _, c := range conns {
		ids = append(ids, c.ID)
	}
	previews, err := s.store.Previews(ctx, userID, ids)
	if err != nil {
		return nil, storeError("connection previews", err)
	}

	for _, c := range conns {
		sum := ConnectionSummary{Connection: c, PartnerID: c.PartnerOf(userID)}
		if p, ok := previews[c.ID]; ok {
			sum.PartnerName = p.PartnerName
			sum.PartnerAvatarURL = p.PartnerAvatarURL
			sum.LastMessage = p.LastMessage
		}
		out = append(out, sum)
	}
	return out, nil
}
