package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"quincy-backend/internal/models"
)

type memChat struct {
	conns    map[string]*models.Connection
	messages []*models.Message
}

func (m *memChat) GetByID(ctx context.Context, id string) (*models.Connection, error) {
	c, ok := m.conns[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

func (m *memChat) AppendMessage(ctx context.Context, msg *models.Message) error {
	m.messages = append(m.messages, msg)
	m.conns[msg.ConnectionID].LastActivityAt = msg.CreatedAt
	return nil
}

func (m *memChat) ListMessages(ctx context.Context, connectionID string, limit, offset int) ([]*models.Message, error) {
	var out []*models.Message
	for _, msg := range m.messages {
		if msg.ConnectionID == connectionID {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *memChat) Previews(ctx context.Context, userID string, connectionIDs []string) (map[string]models.ConnectionPreview, error) {
	out := make(map[string]models.ConnectionPreview)
	for _, id := range connectionIDs {
		c, ok := m.conns[id]
		if !ok {
			continue
		}
		p := models.ConnectionPreview{ConnectionID: id, PartnerID: c.PartnerOf(userID), PartnerName: "name-" + c.PartnerOf(userID)}
		for _, msg := range m.messages {
			if msg.ConnectionID == id {
				p.LastMessage = msg
			}
		}
		out[id] = p
	}
	return out, nil
}

type recordingRelay struct {
	to []string
}

func (r *recordingRelay) SendChatMessage(recipientID string, msg *models.Message) error {
	r.to = append(r.to, recipientID)
	return errors.New("offline")
}

func TestChat(t *testing.T) {
	ctx := context.Background()
	store := &memChat{conns: map[string]*models.Connection{
		"c1": {ID: "c1", UserAID: "alice", UserBID: "bob"},
	}}
	relay := &recordingRelay{}
	s := NewChatService(store, relay)

	msg, err := s.Send(ctx, "alice", "c1", "  see you at the crates  ")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if msg.Content != "see you at the crates" {
		t.Fatalf("content = %q", msg.Content)
	}
	if len(relay.to) != 1 || relay.to[0] != "bob" {
		t.Fatalf("relayed to %v, want [bob]", relay.to)
	}
	if !store.conns["c1"].LastActivityAt.Equal(msg.CreatedAt) {
		t.Fatalf("last activity not bumped")
	}

	msgs, err := s.Messages(ctx, "bob", "c1", 0, 0)
	if err != nil || len(msgs) != 1 {
		t.Fatalf("Messages() = %v, %v", msgs, err)
	}

	if _, err := s.Messages(ctx, "mallory", "c1", 0, 0); !errors.Is(err, ErrForbidden) {
		t.Fatalf("non-member: err = %v, want ErrForbidden", err)
	}
	if _, err := s.Send(ctx, "alice", "missing", "hi"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown connection: err = %v, want ErrNotFound", err)
	}
	if _, err := s.Send(ctx, "alice", "c1", "   "); !errors.Is(err, ErrValidation) {
		t.Fatalf("empty message: err = %v, want ErrValidation", err)
	}
	if _, err := s.Send(ctx, "alice", "c1", strings.Repeat("x", maxMessageLength+1)); !errors.Is(err, ErrValidation) {
		t.Fatalf("long message: err = %v, want ErrValidation", err)
	}
}

func TestChat_RejectsUnstorableText(t *testing.T) {
	store := &memChat{conns: map[string]*models.Connection{
		"c1": {ID: "c1", UserAID: "alice", UserBID: "bob"},
	}}
	relay := &recordingRelay{}
	s := NewChatService(store, relay)

	for _, content := range []string{"caf\xe9", "\xff\xfe", "ok \xc3", "side a\x00side b"} {
		if _, err := s.Send(context.Background(), "alice", "c1", content); !errors.Is(err, ErrValidation) {
			t.Fatalf("Send(%q) err = %v, want ErrValidation", content, err)
		}
	}
	if len(store.messages) != 0 || len(relay.to) != 0 {
		t.Fatalf("invalid message was stored or relayed")
	}
}

func TestChat_Summarize(t *testing.T) {
	ctx := context.Background()
	store := &memChat{conns: map[string]*models.Connection{
		"c1": {ID: "c1", UserAID: "alice", UserBID: "bob"},
		"c2": {ID: "c2", UserAID: "alice", UserBID: "carol"},
	}}
	s := NewChatService(store, nil)

	if _, err := s.Send(ctx, "bob", "c1", "first"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if _, err := s.Send(ctx, "alice", "c1", "second"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	sums, err := s.Summarize(ctx, "alice", []*models.Connection{store.conns["c1"], store.conns["c2"]})
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if len(sums) != 2 || sums[0].ID != "c1" || sums[1].ID != "c2" {
		t.Fatalf("summaries = %+v, want input order", sums)
	}
	if sums[0].PartnerID != "bob" || sums[0].PartnerName != "name-bob" {
		t.Fatalf("partner = %q/%q", sums[0].PartnerID, sums[0].PartnerName)
	}
	if sums[0].LastMessage == nil || sums[0].LastMessage.Content != "second" {
		t.Fatalf("last message = %+v, want second", sums[0].LastMessage)
	}
	if sums[1].PartnerID != "carol" || sums[1].LastMessage != nil {
		t.Fatalf("quiet connection summary = %+v", sums[1])
	}

	empty, err := s.Summarize(ctx, "alice", nil)
	if err != nil || empty == nil || len(empty) != 0 {
		t.Fatalf("Summarize(nil) = %v, %v, want empty slice", empty, err)
	}
}
