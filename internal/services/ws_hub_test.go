package services

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"quincy-backend/internal/models"
)

type fakeWSConn struct {
	mu       sync.Mutex
	frames   [][]byte
	closed   bool
	writeErr error
}

func (c *fakeWSConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.frames = append(c.frames, data)
	return nil
}

func (c *fakeWSConn) SetWriteDeadline(t time.Time) error { return nil }

func (c *fakeWSConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeWSConn) last(t *testing.T) WSMessage {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.frames) == 0 {
		t.Fatalf("no frames written")
	}
	var msg WSMessage
	if err := json.Unmarshal(c.frames[len(c.frames)-1], &msg); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	return msg
}

func TestWSHub_SendConnectionFormed(t *testing.T) {
	hub := NewWSHub()
	conn := &fakeWSConn{}
	hub.Register("bob", conn)

	err := hub.SendConnectionFormed("bob", &models.Connection{ID: "c1", EventID: "e1", UserAID: "alice", UserBID: "bob"})
	if err != nil {
		t.Fatalf("SendConnectionFormed() error = %v", err)
	}

	msg := conn.last(t)
	if msg.Type != WSTypeConnectionFormed || msg.Timestamp == 0 {
		t.Fatalf("message = %+v", msg)
	}
	data := msg.Data.(map[string]interface{})
	if data["partner_id"] != "alice" || data["connection_id"] != "c1" {
		t.Fatalf("data = %v", data)
	}
}

func TestWSHub_Offline(t *testing.T) {
	hub := NewWSHub()
	if err := hub.SendError("nobody", &fakeWSConn{}, "x"); !errors.Is(err, ErrOffline) {
		t.Fatalf("err = %v, want ErrOffline", err)
	}
	if err := hub.SendChatMessage("nobody", &models.Message{ID: "m"}); !errors.Is(err, ErrOffline) {
		t.Fatalf("chat err = %v, want ErrOffline", err)
	}
}

func (c *fakeWSConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func TestWSHub_SeveralSockets(t *testing.T) {
	hub := NewWSHub()
	first := &fakeWSConn{}
	second := &fakeWSConn{}

	hub.Register("u1", first)
	hub.Register("u1", second)
	if first.closed {
		t.Fatalf("second tab closed the first socket")
	}

	if err := hub.SendChatMessage("u1", &models.Message{ID: "m1", Content: "hi"}); err != nil {
		t.Fatalf("SendChatMessage() error = %v", err)
	}
	if first.count() != 1 || second.count() != 1 {
		t.Fatalf("chat frames = %d/%d, want one per socket", first.count(), second.count())
	}

	if err := hub.SendProgress("u1", first, models.Progress{Authenticated: true}); err != nil {
		t.Fatalf("SendProgress() error = %v", err)
	}
	if first.count() != 2 || second.count() != 1 {
		t.Fatalf("progress frames = %d/%d, want only the subscribing socket", first.count(), second.count())
	}
	if msg := first.last(t); msg.Type != WSTypeProgress {
		t.Fatalf("first socket last type = %q", msg.Type)
	}

	hub.Unregister("u1", first)
	if !first.closed || !hub.IsOnline("u1") {
		t.Fatalf("closing one tab: first closed = %v, online = %v", first.closed, hub.IsOnline("u1"))
	}
	if err := hub.SendProgress("u1", first, models.Progress{}); !errors.Is(err, ErrOffline) {
		t.Fatalf("progress to a closed socket: err = %v, want ErrOffline", err)
	}

	hub.Unregister("u1", second)
	if hub.IsOnline("u1") || !second.closed {
		t.Fatalf("unregister did not remove the last socket")
	}
}

func TestWSHub_WriteFailureUnregisters(t *testing.T) {
	hub := NewWSHub()
	broken := &fakeWSConn{writeErr: errors.New("broken pipe")}
	healthy := &fakeWSConn{}
	hub.Register("u1", broken)

	if err := hub.SendProgress("u1", broken, models.Progress{Authenticated: true}); err == nil {
		t.Fatalf("SendProgress() succeeded on a broken socket")
	}
	if hub.IsOnline("u1") {
		t.Fatalf("broken socket still registered")
	}

	hub.Register("u1", broken)
	hub.Register("u1", healthy)
	if err := hub.SendChatMessage("u1", &models.Message{ID: "m1"}); err != nil {
		t.Fatalf("SendChatMessage() with one healthy socket error = %v", err)
	}
	if healthy.count() != 1 {
		t.Fatalf("healthy socket frames = %d, want 1", healthy.count())
	}
	if err := hub.SendChatMessage("u1", &models.Message{ID: "m2"}); err != nil || healthy.count() != 2 {
		t.Fatalf("broken socket was not dropped: err = %v frames = %d", err, healthy.count())
	}
}

func TestWSHub_ConcurrentWrites(t *testing.T) {
	hub := NewWSHub()
	conn := &fakeWSConn{}
	hub.Register("u1", conn)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hub.SendChatMessage("u1", &models.Message{ID: "m", Content: "hi"})
		}()
	}
	wg.Wait()

	if len(conn.frames) != 20 {
		t.Fatalf("frames = %d, want 20", len(conn.frames))
	}
}
