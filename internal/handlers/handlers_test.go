package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"quincy-backend/internal/gate"
	"quincy-backend/internal/middleware"
	"quincy-backend/internal/models"
	"quincy-backend/internal/progress"
	"quincy-backend/internal/repository"
	"quincy-backend/internal/services"

	"github.com/go-chi/chi/v5"
)

// asUser injects userID the way AuthMiddleware would
func asUser(userID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(middleware.WithUserID(r.Context(), userID)))
		})
	}
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return resp
}

func TestRespondServiceError(t *testing.T) {
	tests := []struct {
		err       error
		status    int
		retryable bool
	}{
		{fmt.Errorf("%w: title is required", services.ErrValidation), http.StatusBadRequest, false},
		{services.ErrUnauthorized, http.StatusUnauthorized, false},
		{fmt.Errorf("get connection: %w", services.ErrForbidden), http.StatusForbidden, false},
		{fmt.Errorf("respond: %w", services.ErrNotFound), http.StatusNotFound, false},
		{fmt.Errorf("register: %w", services.ErrConflict), http.StatusConflict, false},
		{fmt.Errorf("list: %w: %w", services.ErrTransient, errors.New("conn refused")), http.StatusServiceUnavailable, true},
		{errors.New("boom"), http.StatusInternalServerError, false},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		respondServiceError(rec, tt.err, "Failed")

		if rec.Code != tt.status {
			t.Fatalf("%v: status = %d, want %d", tt.err, rec.Code, tt.status)
		}
		if resp := decodeError(t, rec); resp.Retryable != tt.retryable || resp.Error == "" {
			t.Fatalf("%v: body = %+v", tt.err, resp)
		}
	}
}

func TestRespondServiceError_HidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	respondServiceError(rec, errors.New("pq: password authentication failed"), "Failed to list")

	if resp := decodeError(t, rec); resp.Error != "Failed to list" {
		t.Fatalf("error = %q, leaked internal detail", resp.Error)
	}
}

type memChat struct {
	conns    map[string]*models.Connection
	messages []*models.Message
}

func (m *memChat) GetByID(ctx context.Context, id string) (*models.Connection, error) {
	c, ok := m.conns[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return c, nil
}

func (m *memChat) AppendMessage(ctx context.Context, msg *models.Message) error {
	m.messages = append(m.messages, msg)
	return nil
}

func (m *memChat) ListMessages(ctx context.Context, connectionID string, limit, offset int) ([]*models.Message, error) {
	return m.messages, nil
}

func (m *memChat) Previews(ctx context.Context, userID string, connectionIDs []string) (map[string]models.ConnectionPreview, error) {
	out := make(map[string]models.ConnectionPreview)
	for _, id := range connectionIDs {
		p := models.ConnectionPreview{ConnectionID: id, PartnerName: "Ari"}
		if n := len(m.messages); n > 0 {
			p.LastMessage = m.messages[n-1]
		}
		out[id] = p
	}
	return out, nil
}

func (m *memChat) ListByUser(ctx context.Context, userID string) ([]*models.Connection, error) {
	var out []*models.Connection
	for _, c := range m.conns {
		if c.HasMember(userID) {
			out = append(out, c)
		}
	}
	return out, nil
}

func connectionRouter(userID string, store *memChat) http.Handler {
	ledger := services.NewLedger(downStore{}, store, nil, time.Second)
	h := NewConnectionHandler(ledger, services.NewChatService(store, nil))
	r := chi.NewRouter()
	r.Use(asUser(userID))
	r.Get("/connections", h.List)
	r.Get("/connections/{connection_id}/messages", h.Messages)
	r.Post("/connections/{connection_id}/messages", h.Send)
	return r
}

func TestConnectionHandler(t *testing.T) {
	store := &memChat{conns: map[string]*models.Connection{
		"c1": {ID: "c1", EventID: "e1", UserAID: "alice", UserBID: "bob"},
	}}

	rec := do(t, connectionRouter("alice", store), http.MethodPost, "/connections/c1/messages", `{"content":"  see you at the bar  "}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("send status = %d: %s", rec.Code, rec.Body)
	}
	var msg models.Message
	json.NewDecoder(rec.Body).Decode(&msg)
	if msg.Content != "see you at the bar" || msg.SenderID != "alice" {
		t.Fatalf("message = %+v", msg)
	}

	rec = do(t, connectionRouter("bob", store), http.MethodGet, "/connections/c1/messages?limit=abc", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "see you at the bar") {
		t.Fatalf("list status = %d: %s", rec.Code, rec.Body)
	}

	tests := []struct {
		name, userID, method, target, body string
		status                             int
	}{
		{"outsider reads", "carol", http.MethodGet, "/connections/c1/messages", "", http.StatusForbidden},
		{"outsider writes", "carol", http.MethodPost, "/connections/c1/messages", `{"content":"hi"}`, http.StatusForbidden},
		{"unknown connection", "alice", http.MethodGet, "/connections/nope/messages", "", http.StatusNotFound},
		{"empty message", "alice", http.MethodPost, "/connections/c1/messages", `{"content":"   "}`, http.StatusBadRequest},
		{"malformed body", "alice", http.MethodPost, "/connections/c1/messages", `{`, http.StatusBadRequest},
		{"nul byte", "alice", http.MethodPost, "/connections/c1/messages", `{"content":"side a\u0000side b"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, connectionRouter(tt.userID, store), tt.method, tt.target, tt.body)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.status, rec.Body)
			}
		})
	}
}

func TestConnectionHandler_List(t *testing.T) {
	store := &memChat{conns: map[string]*models.Connection{
		"c1": {ID: "c1", EventID: "e1", UserAID: "alice", UserBID: "bob"},
	}}
	if rec := do(t, connectionRouter("alice", store), http.MethodPost, "/connections/c1/messages", `{"content":"crate digging later?"}`); rec.Code != http.StatusCreated {
		t.Fatalf("send status = %d", rec.Code)
	}

	rec := do(t, connectionRouter("alice", store), http.MethodGet, "/connections", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var resp struct {
		Connections []struct {
			ID          string          `json:"id"`
			PartnerID   string          `json:"partner_id"`
			PartnerName string          `json:"partner_name"`
			LastMessage *models.Message `json:"last_message"`
		} `json:"connections"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Connections) != 1 {
		t.Fatalf("connections = %+v", resp.Connections)
	}
	c := resp.Connections[0]
	if c.ID != "c1" || c.PartnerID != "bob" || c.PartnerName != "Ari" {
		t.Fatalf("connection = %+v", c)
	}
	if c.LastMessage == nil || c.LastMessage.Content != "crate digging later?" {
		t.Fatalf("last message = %+v", c.LastMessage)
	}

	rec = do(t, connectionRouter("carol", store), http.MethodGet, "/connections", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"connections":[]`) {
		t.Fatalf("no connections: status = %d body = %s", rec.Code, rec.Body)
	}
}

type memEvents struct {
	active *models.Event
}

func (m *memEvents) Create(ctx context.Context, event *models.Event) error { return nil }

func (m *memEvents) GetActive(ctx context.Context) (*models.Event, error) {
	if m.active == nil {
		return nil, repository.ErrNotFound
	}
	return m.active, nil
}

func (m *memEvents) UpsertRSVP(ctx context.Context, rsvp *models.RSVP) error { return nil }

// downStore fails every transaction, like an unreachable database. The
// attendee lookup still answers so requests reach the transaction.
type downStore struct{}

func (downStore) IsAttendee(ctx context.Context, eventID, userID string) (bool, error) {
	return userID != "ghost", nil
}

func (downStore) InPairTx(ctx context.Context, key models.PairKey, fn func(repository.InterestTx) error) error {
	return errors.New("dial tcp: connection refused")
}

func (downStore) GetInterest(ctx context.Context, id string) (*models.Interest, error) {
	return nil, errors.New("dial tcp: connection refused")
}

func (downStore) ListByUser(ctx context.Context, userID string) ([]*models.Connection, error) {
	return nil, errors.New("dial tcp: connection refused")
}

func (downStore) ListIncoming(ctx context.Context, eventID, receiverID string) ([]*models.Interest, error) {
	return nil, nil
}

func interestRouter(events *memEvents) http.Handler {
	ledger := services.NewLedger(downStore{}, downStore{}, nil, time.Second)
	h := NewInterestHandler(ledger, services.NewEventService(events, nil), downStore{})
	r := chi.NewRouter()
	r.Use(asUser("alice"))
	r.Post("/interests", h.Express)
	r.Get("/interests/incoming", h.Incoming)
	r.Post("/interests/{interest_id}/respond", h.Respond)
	return r
}

func TestInterestHandler(t *testing.T) {
	active := &memEvents{active: &models.Event{ID: "e1", IsActive: true}}

	tests := []struct {
		name   string
		events *memEvents
		method string
		target string
		body   string
		status int
	}{
		{"self interest", active, http.MethodPost, "/interests", `{"receiver_id":"alice"}`, http.StatusBadRequest},
		{"missing receiver", active, http.MethodPost, "/interests", `{}`, http.StatusBadRequest},
		{"no active event", &memEvents{}, http.MethodPost, "/interests", `{"receiver_id":"bob"}`, http.StatusNotFound},
		{"store down", active, http.MethodPost, "/interests", `{"receiver_id":"bob"}`, http.StatusServiceUnavailable},
		{"unknown receiver", active, http.MethodPost, "/interests", `{"receiver_id":"ghost"}`, http.StatusNotFound},
		{"bad decision", active, http.MethodPost, "/interests/i1/respond", `{"decision":"maybe"}`, http.StatusBadRequest},
		{"respond store down", active, http.MethodPost, "/interests/i1/respond", `{"decision":"accepted"}`, http.StatusServiceUnavailable},
		{"incoming empty", active, http.MethodGet, "/interests/incoming", "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, interestRouter(tt.events), tt.method, tt.target, tt.body)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.status, rec.Body)
			}
		})
	}
}

func TestInterestHandler_IncomingIsArray(t *testing.T) {
	rec := do(t, interestRouter(&memEvents{active: &models.Event{ID: "e1"}}), http.MethodGet, "/interests/incoming", "")
	if !strings.Contains(rec.Body.String(), `"interests":[]`) {
		t.Fatalf("body = %s, want empty array", rec.Body)
	}
}

type staticResolver map[string]models.Progress

func (r staticResolver) Resolve(ctx context.Context, userID string) progress.Snapshot {
	p, ok := r[userID]
	if !ok {
		return progress.Unauth()
	}
	return progress.Snapshot{State: progress.Resolved, Progress: p}
}

func TestNavigationHandler(t *testing.T) {
	resolver := staticResolver{
		"rsvped": {Authenticated: true, OnboardingComplete: true, HasRSVP: true},
	}
	h := NewNavigationHandler(resolver, nil)

	tests := []struct {
		userID   string
		path     string
		allow    bool
		redirect string
		returnTo string
	}{
		{"rsvped", "/swipe", false, gate.PathRecords, ""},
		{"rsvped", "/records", true, "", ""},
		{"rsvped", "/onboarding", false, gate.PathEvent, ""},
		{"", "/matches?tab=new", false, gate.PathAuth, "/matches"},
		{"", "/", true, "", ""},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/navigation", nil)
		q := req.URL.Query()
		q.Set("path", tt.path)
		req.URL.RawQuery = q.Encode()
		if tt.userID != "" {
			req = req.WithContext(middleware.WithUserID(req.Context(), tt.userID))
		}
		rec := httptest.NewRecorder()
		h.Resolve(rec, req)

		var resp NavigationResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		d := resp.Decision
		if d.Allow != tt.allow || d.RedirectTo != tt.redirect || d.ReturnTo != tt.returnTo {
			t.Fatalf("%s as %q: decision = %+v", tt.path, tt.userID, d)
		}
	}
}

type memReminderSource struct{}

func (memReminderSource) GetActive(ctx context.Context) (*models.Event, error) {
	return &models.Event{ID: "e1", Title: "Quincy Vinyl Night"}, nil
}

func (memReminderSource) ListWithoutUpload(ctx context.Context, eventID string) ([]models.ReminderTarget, error) {
	return nil, nil
}

func TestAdminHandler(t *testing.T) {
	h := NewAdminHandler(services.NewEventService(&memEvents{}, nil), services.NewReminderService(memReminderSource{}, nil))

	rec := do(t, http.HandlerFunc(h.SendReminders), http.MethodPost, "/admin/reminders?type=day_before", "")
	if rec.Code != http.StatusServiceUnavailable || !decodeError(t, rec).Retryable {
		t.Fatalf("reminders without SMS: status = %d", rec.Code)
	}

	rec = do(t, http.HandlerFunc(h.CreateEvent), http.MethodPost, "/admin/events", `{"title":"  "}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("untitled event: status = %d", rec.Code)
	}
}

func TestRecordHandler_MetadataDisabled(t *testing.T) {
	h := NewRecordHandler(nil, nil)

	for _, fn := range []http.HandlerFunc{h.Extract, h.Summary} {
		rec := do(t, fn, http.MethodPost, "/records/extract", `{"image":"https://example.com/cover.jpg"}`)
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("status = %d, want 503", rec.Code)
		}
	}
}
