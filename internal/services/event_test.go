package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"quincy-backend/internal/models"
)

type memEvents struct {
	events []*models.Event
	rsvps  map[string]*models.RSVP
}

func (m *memEvents) Create(ctx context.Context, e *models.Event) error {
	if e.IsActive {
		for _, other := range m.events {
			other.IsActive = false
		}
	}
	m.events = append(m.events, e)
	return nil
}

func (m *memEvents) GetActive(ctx context.Context) (*models.Event, error) {
	var active *models.Event
	for _, e := range m.events {
		if e.IsActive && (active == nil || e.StartsAt.Before(active.StartsAt)) {
			active = e
		}
	}
	if active == nil {
		return nil, ErrNotFound
	}
	return active, nil
}

func (m *memEvents) UpsertRSVP(ctx context.Context, r *models.RSVP) error {
	key := r.EventID + "|" + r.UserID
	if prev, ok := m.rsvps[key]; ok {
		r.CreatedAt = prev.CreatedAt
	}
	m.rsvps[key] = r
	return nil
}

func TestRSVP(t *testing.T) {
	ctx := context.Background()
	store := &memEvents{rsvps: map[string]*models.RSVP{}}
	pub := &recordingPublisher{}
	s := NewEventService(store, pub)

	if _, err := s.RSVP(ctx, "u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("RSVP without active event: err = %v, want ErrNotFound", err)
	}

	event, err := s.CreateEvent(ctx, CreateEventRequest{
		Title:    "Quincy Vinyl Night",
		StartsAt: time.Date(2026, 11, 6, 19, 0, 0, 0, time.UTC),
		IsActive: true,
	})
	if err != nil {
		t.Fatalf("CreateEvent() error = %v", err)
	}

	first, err := s.RSVP(ctx, "u1")
	if err != nil {
		t.Fatalf("RSVP() error = %v", err)
	}
	if first.EventID != event.ID || first.Status != models.RSVPStatusGoing || first.Source != "quincy" {
		t.Fatalf("rsvp = %+v", first)
	}
	second, err := s.RSVP(ctx, "u1")
	if err != nil {
		t.Fatalf("repeat RSVP() error = %v", err)
	}
	if len(store.rsvps) != 1 || !second.CreatedAt.Equal(first.CreatedAt) {
		t.Fatalf("repeat RSVP created a second row")
	}
	if len(pub.users) != 2 {
		t.Fatalf("published %d times, want 2", len(pub.users))
	}
}

func TestCreateEvent_Validation(t *testing.T) {
	s := NewEventService(&memEvents{rsvps: map[string]*models.RSVP{}}, nil)
	ctx := context.Background()

	if _, err := s.CreateEvent(ctx, CreateEventRequest{StartsAt: time.Now()}); !errors.Is(err, ErrValidation) {
		t.Fatalf("missing title: err = %v", err)
	}
	if _, err := s.CreateEvent(ctx, CreateEventRequest{Title: "x"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("missing start: err = %v", err)
	}
}
