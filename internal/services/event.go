package services

import (
	"context"
	"strings"
	"time"

	"quincy-backend/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const rsvpSource = "quincy"

type EventStore interface {
	Create(ctx context.Context, event *models.Event) error
	GetActive(ctx context.Context) (*models.Event, error)
	UpsertRSVP(ctx context.Context, rsvp *models.RSVP) error
}

// EventService handles the active event and RSVPs
type EventService struct {
	events    EventStore
	publisher ProgressPublisher
}

func NewEventService(events EventStore, publisher ProgressPublisher) *EventService {
	return &EventService{events: events, publisher: publisher}
}

// ActiveEvent returns the earliest active event, or ErrNotFound
func (s *EventService) ActiveEvent(ctx context.Context) (*models.Event, error) {
	e, err := s.events.GetActive(ctx)
	if err != nil {
		return nil, storeError("active event", err)
	}
	return e, nil
}

// RSVP marks userID as going to the active event. Repeating it is harmless.
func (s *EventService) RSVP(ctx context.Context, userID string) (*models.RSVP, error) {
	event, err := s.ActiveEvent(ctx)
	if err != nil {
		return nil, err
	}

	rsvp := &models.RSVP{
		EventID:   event.ID,
		UserID:    userID,
		Status:    models.RSVPStatusGoing,
		Source:    rsvpSource,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.events.UpsertRSVP(ctx, rsvp); err != nil {
		return nil, storeError("rsvp", err)
	}

	log.Info().Str("user_id", userID).Str("event_id", event.ID).Msg("RSVP recorded")
	if s.publisher != nil {
		s.publisher.Publish(ctx, userID)
	}
	return rsvp, nil
}

// CreateEventRequest represents an admin request to schedule an event
type CreateEventRequest struct {
	Title     string    `json:"title"`
	StartsAt  time.Time `json:"starts_at"`
	VenueName string    `json:"venue_name"`
	City      string    `json:"city"`
	IsActive  bool      `json:"is_active"`
}

// CreateEvent schedules an event. An active event replaces the previous one.
func (s *EventService) CreateEvent(ctx context.Context, req CreateEventRequest) (*models.Event, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, validationError("title is required")
	}
	if req.StartsAt.IsZero() {
		return nil, validationError("starts_at is required")
	}

	event := &models.Event{
		ID:        uuid.New().String(),
		Title:     title,
		StartsAt:  req.StartsAt.UTC(),
		VenueName: strings.TrimSpace(req.VenueName),
		City:      strings.TrimSpace(req.City),
		IsActive:  req.IsActive,
	}
	if err := s.events.Create(ctx, event); err != nil {
		return nil, storeError("create event", err)
	}
	return event, nil
}
