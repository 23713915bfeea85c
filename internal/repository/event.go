package repository

import (
	"context"
	"fmt"

	"quincy-backend/internal/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EventRepository handles database operations for events and RSVPs
type EventRepository struct {
	db *pgxpool.Pool
}

func NewEventRepository(db *pgxpool.Pool) *EventRepository {
	return &EventRepository{db: db}
}

// Create inserts an event. Activating it deactivates every other event.
func (r *EventRepository) Create(ctx context.Context, event *models.Event) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if event.IsActive {
		if _, err := tx.Exec(ctx, `UPDATE events SET is_active = FALSE WHERE is_active`); err != nil {
			return fmt.Errorf("failed to deactivate events: %w", err)
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO events (id, title, starts_at, venue_name, city, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, event.ID, event.Title, event.StartsAt, event.VenueName, event.City, event.IsActive)
	if err != nil {
		return fmt.Errorf("failed to create event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit event: %w", err)
	}
	return nil
}

// GetActive returns the earliest active event
func (r *EventRepository) GetActive(ctx context.Context) (*models.Event, error) {
	query := `
		SELECT id, title, starts_at, venue_name, city, is_active
		FROM events
		WHERE is_active
		ORDER BY starts_at ASC
		LIMIT 1
	`
	var e models.Event
	err := r.db.QueryRow(ctx, query).Scan(&e.ID, &e.Title, &e.StartsAt, &e.VenueName, &e.City, &e.IsActive)
	if err != nil {
		return nil, wrapGet("active event", err)
	}
	return &e, nil
}

// UpsertRSVP records the user as going. A repeated RSVP keeps the original creation time.
func (r *EventRepository) UpsertRSVP(ctx context.Context, rsvp *models.RSVP) error {
	query := `
		INSERT INTO rsvps (event_id, user_id, status, source, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (event_id, user_id) DO UPDATE SET
			status = EXCLUDED.status,
			source = EXCLUDED.source
		RETURNING created_at
	`
	err := r.db.QueryRow(ctx, query, rsvp.EventID, rsvp.UserID, rsvp.Status, rsvp.Source, rsvp.CreatedAt).
		Scan(&rsvp.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert rsvp: %w", err)
	}
	return nil
}

// ListWithoutUpload returns attendees of the event who have not confirmed a
// record upload yet and have a phone number on file.
func (r *EventRepository) ListWithoutUpload(ctx context.Context, eventID string) ([]models.ReminderTarget, error) {
	query := `
		SELECT u.id, u.phone, COALESCE(p.display_name, '')
		FROM rsvps v
		JOIN users u ON u.id = v.user_id
		LEFT JOIN profiles p ON p.user_id = u.id
		WHERE v.event_id = $1
		  AND v.status = $2
		  AND u.phone IS NOT NULL AND u.phone <> ''
		  AND NOT EXISTS (
			SELECT 1 FROM records rec
			WHERE rec.event_id = v.event_id AND rec.user_id = v.user_id AND rec.image_path IS NOT NULL
		  )
		ORDER BY v.created_at ASC
	`
	rows, err := r.db.Query(ctx, query, eventID, models.RSVPStatusGoing)
	if err != nil {
		return nil, fmt.Errorf("failed to list reminder targets: %w", err)
	}
	defer rows.Close()

	var targets []models.ReminderTarget
	for rows.Next() {
		var t models.ReminderTarget
		if err := rows.Scan(&t.UserID, &t.Phone, &t.DisplayName); err != nil {
			return nil, fmt.Errorf("failed to scan reminder target: %w", err)
		}
		targets = append(targets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reminder targets: %w", err)
	}
	return targets, nil
}
