package repository

import (
	"context"
	"errors"
	"fmt"

	"quincy-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ProgressRepository derives funnel progress from profiles, RSVPs and records
type ProgressRepository struct {
	db *pgxpool.Pool
}

func NewProgressRepository(db *pgxpool.Pool) *ProgressRepository {
	return &ProgressRepository{db: db}
}

// ActiveEventID returns "" when no event is active
func (r *ProgressRepository) ActiveEventID(ctx context.Context) (string, error) {
	var id string
	err := r.db.QueryRow(ctx, `SELECT id FROM events WHERE is_active ORDER BY starts_at ASC LIMIT 1`).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get active event id: %w", err)
	}
	return id, nil
}

// Lookup reads the stored progress flags. Authenticated is left to the caller.
func (r *ProgressRepository) Lookup(ctx context.Context, userID, eventID string) (models.Progress, error) {
	query := `
		SELECT
			COALESCE((SELECT onboarding_completed FROM profiles WHERE user_id = $1), FALSE),
			EXISTS (SELECT 1 FROM rsvps WHERE user_id = $1 AND event_id = $2 AND status = $3),
			EXISTS (SELECT 1 FROM records WHERE user_id = $1 AND event_id = $2 AND image_path IS NOT NULL)
	`
	var p models.Progress
	err := r.db.QueryRow(ctx, query, userID, eventID, models.RSVPStatusGoing).
		Scan(&p.OnboardingComplete, &p.HasRSVP, &p.HasUploaded)
	if err != nil {
		return models.Progress{}, fmt.Errorf("failed to look up progress: %w", err)
	}
	return p, nil
}
