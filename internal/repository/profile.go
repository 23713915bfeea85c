package repository

import (
	"context"
	"fmt"

	"quincy-backend/internal/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ProfileRepository handles database operations for profiles
type ProfileRepository struct {
	db *pgxpool.Pool
}

func NewProfileRepository(db *pgxpool.Pool) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// GetByUserID retrieves the profile of a user
func (r *ProfileRepository) GetByUserID(ctx context.Context, userID string) (*models.Profile, error) {
	query := `
		SELECT user_id, display_name, instagram_handle, music_identity, top_genres,
		       event_intent, avatar_url, onboarding_completed, updated_at
		FROM profiles
		WHERE user_id = $1
	`
	var p models.Profile
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&p.UserID, &p.DisplayName, &p.InstagramHandle, &p.MusicIdentity, &p.TopGenres,
		&p.EventIntent, &p.AvatarURL, &p.OnboardingCompleted, &p.UpdatedAt,
	)
	if err != nil {
		return nil, wrapGet("profile", err)
	}
	return &p, nil
}

// Upsert writes the profile. onboarding_completed never goes back to false.
func (r *ProfileRepository) Upsert(ctx context.Context, p *models.Profile) error {
	if p.TopGenres == nil {
		p.TopGenres = []string{}
	}
	query := `
		INSERT INTO profiles (user_id, display_name, instagram_handle, music_identity, top_genres,
		                      event_intent, avatar_url, onboarding_completed, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			instagram_handle = EXCLUDED.instagram_handle,
			music_identity = EXCLUDED.music_identity,
			top_genres = EXCLUDED.top_genres,
			event_intent = EXCLUDED.event_intent,
			avatar_url = COALESCE(EXCLUDED.avatar_url, profiles.avatar_url),
			onboarding_completed = profiles.onboarding_completed OR EXCLUDED.onboarding_completed,
			updated_at = EXCLUDED.updated_at
		RETURNING onboarding_completed
	`
	err := r.db.QueryRow(ctx, query,
		p.UserID, p.DisplayName, p.InstagramHandle, p.MusicIdentity, p.TopGenres,
		p.EventIntent, p.AvatarURL, p.OnboardingCompleted, p.UpdatedAt,
	).Scan(&p.OnboardingCompleted)
	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}
