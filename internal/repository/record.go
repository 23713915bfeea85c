package repository

import (
	"context"
	"fmt"

	"quincy-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RecordRepository handles database operations for records
type RecordRepository struct {
	db *pgxpool.Pool
}

// NewRecordRepository creates a new record repository
func NewRecordRepository(db *pgxpool.Pool) *RecordRepository {
	return &RecordRepository{db: db}
}

const recordColumns = "id, event_id, user_id, typed_artist, typed_album, image_path, COALESCE(upload_key, ''), created_at"

const entryColumns = `rec.id, rec.event_id, rec.user_id, rec.typed_artist, rec.typed_album, rec.image_path,
	COALESCE(rec.upload_key, ''), rec.created_at,
	p.user_id, p.display_name, p.instagram_handle, p.music_identity, p.top_genres,
	p.event_intent, p.avatar_url, p.onboarding_completed, p.updated_at`

func scanRecord(row pgx.Row) (*models.Record, error) {
	var rec models.Record
	err := row.Scan(&rec.ID, &rec.EventID, &rec.UserID, &rec.TypedArtist,
		&rec.TypedAlbum, &rec.ImagePath, &rec.UploadKey, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func scanEntry(row pgx.Row) (models.WallEntry, error) {
	var e models.WallEntry
	err := row.Scan(
		&e.Record.ID, &e.Record.EventID, &e.Record.UserID, &e.Record.TypedArtist,
		&e.Record.TypedAlbum, &e.Record.ImagePath, &e.Record.UploadKey, &e.Record.CreatedAt,
		&e.Profile.UserID, &e.Profile.DisplayName, &e.Profile.InstagramHandle,
		&e.Profile.MusicIdentity, &e.Profile.TopGenres, &e.Profile.EventIntent,
		&e.Profile.AvatarURL, &e.Profile.OnboardingCompleted, &e.Profile.UpdatedAt,
	)
	return e, err
}

// Create stores a record. A record without ImagePath is pending until
// MarkUploaded.
func (r *RecordRepository) Create(ctx context.Context, rec *models.Record) error {
	query := `
		INSERT INTO records (id, event_id, user_id, typed_artist, typed_album, image_path, upload_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8)
	`
	_, err := r.db.Exec(ctx, query,
		rec.ID, rec.EventID, rec.UserID, rec.TypedArtist, rec.TypedAlbum, rec.ImagePath, rec.UploadKey, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create record: %w", err)
	}
	return nil
}

// GetByID returns a record, pending or not
func (r *RecordRepository) GetByID(ctx context.Context, id string) (*models.Record, error) {
	rec, err := scanRecord(r.db.QueryRow(ctx, `SELECT `+recordColumns+` FROM records WHERE id = $1`, id))
	if err != nil {
		return nil, wrapGet("record", err)
	}
	return rec, nil
}

// MarkUploaded promotes the pending upload key to the record's image path.
// Calling it on a confirmed record leaves the path unchanged.
func (r *RecordRepository) MarkUploaded(ctx context.Context, id string) (*models.Record, error) {
	query := `
		UPDATE records SET image_path = COALESCE(image_path, upload_key)
		WHERE id = $1
		RETURNING ` + recordColumns
	rec, err := scanRecord(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, wrapGet("record", err)
	}
	return rec, nil
}

// GetEntry returns a record joined with its owner's profile
func (r *RecordRepository) GetEntry(ctx context.Context, id string) (*models.WallEntry, error) {
	query := `SELECT ` + entryColumns + `
		FROM records rec
		JOIN profiles p ON p.user_id = rec.user_id
		WHERE rec.id = $1`
	e, err := scanEntry(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, wrapGet("record", err)
	}
	return &e, nil
}

// ListByUser returns every record the user registered for the event,
// including pending ones, oldest first.
func (r *RecordRepository) ListByUser(ctx context.Context, eventID, userID string) ([]*models.Record, error) {
	query := `SELECT ` + recordColumns + `
		FROM records
		WHERE event_id = $1 AND user_id = $2
		ORDER BY created_at ASC, id ASC`
	rows, err := r.db.Query(ctx, query, eventID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var records []*models.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}
	return records, nil
}

// ListEntriesByUser returns the user's uploaded records for the event joined
// with their profile, oldest first.
func (r *RecordRepository) ListEntriesByUser(ctx context.Context, eventID, userID string) ([]models.WallEntry, error) {
	query := `SELECT ` + entryColumns + `
		FROM records rec
		JOIN profiles p ON p.user_id = rec.user_id
		WHERE rec.event_id = $1 AND rec.user_id = $2 AND rec.image_path IS NOT NULL
		ORDER BY rec.created_at ASC, rec.id ASC`
	return r.listEntries(ctx, query, eventID, userID)
}

// ListWall returns the first uploaded record of every other attendee of the
// event, newest first, skipping users the viewer already expressed interest in.
func (r *RecordRepository) ListWall(ctx context.Context, eventID, viewerID string) ([]models.WallEntry, error) {
	query := `SELECT ` + entryColumns + `
		FROM (
			SELECT DISTINCT ON (r.user_id) r.*
			FROM records r
			WHERE r.event_id = $1 AND r.user_id <> $2 AND r.image_path IS NOT NULL
			ORDER BY r.user_id, r.created_at ASC
		) rec
		JOIN profiles p ON p.user_id = rec.user_id
		WHERE NOT EXISTS (
			SELECT 1 FROM interests i
			WHERE i.event_id = rec.event_id AND i.sender_id = $2 AND i.receiver_id = rec.user_id
		)
		ORDER BY rec.created_at DESC`
	return r.listEntries(ctx, query, eventID, viewerID)
}

func (r *RecordRepository) listEntries(ctx context.Context, query string, args ...any) ([]models.WallEntry, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var entries []models.WallEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate record entries: %w", err)
	}
	return entries, nil
}
