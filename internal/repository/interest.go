package repository

import (
	"context"
	"fmt"
	"time"

	"quincy-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// InterestTx is the set of operations available inside a per-pair critical section
type InterestTx interface {
	FindInterest(ctx context.Context, eventID, senderID, receiverID string) (*models.Interest, error)
	GetInterest(ctx context.Context, id string) (*models.Interest, error)
	// InsertInterest is conflict-safe: if the directed row exists it is returned instead.
	InsertInterest(ctx context.Context, interest *models.Interest) (*models.Interest, error)
	SetInterestStatus(ctx context.Context, id string, status models.InterestStatus, at time.Time) error
	// UpsertConnection reports whether this call created the row.
	UpsertConnection(ctx context.Context, conn *models.Connection) (*models.Connection, bool, error)
}

// InterestRepository stores directed interests and the connections they form
type InterestRepository struct {
	db *pgxpool.Pool
}

func NewInterestRepository(db *pgxpool.Pool) *InterestRepository {
	return &InterestRepository{db: db}
}

// InPairTx runs fn in a transaction holding an advisory lock on the pair, so
// both directions of a pair are serialized.
func (r *InterestRepository) InPairTx(ctx context.Context, key models.PairKey, fn func(InterestTx) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key.String()); err != nil {
		return fmt.Errorf("failed to lock pair: %w", err)
	}

	if err := fn(&interestTx{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit pair transaction: %w", err)
	}
	return nil
}

// GetInterest retrieves an interest outside of any pair transaction
func (r *InterestRepository) GetInterest(ctx context.Context, id string) (*models.Interest, error) {
	return (&interestTx{q: r.db}).GetInterest(ctx, id)
}

// IsAttendee reports whether userID has an uploaded record in the event, which
// is what puts them on the Vinyl Wall.
func (r *InterestRepository) IsAttendee(ctx context.Context, eventID, userID string) (bool, error) {
	var ok bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM records
			WHERE event_id = $1 AND user_id = $2 AND image_path IS NOT NULL
		)`, eventID, userID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("failed to check attendee: %w", err)
	}
	return ok, nil
}

// ListIncoming returns pending interests addressed to the receiver, newest first
func (r *InterestRepository) ListIncoming(ctx context.Context, eventID, receiverID string) ([]*models.Interest, error) {
	query := `SELECT ` + interestColumns + ` FROM interests
		WHERE event_id = $1 AND receiver_id = $2 AND status = $3
		ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, query, eventID, receiverID, models.InterestPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list incoming interests: %w", err)
	}
	defer rows.Close()

	var out []*models.Interest
	for rows.Next() {
		i, err := scanInterest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan interest: %w", err)
		}
		out = append(out, i)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate interests: %w", err)
	}
	return out, nil
}

type interestTx struct {
	q querier
}

const interestColumns = `id, event_id, sender_id, receiver_id, subject_id, status, created_at, updated_at`

func scanInterest(row pgx.Row) (*models.Interest, error) {
	var i models.Interest
	err := row.Scan(&i.ID, &i.EventID, &i.SenderID, &i.ReceiverID, &i.SubjectID, &i.Status, &i.CreatedAt, &i.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &i, nil
}

func (t *interestTx) FindInterest(ctx context.Context, eventID, senderID, receiverID string) (*models.Interest, error) {
	query := `SELECT ` + interestColumns + ` FROM interests
		WHERE event_id = $1 AND sender_id = $2 AND receiver_id = $3`
	i, err := scanInterest(t.q.QueryRow(ctx, query, eventID, senderID, receiverID))
	if err != nil {
		return nil, wrapGet("interest", err)
	}
	return i, nil
}

func (t *interestTx) GetInterest(ctx context.Context, id string) (*models.Interest, error) {
	query := `SELECT ` + interestColumns + ` FROM interests WHERE id = $1`
	i, err := scanInterest(t.q.QueryRow(ctx, query, id))
	if err != nil {
		return nil, wrapGet("interest", err)
	}
	return i, nil
}

func (t *interestTx) InsertInterest(ctx context.Context, in *models.Interest) (*models.Interest, error) {
	query := `
		INSERT INTO interests (` + interestColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (event_id, sender_id, receiver_id) DO NOTHING
		RETURNING ` + interestColumns
	i, err := scanInterest(t.q.QueryRow(ctx, query,
		in.ID, in.EventID, in.SenderID, in.ReceiverID, in.SubjectID, in.Status, in.CreatedAt, in.UpdatedAt,
	))
	if err == nil {
		return i, nil
	}
	if isForeignKeyViolation(err) {
		return nil, fmt.Errorf("interest references a missing user or event: %w", ErrNotFound)
	}
	if err != pgx.ErrNoRows {
		return nil, fmt.Errorf("failed to insert interest: %w", err)
	}
	// Row already existed
	return t.FindInterest(ctx, in.EventID, in.SenderID, in.ReceiverID)
}

func (t *interestTx) SetInterestStatus(ctx context.Context, id string, status models.InterestStatus, at time.Time) error {
	result, err := t.q.Exec(ctx, `UPDATE interests SET status = $1, updated_at = $2 WHERE id = $3`, status, at, id)
	if err != nil {
		return fmt.Errorf("failed to update interest status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("interest %s: %w", id, ErrNotFound)
	}
	return nil
}

func (t *interestTx) UpsertConnection(ctx context.Context, c *models.Connection) (*models.Connection, bool, error) {
	query := `
		INSERT INTO connections (` + connectionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (event_id, user_a_id, user_b_id) DO NOTHING
		RETURNING ` + connectionColumns
	conn, err := scanConnection(t.q.QueryRow(ctx, query,
		c.ID, c.EventID, c.UserAID, c.UserBID, c.CreatedAt, c.LastActivityAt,
	))
	if err == nil {
		return conn, true, nil
	}
	if isForeignKeyViolation(err) {
		return nil, false, fmt.Errorf("connection references a missing user or event: %w", ErrNotFound)
	}
	if err != pgx.ErrNoRows {
		return nil, false, fmt.Errorf("failed to upsert connection: %w", err)
	}

	query = `SELECT ` + connectionColumns + ` FROM connections
		WHERE event_id = $1 AND user_a_id = $2 AND user_b_id = $3`
	conn, err = scanConnection(t.q.QueryRow(ctx, query, c.EventID, c.UserAID, c.UserBID))
	if err != nil {
		return nil, false, wrapGet("connection", err)
	}
	return conn, false, nil
}
