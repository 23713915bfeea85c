package repository

import (
	"context"
	"fmt"
	"time"

	"quincy-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ConnectionRepository handles reads of connections and their messages
type ConnectionRepository struct {
	db *pgxpool.Pool
}

// NewConnectionRepository creates a new connection repository
func NewConnectionRepository(db *pgxpool.Pool) *ConnectionRepository {
	return &ConnectionRepository{db: db}
}

const connectionColumns = `id, event_id, user_a_id, user_b_id, created_at, last_activity_at`

func scanConnection(row pgx.Row) (*models.Connection, error) {
	var c models.Connection
	if err := row.Scan(&c.ID, &c.EventID, &c.UserAID, &c.UserBID, &c.CreatedAt, &c.LastActivityAt); err != nil {
		return nil, err
	}
	return &c, nil
}

// GetByID retrieves a connection by ID
func (r *ConnectionRepository) GetByID(ctx context.Context, id string) (*models.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections WHERE id = $1`
	c, err := scanConnection(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, wrapGet("connection", err)
	}
	return c, nil
}

// ListByUser returns every connection of the user, most recent activity first
func (r *ConnectionRepository) ListByUser(ctx context.Context, userID string) ([]*models.Connection, error) {
	query := `
		SELECT ` + connectionColumns + `
		FROM connections
		WHERE user_a_id = $1 OR user_b_id = $1
		ORDER BY last_activity_at DESC, id ASC
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	defer rows.Close()

	var conns []*models.Connection
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan connection: %w", err)
		}
		conns = append(conns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate connections: %w", err)
	}
	return conns, nil
}

// AppendMessage stores the message and bumps the connection's activity time
func (r *ConnectionRepository) AppendMessage(ctx context.Context, msg *models.Message) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO messages (id, connection_id, sender_id, content, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, msg.ID, msg.ConnectionID, msg.SenderID, msg.Content, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}

	if err := touchActivity(ctx, tx, msg.ConnectionID, msg.CreatedAt); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit message: %w", err)
	}
	return nil
}

func touchActivity(ctx context.Context, q querier, connectionID string, at time.Time) error {
	_, err := q.Exec(ctx,
		`UPDATE connections SET last_activity_at = GREATEST(last_activity_at, $1) WHERE id = $2`,
		at, connectionID,
	)
	if err != nil {
		return fmt.Errorf("failed to touch connection: %w", err)
	}
	return nil
}

// ListMessages returns the messages of a connection, oldest first
func (r *ConnectionRepository) ListMessages(ctx context.Context, connectionID string, limit, offset int) ([]*models.Message, error) {
	query := `
		SELECT id, connection_id, sender_id, content, created_at
		FROM messages
		WHERE connection_id = $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, connectionID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var msgs []*models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.ConnectionID, &m.SenderID, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msgs = append(msgs, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return msgs, nil
}

// Previews returns the partner profile and latest message of each connection
// in connectionIDs, as seen by userID, keyed by connection ID.
func (r *ConnectionRepository) Previews(ctx context.Context, userID string, connectionIDs []string) (map[string]models.ConnectionPreview, error) {
	if len(connectionIDs) == 0 {
		return map[string]models.ConnectionPreview{}, nil
	}

	query := `
		SELECT c.id, partner.id, COALESCE(p.display_name, ''), p.avatar_url,
		       m.id, m.sender_id, m.content, m.created_at
		FROM connections c
		CROSS JOIN LATERAL (
			SELECT CASE WHEN c.user_a_id = $1 THEN c.user_b_id ELSE c.user_a_id END AS id
		) partner
		LEFT JOIN profiles p ON p.user_id = partner.id
		LEFT JOIN LATERAL (
			SELECT id, sender_id, content, created_at
			FROM messages
			WHERE connection_id = c.id
			ORDER BY created_at DESC, id DESC
			LIMIT 1
		) m ON TRUE
		WHERE c.id = ANY($2) AND (c.user_a_id = $1 OR c.user_b_id = $1)
	`
	rows, err := r.db.Query(ctx, query, userID, connectionIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load connection previews: %w", err)
	}
	defer rows.Close()

	previews := make(map[string]models.ConnectionPreview, len(connectionIDs))
	for rows.Next() {
		var (
			p                      models.ConnectionPreview
			msgID, sender, content *string
			sentAt                 *time.Time
		)
		if err := rows.Scan(&p.ConnectionID, &p.PartnerID, &p.PartnerName, &p.PartnerAvatarURL,
			&msgID, &sender, &content, &sentAt); err != nil {
			return nil, fmt.Errorf("failed to scan connection preview: %w", err)
		}
		if msgID != nil {
			p.LastMessage = &models.Message{
				ID:           *msgID,
				ConnectionID: p.ConnectionID,
				SenderID:     *sender,
				Content:      *content,
				CreatedAt:    *sentAt,
			}
		}
		previews[p.ConnectionID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate connection previews: %w", err)
	}
	return previews, nil
}
