package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type migration struct {
	version    int
	name       string
	statements []string
}

var migrations = []migration{
	{
		version: 1,
		name:    "accounts and events",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS users (
				id TEXT PRIMARY KEY,
				email TEXT NOT NULL UNIQUE,
				password_hash TEXT NOT NULL,
				phone TEXT NULL,
				push_token TEXT NULL,
				created_at TIMESTAMPTZ NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS profiles (
				user_id TEXT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
				display_name TEXT NOT NULL DEFAULT '',
				instagram_handle TEXT NULL,
				music_identity TEXT NOT NULL DEFAULT '',
				top_genres TEXT[] NOT NULL DEFAULT '{}',
				event_intent TEXT NOT NULL DEFAULT '',
				avatar_url TEXT NULL,
				onboarding_completed BOOLEAN NOT NULL DEFAULT FALSE,
				updated_at TIMESTAMPTZ NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS events (
				id TEXT PRIMARY KEY,
				title TEXT NOT NULL,
				starts_at TIMESTAMPTZ NOT NULL,
				venue_name TEXT NOT NULL DEFAULT '',
				city TEXT NOT NULL DEFAULT '',
				is_active BOOLEAN NOT NULL DEFAULT FALSE
			)`,
			`CREATE INDEX IF NOT EXISTS idx_events_active_starts_at ON events(is_active, starts_at)`,
			`CREATE TABLE IF NOT EXISTS rsvps (
				event_id TEXT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
				user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				status TEXT NOT NULL,
				source TEXT NOT NULL,
				created_at TIMESTAMPTZ NOT NULL,
				PRIMARY KEY (event_id, user_id)
			)`,
			`CREATE TABLE IF NOT EXISTS records (
				id TEXT PRIMARY KEY,
				event_id TEXT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
				user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				typed_artist TEXT NOT NULL DEFAULT '',
				typed_album TEXT NOT NULL DEFAULT '',
				image_path TEXT NULL,
				created_at TIMESTAMPTZ NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_records_event_user ON records(event_id, user_id, created_at)`,
		},
	},
	{
		version: 2,
		name:    "interests and connections",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS interests (
				id TEXT PRIMARY KEY,
				event_id TEXT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
				sender_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				receiver_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				subject_id TEXT NULL,
				status TEXT NOT NULL CHECK (status IN ('pending', 'accepted', 'declined')),
				created_at TIMESTAMPTZ NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL,
				UNIQUE (event_id, sender_id, receiver_id),
				CHECK (sender_id <> receiver_id)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_interests_receiver ON interests(receiver_id, status)`,
			`CREATE TABLE IF NOT EXISTS connections (
				id TEXT PRIMARY KEY,
				event_id TEXT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
				user_a_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				user_b_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				created_at TIMESTAMPTZ NOT NULL,
				last_activity_at TIMESTAMPTZ NOT NULL,
				UNIQUE (event_id, user_a_id, user_b_id),
				CHECK (user_a_id < user_b_id)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_connections_user_a ON connections(user_a_id, last_activity_at)`,
			`CREATE INDEX IF NOT EXISTS idx_connections_user_b ON connections(user_b_id, last_activity_at)`,
			`CREATE TABLE IF NOT EXISTS messages (
				id TEXT PRIMARY KEY,
				connection_id TEXT NOT NULL REFERENCES connections(id) ON DELETE CASCADE,
				sender_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				content TEXT NOT NULL,
				created_at TIMESTAMPTZ NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_messages_connection_created ON messages(connection_id, created_at)`,
		},
	},
	{
		version: 3,
		name:    "pending uploads",
		statements: []string{
			`ALTER TABLE records ADD COLUMN IF NOT EXISTS upload_key TEXT NULL`,
			`CREATE INDEX IF NOT EXISTS idx_records_event_uploaded ON records(event_id, user_id) WHERE image_path IS NOT NULL`,
		},
	},
}

// SchemaVersion is the version the database is at after Migrate
func SchemaVersion() int {
	return migrations[len(migrations)-1].version
}

// Migrate applies every pending migration, each in its own transaction.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	if db == nil {
		return fmt.Errorf("migrate: db is nil")
	}

	_, err := db.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY, applied_at TIMESTAMPTZ NOT NULL DEFAULT now())`)
	if err != nil {
		return fmt.Errorf("migrate: create schema_migrations: %w", err)
	}

	var current int
	if err := db.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("migrate: read current version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := apply(ctx, db, m); err != nil {
			return err
		}
	}
	return nil
}

func apply(ctx context.Context, db *pgxpool.Pool, m migration) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("migrate %d: begin transaction: %w", m.version, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for i, stmt := range m.statements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %d (%s) statement %d: %w", m.version, m.name, i+1, err)
		}
	}

	if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations(version) VALUES ($1)`, m.version); err != nil {
		return fmt.Errorf("migrate %d: record schema version: %w", m.version, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("migrate %d: commit transaction: %w", m.version, err)
	}
	return nil
}
