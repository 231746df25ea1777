package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresStore keeps the checkpoint in a single-row-per-connector Postgres
// table, for deployments where the connector host has no durable filesystem.
type PostgresStore struct {
	db        *sql.DB
	connector string
}

// NewPostgresStore creates a store keyed by the connector identifier
// (normally the target implementation name).
func NewPostgresStore(db *sql.DB, connector string) *PostgresStore {
	return &PostgresStore{db: db, connector: connector}
}

// EnsureSchema creates the checkpoint table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS sync_checkpoints (
			connector TEXT PRIMARY KEY,
			checkpoint TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("create sync_checkpoints table: %w", err)
	}
	return nil
}

// Load returns the saved checkpoint for this connector, or DefaultCheckpoint
// when no row exists.
func (s *PostgresStore) Load(ctx context.Context) (time.Time, error) {
	query := `
		SELECT checkpoint
		FROM sync_checkpoints
		WHERE connector = $1
	`

	var checkpoint time.Time
	err := s.db.QueryRowContext(ctx, query, s.connector).Scan(&checkpoint)
	if err == sql.ErrNoRows {
		return DefaultCheckpoint, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("load checkpoint for %s: %w", s.connector, err)
	}

	return checkpoint.UTC(), nil
}

// Save upserts the checkpoint row for this connector.
func (s *PostgresStore) Save(ctx context.Context, checkpoint time.Time) error {
	query := `
		INSERT INTO sync_checkpoints (connector, checkpoint, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (connector)
		DO UPDATE SET checkpoint = EXCLUDED.checkpoint, updated_at = NOW()
	`

	if _, err := s.db.ExecContext(ctx, query, s.connector, checkpoint.UTC()); err != nil {
		return fmt.Errorf("save checkpoint for %s: %w", s.connector, err)
	}
	return nil
}
