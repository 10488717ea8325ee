// Package repository provides persistence implementations of the local
// snapshot store using a PostgreSQL database.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/atinyakov/GophFood/internal/client/storage"
)

// PostgresKVRepository implements storage.Store against the snapshots table.
type PostgresKVRepository struct {
	// DB is the database handle for executing queries.
	DB *sql.DB
}

// NewPostgresKVRepository creates a repository over db. db must be a valid
// connection to a PostgreSQL instance with the snapshots schema applied.
func NewPostgresKVRepository(db *sql.DB) *PostgresKVRepository {
	return &PostgresKVRepository{DB: db}
}

var _ storage.Store = (*PostgresKVRepository)(nil)

// Get fetches the blob stored under key.
//
//	ctx: context for cancellation and deadlines
//	key: snapshot key
//
// Returns storage.ErrNotFound if no row exists.
func (r *PostgresKVRepository) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := r.DB.QueryRowContext(ctx, `
		SELECT value FROM snapshots WHERE key = $1
	`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("Get failed: %w", err)
	}
	return value, nil
}

// Set upserts the blob under key and refreshes its timestamp.
func (r *PostgresKVRepository) Set(ctx context.Context, key string, value []byte) error {
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO snapshots (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value,
		    updated_at = now()
	`, key, value)
	if err != nil {
		return fmt.Errorf("Set failed: %w", err)
	}
	return nil
}

// Remove deletes the row of key if present.
func (r *PostgresKVRepository) Remove(ctx context.Context, key string) error {
	if _, err := r.DB.ExecContext(ctx, `DELETE FROM snapshots WHERE key = $1`, key); err != nil {
		return fmt.Errorf("Remove failed: %w", err)
	}
	return nil
}
