// Package handlestore is C7d: a Postgres-backed key/handle table. In a
// headless service there is no browser File System Access API handle to
// persist — a "handle" here is redefined as an absolute directory path
// plus the timestamp it was last verified readable, which is what a
// re-selected folder needs to resume scanning without a user re-picking
// it.
package handlestore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/maukemana/catalog/internal/database"
)

// Handle is a previously selected folder, remembered across restarts.
type Handle struct {
	Key              string    `db:"key"`
	AbsolutePath     string    `db:"absolute_path"`
	LastVerifiedAt   time.Time `db:"last_verified_at"`
}

// Store persists Handles in the handle_store table.
type Store struct {
	db *database.DB
}

func New(db *database.DB) *Store {
	return &Store{db: db}
}

// Put records or refreshes a handle under key.
func (s *Store) Put(ctx context.Context, key, absolutePath string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO handle_store (key, absolute_path, last_verified_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET absolute_path = EXCLUDED.absolute_path, last_verified_at = NOW()
	`, key, absolutePath)
	if err != nil {
		return fmt.Errorf("put handle: %w", err)
	}
	return nil
}

// Get looks up a handle by key, or nil if it doesn't exist.
func (s *Store) Get(ctx context.Context, key string) (*Handle, error) {
	var h Handle
	err := s.db.GetContext(ctx, &h, `SELECT * FROM handle_store WHERE key = $1`, key)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get handle: %w", err)
	}
	return &h, nil
}

// Touch refreshes last_verified_at after confirming the path is still
// readable, without changing the stored path.
func (s *Store) Touch(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE handle_store SET last_verified_at = NOW() WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("touch handle: %w", err)
	}
	return nil
}

// Delete removes a handle.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM handle_store WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("delete handle: %w", err)
	}
	return nil
}
