package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/maukemana/catalog/internal/database"
	"github.com/maukemana/catalog/internal/models"
)

// EditRepository stores the opaque edit-state payload behind a photo's
// regenerated thumbnail. Neither this repository nor the scheduler
// interprets the payload's contents.
type EditRepository struct {
	db *database.DB
}

func NewEditRepository(db *database.DB) *EditRepository {
	return &EditRepository{db: db}
}

// Upsert stores or replaces the edit-state payload for photoID.
func (r *EditRepository) Upsert(ctx context.Context, photoID uuid.UUID, editState []byte) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO photo_edits (photo_id, edit_state, updated_at)
		VALUES ($1, $2::jsonb, NOW())
		ON CONFLICT (photo_id) DO UPDATE SET edit_state = EXCLUDED.edit_state, updated_at = NOW()
	`, photoID, editState)
	if err != nil {
		return fmt.Errorf("upsert photo edit: %w", err)
	}
	return nil
}

// Get returns the stored edit-state payload for photoID, or nil if none
// exists.
func (r *EditRepository) Get(ctx context.Context, photoID uuid.UUID) (*models.PhotoEdit, error) {
	var e models.PhotoEdit
	err := r.db.GetContext(ctx, &e, `SELECT * FROM photo_edits WHERE photo_id = $1`, photoID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get photo edit: %w", err)
	}
	return &e, nil
}
