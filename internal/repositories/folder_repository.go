package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/maukemana/catalog/internal/database"
	"github.com/maukemana/catalog/internal/models"
)

// FolderRepository is the sqlx-backed store for scanned folders.
type FolderRepository struct {
	db *database.DB
}

func NewFolderRepository(db *database.DB) *FolderRepository {
	return &FolderRepository{db: db}
}

// GetOrCreate returns the folder row for path, creating it if this is the
// first time the catalog has seen it. The second return value reports
// whether this call did the creating, so a handler can distinguish
// "registered a new folder" from "pointed at one already known" in its
// response status.
func (r *FolderRepository) GetOrCreate(ctx context.Context, path string) (*models.Folder, bool, error) {
	var f models.Folder
	err := r.db.GetContext(ctx, &f, `SELECT * FROM folders WHERE path = $1`, path)
	if err == nil {
		return &f, false, nil
	}
	if err != sql.ErrNoRows {
		return nil, false, fmt.Errorf("lookup folder: %w", err)
	}

	f = models.Folder{ID: uuid.New(), Path: path}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO folders (id, path, photo_count, created_at)
		VALUES ($1, $2, 0, NOW())
		ON CONFLICT (path) DO NOTHING
	`, f.ID, f.Path)
	if err != nil {
		return nil, false, fmt.Errorf("create folder: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("create folder: %w", err)
	}
	folder, _, err := r.GetOrCreate(ctx, path)
	return folder, err == nil && inserted == 1, err
}

// GetByID fetches a single folder, or nil if it doesn't exist.
func (r *FolderRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Folder, error) {
	var f models.Folder
	err := r.db.GetContext(ctx, &f, `SELECT * FROM folders WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get folder: %w", err)
	}
	return &f, nil
}

// List returns every known folder, most recently scanned first.
func (r *FolderRepository) List(ctx context.Context) ([]models.Folder, error) {
	var folders []models.Folder
	err := r.db.SelectContext(ctx, &folders, `SELECT * FROM folders ORDER BY last_scan_at DESC NULLS LAST, created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list folders: %w", err)
	}
	return folders, nil
}

// MarkScanned stamps last_scan_at and the reconciled photo count after a
// scan or rescan completes.
func (r *FolderRepository) MarkScanned(ctx context.Context, id uuid.UUID, photoCount int) error {
	_, err := r.db.ExecContext(ctx, `UPDATE folders SET last_scan_at = NOW(), photo_count = $2 WHERE id = $1`, id, photoCount)
	if err != nil {
		return fmt.Errorf("mark folder scanned: %w", err)
	}
	return nil
}
