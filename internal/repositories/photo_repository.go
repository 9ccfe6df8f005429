package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/maukemana/catalog/internal/database"
	"github.com/maukemana/catalog/internal/models"
)

// PhotoRepository is the sqlx-backed store for cataloged photos.
type PhotoRepository struct {
	db *database.DB
}

func NewPhotoRepository(db *database.DB) *PhotoRepository {
	return &PhotoRepository{db: db}
}

// Upsert inserts a photo or, on a (folder_id, path) conflict, updates its
// file metadata, content hash, and modified_at — the reconcile path a
// rescan drives when a file's mtime has advanced since it was last
// cataloged. A conflicting row also resets both artifact statuses back to
// pending, since a changed file needs its thumbnail and preview re-derived.
func (r *PhotoRepository) Upsert(ctx context.Context, p *models.Photo) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO photos (id, folder_id, path, filename, format, width, height, size_bytes, content_hash,
			modified_at, thumbnail_status, preview_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11, NOW(), NOW())
		ON CONFLICT (folder_id, path) DO UPDATE SET
			filename = EXCLUDED.filename,
			format = EXCLUDED.format,
			width = EXCLUDED.width,
			height = EXCLUDED.height,
			size_bytes = EXCLUDED.size_bytes,
			content_hash = EXCLUDED.content_hash,
			modified_at = EXCLUDED.modified_at,
			thumbnail_status = EXCLUDED.thumbnail_status,
			preview_status = EXCLUDED.preview_status,
			updated_at = NOW()
	`, p.ID, p.FolderID, p.Path, p.Filename, p.Format, p.Width, p.Height, p.SizeBytes, p.ContentHash,
		p.ModifiedAt, models.PhotoStatusPending)
	if err != nil {
		return fmt.Errorf("upsert photo: %w", err)
	}
	return nil
}

// GetByID fetches a single photo, or nil if it doesn't exist.
func (r *PhotoRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Photo, error) {
	var p models.Photo
	err := r.db.GetContext(ctx, &p, `SELECT * FROM photos WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get photo: %w", err)
	}
	return &p, nil
}

// ListByFolder returns every photo cataloged under folderID, ordered by
// path for stable pagination-free listing in the UI.
func (r *PhotoRepository) ListByFolder(ctx context.Context, folderID uuid.UUID) ([]models.Photo, error) {
	var photos []models.Photo
	err := r.db.SelectContext(ctx, &photos, `SELECT * FROM photos WHERE folder_id = $1 ORDER BY path`, folderID)
	if err != nil {
		return nil, fmt.Errorf("list photos: %w", err)
	}
	return photos, nil
}

// CatalogedFile is a (id, modified_at) pair for a previously cataloged
// path, letting a rescan decide between "unchanged, leave alone" and
// "mtime advanced, re-upsert and re-enqueue" without re-reading file
// bytes for every already-known path.
type CatalogedFile struct {
	ID         uuid.UUID
	ModifiedAt time.Time
}

// ListPaths returns the relative path -> CatalogedFile mapping already
// cataloged for a folder, used by a rescan both to detect files removed
// from disk and to tell an unchanged file apart from one whose mtime has
// moved since it was last seen.
func (r *PhotoRepository) ListPaths(ctx context.Context, folderID uuid.UUID) (map[string]CatalogedFile, error) {
	rows, err := r.db.QueryxContext(ctx, `SELECT id, path, modified_at FROM photos WHERE folder_id = $1`, folderID)
	if err != nil {
		return nil, fmt.Errorf("list photo paths: %w", err)
	}
	defer rows.Close()

	out := make(map[string]CatalogedFile)
	for rows.Next() {
		var id uuid.UUID
		var path string
		var modifiedAt time.Time
		if err := rows.Scan(&id, &path, &modifiedAt); err != nil {
			return nil, fmt.Errorf("scan photo path: %w", err)
		}
		out[path] = CatalogedFile{ID: id, ModifiedAt: modifiedAt}
	}
	return out, rows.Err()
}

// SetFlag sets a photo's culling mark (none, pick, or reject).
func (r *PhotoRepository) SetFlag(ctx context.Context, id uuid.UUID, flag models.Flag) error {
	_, err := r.db.ExecContext(ctx, `UPDATE photos SET flag = $2, updated_at = NOW() WHERE id = $1`, id, flag)
	if err != nil {
		return fmt.Errorf("set photo flag: %w", err)
	}
	return nil
}

// SetFlagBatch applies SetFlag across every id in one statement.
func (r *PhotoRepository) SetFlagBatch(ctx context.Context, ids []uuid.UUID, flag models.Flag) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx, `UPDATE photos SET flag = $2, updated_at = NOW() WHERE id = ANY($1)`,
		pq.Array(pqUUIDArray(ids)), flag)
	if err != nil {
		return fmt.Errorf("set photo flag batch: %w", err)
	}
	return nil
}

// DeleteBatch removes photos outright (distinct from flagging).
func (r *PhotoRepository) DeleteBatch(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx, `DELETE FROM photos WHERE id = ANY($1)`, pq.Array(pqUUIDArray(ids)))
	if err != nil {
		return fmt.Errorf("delete photos: %w", err)
	}
	return nil
}

// UpdateArtifactStatus records the outcome of a thumbnail or preview job.
func (r *PhotoRepository) UpdateArtifactStatus(ctx context.Context, id uuid.UUID, thumbnail bool, status models.PhotoStatus, url string) error {
	var err error
	if thumbnail {
		_, err = r.db.ExecContext(ctx,
			`UPDATE photos SET thumbnail_status = $2, thumbnail_url = $3, updated_at = NOW() WHERE id = $1`,
			id, status, url)
	} else {
		_, err = r.db.ExecContext(ctx,
			`UPDATE photos SET preview_status = $2, preview_url = $3, updated_at = NOW() WHERE id = $1`,
			id, status, url)
	}
	if err != nil {
		return fmt.Errorf("update artifact status: %w", err)
	}
	return nil
}

// pqUUIDArray renders a uuid slice for lib/pq's ANY($1) array binding.
func pqUUIDArray(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
