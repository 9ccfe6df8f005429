package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"

	"github.com/maukemana/catalog/internal/catalogerr"
)

// DiskTier is a local-filesystem PersistentTier: the default for a
// single-machine deployment, standing in for the S3Tier without requiring
// network object storage.
type DiskTier struct {
	dir     string
	baseURL string
}

// NewDiskTier roots a tier at dir, creating it if necessary. baseURL, if
// set, prefixes the URLs minted for cached entries; otherwise they are
// file:// URLs of the backing files.
func NewDiskTier(dir, baseURL string) (*DiskTier, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create disk tier directory: %w", err)
	}
	return &DiskTier{dir: dir, baseURL: baseURL}, nil
}

func (t *DiskTier) path(id uuid.UUID) string {
	return filepath.Join(t.dir, id.String()+".bin")
}

func (t *DiskTier) Get(ctx context.Context, id uuid.UUID) ([]byte, bool, error) {
	data, err := os.ReadFile(t.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read cached blob: %w", err)
	}
	return data, true, nil
}

func (t *DiskTier) Put(ctx context.Context, id uuid.UUID, blob []byte) (string, error) {
	if err := os.WriteFile(t.path(id), blob, 0o644); err != nil {
		if errors.Is(err, syscall.ENOSPC) {
			return "", catalogerr.StorageFull("no space left on device", err)
		}
		return "", fmt.Errorf("write cached blob: %w", err)
	}
	return t.urlFor(id), nil
}

func (t *DiskTier) Delete(ctx context.Context, id uuid.UUID) error {
	err := os.Remove(t.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (t *DiskTier) urlFor(id uuid.UUID) string {
	if t.baseURL != "" {
		return t.baseURL + "/" + id.String()
	}
	return "file://" + t.path(id)
}
