// Package app wires the catalog's components together: configuration,
// database, the two-tier artifact caches, the imaging pipeline, and the
// orchestrator. cmd/catalog's serve and scan subcommands start from App.
package app

import (
	"context"
	"fmt"

	"github.com/maukemana/catalog/internal/cache"
	"github.com/maukemana/catalog/internal/catalog"
	"github.com/maukemana/catalog/internal/config"
	"github.com/maukemana/catalog/internal/database"
	"github.com/maukemana/catalog/internal/handlestore"
	"github.com/maukemana/catalog/internal/imaging"
	"github.com/maukemana/catalog/internal/repositories"
)

// App holds every long-lived component a subcommand might need.
type App struct {
	Config  *config.Config
	DB      *database.DB
	Catalog *catalog.Catalog

	imagingSvc *imaging.Service
	photoProc  *imaging.PhotoProcessor
}

// New loads configuration, connects to the database, and wires the
// artifact pipeline and catalog orchestrator.
func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	thumbTier, previewTier, err := buildTiers(cfg)
	if err != nil {
		db.Close()
		return nil, err
	}

	thumbCache := cache.New("thumbnail", cfg.ThumbnailCacheCapacity, cache.WithPersistentTier(thumbTier))
	previewCache := cache.New("preview", cfg.PreviewCacheCapacity, cache.WithPersistentTier(previewTier))

	decoder := imaging.NewDecoder()

	folders := repositories.NewFolderRepository(db)
	photos := repositories.NewPhotoRepository(db)
	edits := repositories.NewEditRepository(db)
	handles := handlestore.New(db)

	cat := catalog.New(folders, photos, edits, handles)

	imagingSvc := imaging.NewService(decoder, thumbCache, previewCache, cat.OnArtifactEvent)
	photoProc := imaging.NewPhotoProcessor(decoder, thumbCache, previewCache, cat.OnPhotoProcessed, cat.OnPhotoError)

	cat.SetPipeline(imagingSvc, photoProc)

	return &App{
		Config:     cfg,
		DB:         db,
		Catalog:    cat,
		imagingSvc: imagingSvc,
		photoProc:  photoProc,
	}, nil
}

func buildTiers(cfg *config.Config) (cache.PersistentTier, cache.PersistentTier, error) {
	switch cfg.PersistentTier {
	case "s3":
		thumb, err := cache.NewS3Tier(cfg.R2AccountID, cfg.R2AccessKeyID, cfg.R2SecretAccessKey, cfg.R2BucketName, cfg.R2PublicURL, "thumbnails")
		if err != nil {
			return nil, nil, fmt.Errorf("build thumbnail s3 tier: %w", err)
		}
		preview, err := cache.NewS3Tier(cfg.R2AccountID, cfg.R2AccessKeyID, cfg.R2SecretAccessKey, cfg.R2BucketName, cfg.R2PublicURL, "previews")
		if err != nil {
			return nil, nil, fmt.Errorf("build preview s3 tier: %w", err)
		}
		return thumb, preview, nil
	default:
		thumb, err := cache.NewDiskTier(cfg.DiskCacheDir+"/thumbnails", cfg.DiskPublicURL)
		if err != nil {
			return nil, nil, fmt.Errorf("build thumbnail disk tier: %w", err)
		}
		preview, err := cache.NewDiskTier(cfg.DiskCacheDir+"/previews", cfg.DiskPublicURL)
		if err != nil {
			return nil, nil, fmt.Errorf("build preview disk tier: %w", err)
		}
		return thumb, preview, nil
	}
}

// Close stops the pipeline and the database connection.
func (a *App) Close() {
	a.Catalog.Destroy()
	a.DB.Close()
}
