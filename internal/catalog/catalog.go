// Package catalog implements C6, the orchestrator tying the scanner,
// artifact service, and repositories together behind the operations the
// HTTP surface calls. It owns the in-memory photo cache that makes reads
// fast and is the single place that both the on-disk filesystem and the
// database are touched from.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/maukemana/catalog/internal/catalogerr"
	"github.com/maukemana/catalog/internal/handlestore"
	"github.com/maukemana/catalog/internal/imaging"
	"github.com/maukemana/catalog/internal/metrics"
	"github.com/maukemana/catalog/internal/models"
	"github.com/maukemana/catalog/internal/queue"
	"github.com/maukemana/catalog/internal/repositories"
	"github.com/maukemana/catalog/internal/scanner"
)

// EventKind enumerates the catalog-level events the HTTP/SSE surface
// subscribes to — the headless equivalent of a set of mutable callback
// sinks (onAssetsAdded, onAssetUpdated, onThumbnailReady, ...).
type EventKind string

const (
	EventAssetsAdded    EventKind = "assets_added"
	EventAssetUpdated   EventKind = "asset_updated"
	EventThumbnailReady EventKind = "thumbnail_ready"
	EventPreviewReady   EventKind = "preview_ready"
	EventPhotoReady     EventKind = "photo_ready"
	EventScanError      EventKind = "scan_error"
)

// Event is published to every subscriber registered via Subscribe.
type Event struct {
	Kind     EventKind
	FolderID uuid.UUID
	Photo    *models.Photo
	Err      error
}

// EventSink receives catalog events.
type EventSink func(Event)

// Catalog is the orchestrator (C6).
type Catalog struct {
	folders *repositories.FolderRepository
	photos  *repositories.PhotoRepository
	edits   *repositories.EditRepository
	handles *handlestore.Store

	imagingSvc *imaging.Service
	photoProc  *imaging.PhotoProcessor

	mu         sync.RWMutex
	photoByID  map[uuid.UUID]*models.Photo
	scanCancel map[uuid.UUID]context.CancelFunc
	watchers   map[uuid.UUID]*scanner.Watcher

	subMu sync.RWMutex
	subs  []EventSink
}

// New wires the orchestrator over its repositories. The artifact pipeline
// is supplied afterward via SetPipeline, since the pipeline's event sink
// is this Catalog's own methods.
func New(folders *repositories.FolderRepository, photos *repositories.PhotoRepository, edits *repositories.EditRepository, handles *handlestore.Store) *Catalog {
	c := &Catalog{
		folders:    folders,
		photos:     photos,
		edits:      edits,
		handles:    handles,
		photoByID:  make(map[uuid.UUID]*models.Photo),
		scanCancel: make(map[uuid.UUID]context.CancelFunc),
		watchers:   make(map[uuid.UUID]*scanner.Watcher),
	}
	return c
}

// SetPipeline attaches the artifact service and photo processor built
// against this Catalog's event callbacks. Call once, before use.
func (c *Catalog) SetPipeline(imagingSvc *imaging.Service, photoProc *imaging.PhotoProcessor) {
	c.imagingSvc = imagingSvc
	c.photoProc = photoProc
}

// Subscribe registers sink to receive every future Event.
func (c *Catalog) Subscribe(sink EventSink) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.subs = append(c.subs, sink)
}

func (c *Catalog) publish(e Event) {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	for _, sink := range c.subs {
		sink(e)
	}
}

// OnArtifactEvent adapts a thumbnail or preview imaging.Event into a
// catalog Event and persists the result — wire it as the imaging.Service's
// sink when constructing the process.
func (c *Catalog) OnArtifactEvent(e imaging.Event) {
	ctx := context.Background()
	status := models.PhotoStatusReady
	if e.Err != nil {
		status = models.PhotoStatusError
		slog.Warn("artifact job failed", "asset_id", e.AssetID, "kind", e.Kind, "error", e.Err)
	}

	isThumbnail := e.Kind == imaging.KindThumbnail
	if err := c.photos.UpdateArtifactStatus(ctx, e.AssetID, isThumbnail, status, e.URL); err != nil {
		slog.Error("persist artifact status failed", "asset_id", e.AssetID, "error", err)
	}

	c.mu.Lock()
	p := c.photoByID[e.AssetID]
	if p != nil {
		if isThumbnail {
			p.ThumbnailStatus, p.ThumbnailURL = status, e.URL
		} else {
			p.PreviewStatus, p.PreviewURL = status, e.URL
		}
	}
	c.mu.Unlock()

	kind := EventThumbnailReady
	if !isThumbnail {
		kind = EventPreviewReady
	}
	c.publish(Event{Kind: kind, Photo: p, Err: e.Err})
}

// OnPhotoProcessed persists the pair of artifact URLs produced by a fresh
// scan's whole-photo processor and publishes a ready event. Wire this as
// the PhotoProcessor's onProcessed callback.
func (c *Catalog) OnPhotoProcessed(id uuid.UUID, thumbURL, previewURL string) {
	ctx := context.Background()
	if err := c.photos.UpdateArtifactStatus(ctx, id, true, models.PhotoStatusReady, thumbURL); err != nil {
		slog.Error("persist thumbnail status failed", "photo_id", id, "error", err)
	}
	if err := c.photos.UpdateArtifactStatus(ctx, id, false, models.PhotoStatusReady, previewURL); err != nil {
		slog.Error("persist preview status failed", "photo_id", id, "error", err)
	}

	c.mu.Lock()
	p := c.photoByID[id]
	if p != nil {
		p.ThumbnailStatus, p.ThumbnailURL = models.PhotoStatusReady, thumbURL
		p.PreviewStatus, p.PreviewURL = models.PhotoStatusReady, previewURL
	}
	c.mu.Unlock()

	c.publish(Event{Kind: EventPhotoReady, Photo: p})
}

// OnPhotoError records a failed initial render from a scan. Wire this as
// the PhotoProcessor's onError callback.
func (c *Catalog) OnPhotoError(id uuid.UUID, err error) {
	slog.Warn("photo processing failed", "photo_id", id, "error", err)
	ctx := context.Background()
	if e := c.photos.UpdateArtifactStatus(ctx, id, true, models.PhotoStatusError, ""); e != nil {
		slog.Error("persist thumbnail error status failed", "photo_id", id, "error", e)
	}
	if e := c.photos.UpdateArtifactStatus(ctx, id, false, models.PhotoStatusError, ""); e != nil {
		slog.Error("persist preview error status failed", "photo_id", id, "error", e)
	}
	c.publish(Event{Kind: EventScanError, Err: err})
}

// SelectFolder registers path as a known folder (creating the row on
// first sight) and remembers it in the handle store for restart recovery.
// The bool return reports whether this call created the row.
func (c *Catalog) SelectFolder(ctx context.Context, path string) (*models.Folder, bool, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, false, fmt.Errorf("resolve folder path: %w", err)
	}
	folder, created, err := c.folders.GetOrCreate(ctx, abs)
	if err != nil {
		return nil, false, err
	}
	if err := c.handles.Put(ctx, folder.ID.String(), abs); err != nil {
		slog.Warn("persist folder handle failed", "folder_id", folder.ID, "error", err)
	}
	return folder, created, nil
}

// ListFolders returns every known folder.
func (c *Catalog) ListFolders(ctx context.Context) ([]models.Folder, error) {
	return c.folders.List(ctx)
}

// LoadFolderByID returns a single folder by id.
func (c *Catalog) LoadFolderByID(ctx context.Context, id uuid.UUID) (*models.Folder, error) {
	return c.folders.GetByID(ctx, id)
}

// ScanFolder walks a folder's tree, cataloging the supported files it
// finds. It runs the same reconcile walk as RescanFolder.
func (c *Catalog) ScanFolder(folderID uuid.UUID) error {
	return c.runScan(folderID)
}

// RescanFolder re-walks a folder's tree, reconciling additions and
// removals against what is already cataloged.
func (c *Catalog) RescanFolder(folderID uuid.UUID) error {
	return c.runScan(folderID)
}

func (c *Catalog) runScan(folderID uuid.UUID) error {
	start := time.Now()
	ctx := context.Background()
	folder, err := c.folders.GetByID(ctx, folderID)
	if err != nil {
		return err
	}
	if folder == nil {
		return catalogerr.FolderNotFound(fmt.Sprintf("folder %s not found", folderID), nil)
	}

	outcome := "ok"
	defer func() {
		metrics.ScanDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}()

	scanCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.scanCancel[folderID] = cancel
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.scanCancel, folderID)
		c.mu.Unlock()
	}()

	existing, err := c.photos.ListPaths(ctx, folderID)
	if err != nil {
		return err
	}
	seen := make(map[string]bool, len(existing))

	var added, updated []models.Photo
	walkErr := scanner.Walk(scanCtx, folder.Path, func(f scanner.File) error {
		seen[f.RelativePath] = true

		cataloged, known := existing[f.RelativePath]
		id, skip := reconcileID(known, cataloged, f.ModTime)
		if skip {
			// Unchanged since it was last cataloged: leave it alone
			// entirely, no upsert and no re-render.
			return nil
		}

		photo := models.Photo{
			ID:         id,
			FolderID:   folderID,
			Path:       f.RelativePath,
			Filename:   filepath.Base(f.RelativePath),
			SizeBytes:  f.SizeBytes,
			ModifiedAt: f.ModTime,
		}
		if err := c.photos.Upsert(scanCtx, &photo); err != nil {
			return fmt.Errorf("catalog %s: %w", f.RelativePath, err)
		}
		c.mu.Lock()
		c.photoByID[photo.ID] = &photo
		c.mu.Unlock()

		if known {
			updated = append(updated, photo)
		} else {
			added = append(added, photo)
			metrics.ScanPhotosDiscovered.Inc()
		}
		c.photoProc.Enqueue(photo.ID, fileByteProvider(f.AbsolutePath))
		return nil
	})

	if walkErr != nil {
		if catalogerr.IsCancelled(walkErr) {
			outcome = "cancelled"
			slog.Info("scan cancelled", "folder_id", folderID)
			return nil
		}
		outcome = "error"
		slog.Error("scan failed", "folder_id", folderID, "error", walkErr)
		c.publish(Event{Kind: EventScanError, FolderID: folderID, Err: walkErr})
		return walkErr
	}

	var stale []uuid.UUID
	for path, cataloged := range existing {
		if !seen[path] {
			stale = append(stale, cataloged.ID)
		}
	}
	if len(stale) > 0 {
		if err := c.photos.DeleteBatch(ctx, stale); err != nil {
			slog.Warn("remove stale photos failed", "folder_id", folderID, "error", err)
		}
		c.mu.Lock()
		for _, id := range stale {
			delete(c.photoByID, id)
		}
		c.mu.Unlock()
	}

	if err := c.folders.MarkScanned(ctx, folderID, len(existing)+len(added)-len(stale)); err != nil {
		slog.Warn("mark folder scanned failed", "folder_id", folderID, "error", err)
	}
	if len(added) > 0 || len(updated) > 0 || len(stale) > 0 {
		var addedBytes int64
		for _, p := range added {
			addedBytes += p.SizeBytes
		}
		slog.Info("scan complete", "folder_id", folderID,
			"added", len(added), "updated", len(updated), "removed", len(stale),
			"added_size", humanize.Bytes(uint64(addedBytes)), "duration", time.Since(start))
	}
	// onAssetsAdded fires only for genuinely new files — a changed file
	// that was already cataloged is re-enqueued for processing above but
	// doesn't count as a new asset arriving.
	if len(added) > 0 {
		c.publish(Event{Kind: EventAssetsAdded, FolderID: folderID})
	}
	return nil
}

// CancelScan aborts an in-progress scan for folderID, if one is running.
func (c *Catalog) CancelScan(folderID uuid.UUID) {
	c.mu.Lock()
	cancel, ok := c.scanCancel[folderID]
	c.mu.Unlock()
	if ok {
		cancel()
	}
}

// GetAsset returns a cached photo by id, falling back to the database on
// a cache miss.
func (c *Catalog) GetAsset(ctx context.Context, id uuid.UUID) (*models.Photo, error) {
	c.mu.RLock()
	if p, ok := c.photoByID[id]; ok {
		c.mu.RUnlock()
		return p, nil
	}
	c.mu.RUnlock()

	p, err := c.photos.GetByID(ctx, id)
	if err != nil || p == nil {
		return p, err
	}
	c.mu.Lock()
	c.photoByID[p.ID] = p
	c.mu.Unlock()
	return p, nil
}

// GetAssets returns every photo in a folder.
func (c *Catalog) GetAssets(ctx context.Context, folderID uuid.UUID) ([]models.Photo, error) {
	return c.photos.ListByFolder(ctx, folderID)
}

// SetFlag sets a single photo's culling mark (none, pick, or reject).
func (c *Catalog) SetFlag(ctx context.Context, id uuid.UUID, flag models.Flag) error {
	if err := c.photos.SetFlag(ctx, id, flag); err != nil {
		return err
	}
	c.mu.Lock()
	if p, ok := c.photoByID[id]; ok {
		p.Flag = flag
	}
	c.mu.Unlock()
	c.publish(Event{Kind: EventAssetUpdated})
	return nil
}

// SetFlagBatch sets the same culling mark across a set of photos in one call.
func (c *Catalog) SetFlagBatch(ctx context.Context, ids []uuid.UUID, flag models.Flag) error {
	if err := c.photos.SetFlagBatch(ctx, ids, flag); err != nil {
		return err
	}
	c.mu.Lock()
	for _, id := range ids {
		if p, ok := c.photoByID[id]; ok {
			p.Flag = flag
		}
	}
	c.mu.Unlock()
	c.publish(Event{Kind: EventAssetUpdated})
	return nil
}

// RemoveAssets deletes photos outright, cancelling their queued thumbnail
// and preview jobs and invalidating their cached thumbnails. Jobs already
// executing are not aborted, and cached previews are not deleted.
func (c *Catalog) RemoveAssets(ctx context.Context, ids []uuid.UUID) error {
	for _, id := range ids {
		c.imagingSvc.CancelThumbnail(id)
		c.imagingSvc.CancelPreview(id)
		c.imagingSvc.InvalidateThumbnail(ctx, id)
	}
	if err := c.photos.DeleteBatch(ctx, ids); err != nil {
		return err
	}
	c.mu.Lock()
	for _, id := range ids {
		delete(c.photoByID, id)
	}
	c.mu.Unlock()
	return nil
}

// RequestThumbnail asks the artifact service for a photo's thumbnail.
func (c *Catalog) RequestThumbnail(ctx context.Context, id uuid.UUID, priority queue.Priority) (string, bool, error) {
	p, err := c.GetAsset(ctx, id)
	if err != nil || p == nil {
		return "", false, notFoundOr(err, id)
	}
	abs, err := c.resolveAbsolutePath(ctx, p)
	if err != nil {
		return "", false, err
	}
	url, ready := c.imagingSvc.RequestThumbnail(ctx, id, priority, fileByteProvider(abs))
	if !ready {
		c.markLoading(ctx, p, true)
	}
	return url, ready, nil
}

// RequestPreview asks the artifact service for a photo's preview.
func (c *Catalog) RequestPreview(ctx context.Context, id uuid.UUID, priority queue.Priority) (string, bool, error) {
	p, err := c.GetAsset(ctx, id)
	if err != nil || p == nil {
		return "", false, notFoundOr(err, id)
	}
	abs, err := c.resolveAbsolutePath(ctx, p)
	if err != nil {
		return "", false, err
	}
	url, ready := c.imagingSvc.RequestPreview(ctx, id, priority, fileByteProvider(abs))
	if !ready {
		c.markLoading(ctx, p, false)
	}
	return url, ready, nil
}

// markLoading drives the pending->loading edge on a cache miss. It is a
// no-op once the artifact is already loading, ready, or errored — a repeat
// request against an in-flight job re-targets its priority but shouldn't
// relabel a result that is already further along.
func (c *Catalog) markLoading(ctx context.Context, p *models.Photo, thumbnail bool) {
	c.mu.Lock()
	status := p.ThumbnailStatus
	if !thumbnail {
		status = p.PreviewStatus
	}
	if status != models.PhotoStatusPending {
		c.mu.Unlock()
		return
	}
	if thumbnail {
		p.ThumbnailStatus = models.PhotoStatusLoading
	} else {
		p.PreviewStatus = models.PhotoStatusLoading
	}
	c.mu.Unlock()

	if err := c.photos.UpdateArtifactStatus(ctx, p.ID, thumbnail, models.PhotoStatusLoading, ""); err != nil {
		slog.Warn("persist loading status failed", "photo_id", p.ID, "error", err)
	}
}

// UpdateThumbnailPriority re-targets a queued thumbnail request.
func (c *Catalog) UpdateThumbnailPriority(id uuid.UUID, priority queue.Priority) {
	c.imagingSvc.UpdateThumbnailPriority(id, priority)
}

// UpdatePreviewPriority re-targets a queued preview request.
func (c *Catalog) UpdatePreviewPriority(id uuid.UUID, priority queue.Priority) {
	c.imagingSvc.UpdatePreviewPriority(id, priority)
}

// CancelBackgroundRequests drops every queued Background-priority
// artifact request, freeing the scheduler for foreground work.
func (c *Catalog) CancelBackgroundRequests() int {
	return c.imagingSvc.CancelBackgroundRequests()
}

// RegenerateThumbnail stores a new edit-state payload and kicks off a
// fresh thumbnail render from it.
func (c *Catalog) RegenerateThumbnail(ctx context.Context, id uuid.UUID, priority queue.Priority, editState []byte) error {
	p, err := c.GetAsset(ctx, id)
	if err != nil || p == nil {
		return notFoundOr(err, id)
	}
	if err := c.edits.Upsert(ctx, id, editState); err != nil {
		return err
	}
	abs, err := c.resolveAbsolutePath(ctx, p)
	if err != nil {
		return err
	}
	c.imagingSvc.RegenerateThumbnail(ctx, id, priority, fileByteProvider(abs), editState)
	return nil
}

// LoadFromDatabase warms the in-memory cache from every folder's photos —
// call once at startup.
func (c *Catalog) LoadFromDatabase(ctx context.Context) error {
	folders, err := c.folders.List(ctx)
	if err != nil {
		return err
	}
	for _, f := range folders {
		photos, err := c.photos.ListByFolder(ctx, f.ID)
		if err != nil {
			return err
		}
		c.mu.Lock()
		for i := range photos {
			c.photoByID[photos[i].ID] = &photos[i]
		}
		c.mu.Unlock()
	}
	return nil
}

// Destroy stops every background scan, watcher, and the artifact
// pipeline. Call once during graceful shutdown.
func (c *Catalog) Destroy() {
	c.mu.Lock()
	for _, cancel := range c.scanCancel {
		cancel()
	}
	for _, w := range c.watchers {
		w.Close()
	}
	c.mu.Unlock()

	c.imagingSvc.CancelAll()
	c.imagingSvc.Stop()
	c.photoProc.CancelAll()
	c.photoProc.Stop()
}

// reconcileID decides how a walked file compares to what is already
// cataloged at that path: a file seen for the first time gets a fresh id;
// a known file whose mtime has advanced keeps its existing id for
// re-upsert; a known file with an unchanged-or-older mtime is skipped
// entirely.
func reconcileID(known bool, cataloged repositories.CatalogedFile, fileModTime time.Time) (id uuid.UUID, skip bool) {
	if !known {
		return uuid.New(), false
	}
	if !fileModTime.After(cataloged.ModifiedAt) {
		return uuid.UUID{}, true
	}
	return cataloged.ID, false
}

// resolveAbsolutePath joins a photo's folder-relative path onto its
// folder's current handle, rather than trusting an absolute path baked in
// at scan time — the folder can move between restarts, and re-selecting it
// at a new location only updates the handle store, not every cataloged
// photo row.
func (c *Catalog) resolveAbsolutePath(ctx context.Context, p *models.Photo) (string, error) {
	h, err := c.handles.Get(ctx, p.FolderID.String())
	if err != nil {
		return "", fmt.Errorf("resolve folder handle: %w", err)
	}
	if h == nil {
		return "", catalogerr.FolderNotFound(fmt.Sprintf("folder %s has no stored handle", p.FolderID), nil)
	}
	return filepath.Join(h.AbsolutePath, p.Path), nil
}

func fileByteProvider(path string) imaging.ByteProvider {
	return func(ctx context.Context) ([]byte, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read source file: %w", err)
		}
		return data, nil
	}
}

func notFoundOr(err error, id uuid.UUID) error {
	if err != nil {
		return err
	}
	return catalogerr.New(catalogerr.KindFolderNotFound, fmt.Sprintf("photo %s not found", id), nil)
}
