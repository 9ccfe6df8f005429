package imaging

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/maukemana/catalog/internal/cache"
	"github.com/maukemana/catalog/internal/scheduler"
)

const photoQueueCapacity = 256

// photoJob is a single whole-photo processing request: decode once,
// derive both artifacts.
type photoJob struct {
	AssetID uuid.UUID
	Bytes   ByteProvider
}

// PhotoProcessor is C5: a plain FIFO (no priority reordering — every
// import is equally urgent) that decodes a source image exactly once per
// job and derives both the thumbnail and the preview from that single
// decode, writing each to its own cache concurrently. Used by the scan
// pipeline to pre-populate artifacts for freshly discovered photos,
// independent of the on-demand priority-scheduled Service.
type PhotoProcessor struct {
	decoder      Decoder
	thumbCache   *cache.Cache
	previewCache *cache.Cache

	onProcessed func(assetID uuid.UUID, thumbnailURL, previewURL string)
	onError     func(assetID uuid.UUID, err error)

	mu       sync.Mutex
	inFlight map[uuid.UUID]struct{}

	queue  chan photoJob
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPhotoProcessor starts a bounded worker pool draining a FIFO photo
// queue. onProcessed/onError fire exactly once per accepted job, after the
// asset has already left the in-flight set.
func NewPhotoProcessor(decoder Decoder, thumbCache, previewCache *cache.Cache, onProcessed func(uuid.UUID, string, string), onError func(uuid.UUID, error)) *PhotoProcessor {
	return newPhotoProcessor(decoder, thumbCache, previewCache, scheduler.DefaultConcurrency(), onProcessed, onError)
}

// newPhotoProcessor is NewPhotoProcessor with an explicit worker count,
// a seam for exercising FIFO-under-bounded-concurrency behavior
// deterministically instead of at whatever GOMAXPROCS the test host has.
func newPhotoProcessor(decoder Decoder, thumbCache, previewCache *cache.Cache, workers int, onProcessed func(uuid.UUID, string, string), onError func(uuid.UUID, error)) *PhotoProcessor {
	ctx, cancel := context.WithCancel(context.Background())
	p := &PhotoProcessor{
		decoder:      decoder,
		thumbCache:   thumbCache,
		previewCache: previewCache,
		onProcessed:  onProcessed,
		onError:      onError,
		inFlight:     make(map[uuid.UUID]struct{}),
		queue:        make(chan photoJob, photoQueueCapacity),
		ctx:          ctx,
		cancel:       cancel,
	}

	for i := 0; i < scheduler.Clamp(workers); i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	return p
}

// Enqueue accepts assetID for whole-photo processing, rejecting it if
// already queued or executing (single-flight per asset for the
// photo processor, distinct from the priority service's dedup-and-retarget
// rule — there is no priority to retarget here).
func (p *PhotoProcessor) Enqueue(assetID uuid.UUID, bytes ByteProvider) bool {
	p.mu.Lock()
	if _, ok := p.inFlight[assetID]; ok {
		p.mu.Unlock()
		return false
	}
	p.inFlight[assetID] = struct{}{}
	p.mu.Unlock()

	select {
	case p.queue <- photoJob{AssetID: assetID, Bytes: bytes}:
		return true
	default:
		p.mu.Lock()
		delete(p.inFlight, assetID)
		p.mu.Unlock()
		slog.Warn("photo processor queue full, dropping job", "asset_id", assetID)
		return false
	}
}

// CancelAll drops every job still sitting in the queue (not yet picked up
// by a worker) and clears the in-flight set for those. Jobs already
// executing run to completion.
func (p *PhotoProcessor) CancelAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
drain:
	for {
		select {
		case job := <-p.queue:
			delete(p.inFlight, job.AssetID)
		default:
			break drain
		}
	}
}

// Stop cancels the worker context and waits for in-flight jobs to finish.
func (p *PhotoProcessor) Stop() {
	p.cancel()
	close(p.queue)
	p.wg.Wait()
}

func (p *PhotoProcessor) worker(id int) {
	defer p.wg.Done()
	l := slog.With("photo_worker", id)

	for job := range p.queue {
		select {
		case <-p.ctx.Done():
			return
		default:
		}

		l.Debug("processing photo", "asset_id", job.AssetID)
		thumbURL, previewURL, err := p.process(job)

		p.mu.Lock()
		delete(p.inFlight, job.AssetID)
		p.mu.Unlock()

		if err != nil {
			l.Error("photo processing failed", "asset_id", job.AssetID, "error", err)
			if p.onError != nil {
				p.onError(job.AssetID, err)
			}
			continue
		}
		if p.onProcessed != nil {
			p.onProcessed(job.AssetID, thumbURL, previewURL)
		}
	}
}

func (p *PhotoProcessor) process(job photoJob) (string, string, error) {
	raw, err := job.Bytes(p.ctx)
	if err != nil {
		return "", "", fmt.Errorf("read source bytes: %w", err)
	}

	if _, err := ValidateImage(raw); err != nil {
		return "", "", err
	}

	thumb, preview, err := p.decoder.DecodeBoth(p.ctx, raw, DefaultThumbnailLongEdge, DefaultPreviewLongEdge)
	if err != nil {
		return "", "", err
	}

	g, gCtx := errgroup.WithContext(p.ctx)
	var thumbURL, previewURL string

	g.Go(func() error {
		blob, err := EncodeJPEG(thumb, thumbnailJPEGQuality)
		if err != nil {
			return fmt.Errorf("encode thumbnail: %w", err)
		}
		url, err := p.thumbCache.Set(gCtx, job.AssetID, blob)
		if err != nil {
			return fmt.Errorf("cache thumbnail: %w", err)
		}
		thumbURL = url
		return nil
	})
	g.Go(func() error {
		blob, err := EncodeJPEG(preview, previewJPEGQuality)
		if err != nil {
			return fmt.Errorf("encode preview: %w", err)
		}
		url, err := p.previewCache.Set(gCtx, job.AssetID, blob)
		if err != nil {
			return fmt.Errorf("cache preview: %w", err)
		}
		previewURL = url
		return nil
	})

	if err := g.Wait(); err != nil {
		return "", "", err
	}
	return thumbURL, previewURL, nil
}
