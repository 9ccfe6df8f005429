// Package imaging implements the derived-artifact pipeline: the decode
// adapter (C7b), the two-processor/two-cache artifact service (C4), and
// the whole-photo processor that drives both from a single source decode
// (C5).
package imaging

import (
	"context"
	"log/slog"
	"sync"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"

	"github.com/maukemana/catalog/internal/cache"
	"github.com/maukemana/catalog/internal/metrics"
	"github.com/maukemana/catalog/internal/queue"
	"github.com/maukemana/catalog/internal/scheduler"
)

const (
	thumbnailQueueCapacity = 200
	previewQueueCapacity   = 200
	decodeRetryAttempts    = 3
)

// Service is the artifact service described as C4: two independent
// scheduler.Processors (one per artifact kind) each fronted by its own
// cache.Cache, sharing a single generation table so an edit mid-flight can
// invalidate an already-dispatched job's result without cancelling it.
type Service struct {
	decoder Decoder
	sink    EventSink

	thumbCache   *cache.Cache
	previewCache *cache.Cache

	thumbProc   *scheduler.Processor[job, result]
	previewProc *scheduler.Processor[job, result]

	genMu       sync.Mutex
	generations map[uuid.UUID]uint64
}

// NewService wires the thumbnail and preview processors over the given
// caches. sink receives one Event per job that actually ran, except a
// result discarded as stale (cache hits are reported synchronously to the
// requester instead).
func NewService(decoder Decoder, thumbCache, previewCache *cache.Cache, sink EventSink) *Service {
	s := &Service{
		decoder:      decoder,
		sink:         sink,
		thumbCache:   thumbCache,
		previewCache: previewCache,
		generations:  make(map[uuid.UUID]uint64),
	}

	s.thumbProc = scheduler.New[job, result](
		"thumbnail", thumbnailQueueCapacity, scheduler.DefaultConcurrency(),
		s.thumbnailTask, s.onThumbnailResult,
	)
	s.previewProc = scheduler.New[job, result](
		"preview", previewQueueCapacity, scheduler.DefaultConcurrency(),
		s.previewTask, s.onPreviewResult,
	)

	return s
}

// RequestThumbnail probes the thumbnail cache first; on a hit it returns
// the URL synchronously. On a miss it dedups against any in-flight job for
// assetID (re-targeting its priority) or enqueues a fresh one, and returns
// ("", false) — completion arrives later through the event sink.
func (s *Service) RequestThumbnail(ctx context.Context, assetID uuid.UUID, priority queue.Priority, bytes ByteProvider) (string, bool) {
	if url, hit := s.thumbCache.Get(ctx, assetID); hit {
		return url, true
	}
	if !s.thumbProc.Request(assetID, priority) {
		return "", false
	}
	s.thumbProc.Enqueue(assetID, priority, job{
		AssetID:    assetID,
		Bytes:      bytes,
		Generation: s.currentGeneration(assetID),
		LongEdge:   DefaultThumbnailLongEdge,
	})
	return "", false
}

// RequestPreview mirrors RequestThumbnail for the preview artifact.
func (s *Service) RequestPreview(ctx context.Context, assetID uuid.UUID, priority queue.Priority, bytes ByteProvider) (string, bool) {
	if url, hit := s.previewCache.Get(ctx, assetID); hit {
		return url, true
	}
	if !s.previewProc.Request(assetID, priority) {
		return "", false
	}
	s.previewProc.Enqueue(assetID, priority, job{
		AssetID:    assetID,
		Bytes:      bytes,
		Generation: s.currentGeneration(assetID),
		LongEdge:   DefaultPreviewLongEdge,
	})
	return "", false
}

// UpdateThumbnailPriority re-targets a still-queued thumbnail job.
func (s *Service) UpdateThumbnailPriority(assetID uuid.UUID, priority queue.Priority) {
	s.thumbProc.UpdatePriority(assetID, priority)
}

// UpdatePreviewPriority re-targets a still-queued preview job.
func (s *Service) UpdatePreviewPriority(assetID uuid.UUID, priority queue.Priority) {
	s.previewProc.UpdatePriority(assetID, priority)
}

// CancelThumbnail drops a queued (not yet executing) thumbnail request.
func (s *Service) CancelThumbnail(assetID uuid.UUID) { s.thumbProc.Cancel(assetID) }

// CancelPreview drops a queued (not yet executing) preview request.
func (s *Service) CancelPreview(assetID uuid.UUID) { s.previewProc.Cancel(assetID) }

// CancelAll empties both queues. In-flight jobs finish but their results
// are reported through the sink as usual — callers that no longer care
// should have already torn down their subscription.
func (s *Service) CancelAll() {
	s.thumbProc.CancelAll()
	s.previewProc.CancelAll()
}

// CancelBackgroundRequests drops every Background-priority item queued in
// either processor and returns the total removed.
func (s *Service) CancelBackgroundRequests() int {
	return s.thumbProc.CancelBackgroundRequests() + s.previewProc.CancelBackgroundRequests()
}

// InvalidateThumbnail drops the cached thumbnail (if any) and bumps
// assetID's generation, so any thumbnail job already in flight for the
// old source bytes has its result silently discarded on completion.
func (s *Service) InvalidateThumbnail(ctx context.Context, assetID uuid.UUID) {
	s.thumbCache.Delete(ctx, assetID)
	s.bumpGeneration(assetID)
}

// RegenerateThumbnail invalidates the current thumbnail and immediately
// enqueues a fresh job against an opaque edit-state payload, via the
// encode-from-edit-state path rather than the plain decode path.
func (s *Service) RegenerateThumbnail(ctx context.Context, assetID uuid.UUID, priority queue.Priority, bytes ByteProvider, editState []byte) {
	s.thumbCache.Delete(ctx, assetID)
	gen := s.bumpGeneration(assetID)

	s.thumbProc.Cancel(assetID)
	s.thumbProc.Enqueue(assetID, priority, job{
		AssetID:    assetID,
		Bytes:      bytes,
		EditState:  editState,
		Generation: gen,
		LongEdge:   DefaultThumbnailLongEdge,
	})
}

func (s *Service) currentGeneration(assetID uuid.UUID) uint64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return s.generations[assetID]
}

func (s *Service) bumpGeneration(assetID uuid.UUID) uint64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	s.generations[assetID]++
	return s.generations[assetID]
}

func (s *Service) thumbnailTask(ctx context.Context, assetID uuid.UUID, j job) (result, error) {
	var blob []byte
	err := retry.Do(func() error {
		raw, err := j.Bytes(ctx)
		if err != nil {
			return err
		}
		if _, err := ValidateImage(raw); err != nil {
			return retry.Unrecoverable(err)
		}
		if len(j.EditState) > 0 {
			blob, err = s.decoder.EncodeEditedThumbnail(ctx, raw, j.LongEdge, j.EditState)
			return err
		}
		decoded, err := s.decoder.DecodeThumbnail(ctx, raw, j.LongEdge)
		if err != nil {
			return err
		}
		blob, err = EncodeJPEG(decoded, thumbnailJPEGQuality)
		return err
	}, retry.Attempts(decodeRetryAttempts), retry.Context(ctx), retry.LastErrorOnly(true))
	if err != nil {
		return result{}, err
	}
	return result{Blob: blob, Generation: j.Generation}, nil
}

func (s *Service) previewTask(ctx context.Context, assetID uuid.UUID, j job) (result, error) {
	var blob []byte
	err := retry.Do(func() error {
		raw, err := j.Bytes(ctx)
		if err != nil {
			return err
		}
		if _, err := ValidateImage(raw); err != nil {
			return retry.Unrecoverable(err)
		}
		decoded, err := s.decoder.DecodePreview(ctx, raw, j.LongEdge)
		if err != nil {
			return err
		}
		blob, err = EncodeJPEG(decoded, previewJPEGQuality)
		return err
	}, retry.Attempts(decodeRetryAttempts), retry.Context(ctx), retry.LastErrorOnly(true))
	if err != nil {
		return result{}, err
	}
	return result{Blob: blob, Generation: j.Generation}, nil
}

func (s *Service) onThumbnailResult(assetID uuid.UUID, j job, res result, err error) {
	s.publishArtifact(assetID, KindThumbnail, s.thumbCache, res, err)
}

func (s *Service) onPreviewResult(assetID uuid.UUID, j job, res result, err error) {
	s.publishArtifact(assetID, KindPreview, s.previewCache, res, err)
}

// publishArtifact discards a completed job whose generation no longer
// matches assetID's current generation — the source changed (an edit, a
// delete-and-recreate) while the job was in flight — then writes through
// the cache and emits exactly one event.
func (s *Service) publishArtifact(assetID uuid.UUID, kind ArtifactKind, c *cache.Cache, res result, err error) {
	if err != nil {
		metrics.ArtifactsFailed.WithLabelValues(string(kind)).Inc()
		if s.sink != nil {
			s.sink(Event{AssetID: assetID, Kind: kind, Err: err})
		}
		return
	}

	if res.Generation != s.currentGeneration(assetID) {
		slog.Debug("discarding stale artifact result", "asset_id", assetID, "kind", kind)
		metrics.ArtifactsDiscardedStale.WithLabelValues(string(kind)).Inc()
		return
	}

	url, err := c.Set(context.Background(), assetID, res.Blob)
	if err != nil {
		metrics.ArtifactsFailed.WithLabelValues(string(kind)).Inc()
		if s.sink != nil {
			s.sink(Event{AssetID: assetID, Kind: kind, Err: err})
		}
		return
	}

	metrics.ArtifactsCompleted.WithLabelValues(string(kind)).Inc()
	if s.sink != nil {
		s.sink(Event{AssetID: assetID, Kind: kind, URL: url})
	}
}

// Stop drains both processors, waiting for any in-flight jobs to finish.
func (s *Service) Stop() {
	s.thumbProc.Stop()
	s.previewProc.Stop()
}
