package imaging

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
)

// ByteProvider lazily supplies the encoded source bytes for an asset —
// a disk read, an R2 fetch, whatever the caller's storage layer requires.
// It is invoked inside the worker goroutine, never while any scheduler lock
// is held: once per job by the photo processor, and once per decode attempt
// (up to decodeRetryAttempts) by the artifact service.
type ByteProvider func(ctx context.Context) ([]byte, error)

// ArtifactKind distinguishes the two derived artifacts the service
// produces for a photo catalog.
type ArtifactKind string

const (
	KindThumbnail ArtifactKind = "thumbnail"
	KindPreview   ArtifactKind = "preview"
)

// job is the payload carried through the scheduler queue for a single
// artifact request. Generation is stamped at enqueue time so a result
// computed against a stale edit can be detected and discarded on
// completion without needing cooperative cancellation of the decode.
type job struct {
	AssetID      uuid.UUID
	Bytes        ByteProvider
	EditState    json.RawMessage
	Generation   uint64
	LongEdge     int
}

// result is what a dispatched job produces: the blob to persist plus the
// generation it was computed against, so the caller can still discard a
// stale completion even though the job struct itself isn't returned.
type result struct {
	Blob       []byte
	Generation uint64
}

// Event is published once per completed (or failed) artifact job, after
// the asset has already left the processor's active set. A successful
// result discarded as stale (its generation was superseded) publishes no
// Event. The catalog
// orchestrator (C6) subscribes to these to update in-memory photo state
// and emit SSE frames; the scheduler and service package know nothing of
// SSE or the orchestrator's data model.
type Event struct {
	AssetID uuid.UUID
	Kind    ArtifactKind
	URL     string
	Err     error
}

// EventSink receives artifact lifecycle events. At most one event is
// published per Request that actually resulted in work: none when the
// result is discarded as stale (cache hits are reported synchronously to
// the caller instead, never through the sink).
type EventSink func(Event)
