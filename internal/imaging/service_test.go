package imaging

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/maukemana/catalog/internal/cache"
	"github.com/maukemana/catalog/internal/queue"
)

// fakeDecoder lets tests control exactly when a decode completes, which the
// real pure-Go decoder (synchronous, no hook points) cannot do.
type fakeDecoder struct {
	thumbnailFn  func(ctx context.Context, raw []byte, longEdge int) (DecodedRGB, error)
	previewFn    func(ctx context.Context, raw []byte, maxEdge int) (DecodedRGB, error)
	decodeBothFn func(ctx context.Context, raw []byte, thumbLongEdge, previewLongEdge int) (DecodedRGB, DecodedRGB, error)
}

func (f *fakeDecoder) DecodeThumbnail(ctx context.Context, raw []byte, longEdge int) (DecodedRGB, error) {
	return f.thumbnailFn(ctx, raw, longEdge)
}
func (f *fakeDecoder) DecodePreview(ctx context.Context, raw []byte, maxEdge int) (DecodedRGB, error) {
	if f.previewFn != nil {
		return f.previewFn(ctx, raw, maxEdge)
	}
	return DecodedRGB{Width: 1, Height: 1, Pixels: []byte{0, 0, 0}}, nil
}
func (f *fakeDecoder) EncodeEditedThumbnail(ctx context.Context, raw []byte, longEdge int, editState json.RawMessage) ([]byte, error) {
	return []byte("edited"), nil
}
func (f *fakeDecoder) DecodeBoth(ctx context.Context, raw []byte, thumbLongEdge, previewLongEdge int) (DecodedRGB, DecodedRGB, error) {
	if f.decodeBothFn != nil {
		return f.decodeBothFn(ctx, raw, thumbLongEdge, previewLongEdge)
	}
	return DecodedRGB{Width: 1, Height: 1, Pixels: []byte{0, 0, 0}}, DecodedRGB{Width: 1, Height: 1, Pixels: []byte{0, 0, 0}}, nil
}

func staticBytes(data []byte) ByteProvider {
	return func(ctx context.Context) ([]byte, error) { return data, nil }
}

func collectEvents() (EventSink, chan Event) {
	ch := make(chan Event, 16)
	return func(e Event) { ch <- e }, ch
}

func TestRequestThumbnailCacheHitShortCircuits(t *testing.T) {
	thumbCache := cache.New("thumbnail", 4)
	previewCache := cache.New("preview", 4)
	sink, events := collectEvents()

	id := uuid.New()
	ctx := context.Background()
	preURL, err := thumbCache.Set(ctx, id, []byte("cached"))
	if err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	d := &fakeDecoder{thumbnailFn: func(ctx context.Context, raw []byte, longEdge int) (DecodedRGB, error) {
		t.Fatal("expected a cache hit to short-circuit before ever touching the decoder")
		return DecodedRGB{}, nil
	}}
	s := NewService(d, thumbCache, previewCache, sink)
	defer s.Stop()

	url, hit := s.RequestThumbnail(ctx, id, queue.Visible, staticBytes(jpegBytes(t, 4, 4)))
	if !hit || url != preURL {
		t.Fatalf("expected synchronous cache hit with url %q, got %q hit=%v", preURL, url, hit)
	}

	select {
	case e := <-events:
		t.Fatalf("expected no event for a cache hit, got %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRequestThumbnailMissDispatchesAndPublishes(t *testing.T) {
	thumbCache := cache.New("thumbnail", 4)
	previewCache := cache.New("preview", 4)
	sink, events := collectEvents()

	d := &fakeDecoder{thumbnailFn: func(ctx context.Context, raw []byte, longEdge int) (DecodedRGB, error) {
		return DecodedRGB{Width: 2, Height: 2, Pixels: make([]byte, 12)}, nil
	}}
	s := NewService(d, thumbCache, previewCache, sink)
	defer s.Stop()

	id := uuid.New()
	url, hit := s.RequestThumbnail(context.Background(), id, queue.Visible, staticBytes(jpegBytes(t, 4, 4)))
	if hit || url != "" {
		t.Fatalf("expected a miss to report (\"\", false), got (%q, %v)", url, hit)
	}

	select {
	case e := <-events:
		if e.Kind != KindThumbnail || e.Err != nil || e.URL == "" {
			t.Fatalf("expected a successful thumbnail event with a URL, got %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the thumbnail-ready event")
	}

	if _, hit := thumbCache.Get(context.Background(), id); !hit {
		t.Fatal("expected the completed job to populate the cache")
	}
}

// TestStaleGenerationResultIsDiscarded exercises the generation-counter
// staleness rule: a job dispatched against an older generation than the
// asset's current one is silently dropped on completion instead of
// overwriting the cache or firing an event.
func TestStaleGenerationResultIsDiscarded(t *testing.T) {
	thumbCache := cache.New("thumbnail", 4)
	previewCache := cache.New("preview", 4)
	sink, events := collectEvents()

	proceed := make(chan struct{})
	d := &fakeDecoder{thumbnailFn: func(ctx context.Context, raw []byte, longEdge int) (DecodedRGB, error) {
		<-proceed
		return DecodedRGB{Width: 2, Height: 2, Pixels: make([]byte, 12)}, nil
	}}
	s := NewService(d, thumbCache, previewCache, sink)
	defer s.Stop()

	id := uuid.New()
	s.RequestThumbnail(context.Background(), id, queue.Visible, staticBytes(jpegBytes(t, 4, 4)))

	// Bump the generation while the decode is still blocked in flight, as an
	// edit arriving mid-job would.
	s.InvalidateThumbnail(context.Background(), id)
	close(proceed)

	select {
	case e := <-events:
		t.Fatalf("expected the stale result to be discarded silently, got event %+v", e)
	case <-time.After(150 * time.Millisecond):
	}

	if _, hit := thumbCache.Get(context.Background(), id); hit {
		t.Fatal("expected the stale result never to populate the cache")
	}
}

func TestRegenerateThumbnailUsesEditStatePath(t *testing.T) {
	thumbCache := cache.New("thumbnail", 4)
	previewCache := cache.New("preview", 4)
	sink, events := collectEvents()

	d := &fakeDecoder{}
	s := NewService(d, thumbCache, previewCache, sink)
	defer s.Stop()

	id := uuid.New()
	s.RegenerateThumbnail(context.Background(), id, queue.Visible, staticBytes(jpegBytes(t, 4, 4)), []byte(`{"crop":{"x":0,"y":0,"width":1,"height":1}}`))

	select {
	case e := <-events:
		if e.Kind != KindThumbnail || e.Err != nil {
			t.Fatalf("expected a successful regenerated thumbnail event, got %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the regenerated thumbnail event")
	}
}
