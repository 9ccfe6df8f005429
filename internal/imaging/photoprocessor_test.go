package imaging

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/maukemana/catalog/internal/cache"
)

type processedCall struct {
	id         uuid.UUID
	thumbURL   string
	previewURL string
}

func TestPhotoProcessorProducesBothArtifacts(t *testing.T) {
	thumbCache := cache.New("thumbnail", 8)
	previewCache := cache.New("preview", 8)

	var mu sync.Mutex
	var calls []processedCall
	done := make(chan struct{}, 1)

	p := NewPhotoProcessor(NewDecoder(), thumbCache, previewCache,
		func(id uuid.UUID, thumbURL, previewURL string) {
			mu.Lock()
			calls = append(calls, processedCall{id, thumbURL, previewURL})
			mu.Unlock()
			done <- struct{}{}
		},
		func(id uuid.UUID, err error) {
			t.Errorf("unexpected error for %v: %v", id, err)
			done <- struct{}{}
		},
	)
	defer p.Stop()

	id := uuid.New()
	raw := fixtureJPEG(t, 800, 400)
	if !p.Enqueue(id, staticBytes(raw)) {
		t.Fatal("expected Enqueue to accept a fresh asset id")
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for photo processing to complete")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(calls) != 1 {
		t.Fatalf("expected exactly one onProcessed call, got %d", len(calls))
	}
	if calls[0].thumbURL == "" || calls[0].previewURL == "" {
		t.Fatalf("expected both artifact URLs populated, got %+v", calls[0])
	}

	ctx := context.Background()
	if _, hit := thumbCache.Get(ctx, id); !hit {
		t.Fatal("expected the thumbnail cache to hold the derived artifact")
	}
	if _, hit := previewCache.Get(ctx, id); !hit {
		t.Fatal("expected the preview cache to hold the derived artifact")
	}
}

func TestPhotoProcessorRejectsDuplicateInFlight(t *testing.T) {
	thumbCache := cache.New("thumbnail", 8)
	previewCache := cache.New("preview", 8)

	p := NewPhotoProcessor(NewDecoder(), thumbCache, previewCache,
		func(id uuid.UUID, thumbURL, previewURL string) {},
		func(id uuid.UUID, err error) {},
	)
	defer p.Stop()

	id := uuid.New()
	raw := fixtureJPEG(t, 4000, 3000)
	first := p.Enqueue(id, staticBytes(raw))
	second := p.Enqueue(id, staticBytes(raw))

	if !first {
		t.Fatal("expected the first Enqueue for a fresh id to be accepted")
	}
	if second {
		t.Fatal("expected a duplicate Enqueue for the same in-flight id to be rejected")
	}
}

// TestPhotoProcessorRespectsConcurrencyLimit exercises a bounded-concurrency
// FIFO queue: with two workers and three jobs, only the first two start
// immediately; the third starts only once one of the first two releases.
func TestPhotoProcessorRespectsConcurrencyLimit(t *testing.T) {
	thumbCache := cache.New("thumbnail", 8)
	previewCache := cache.New("preview", 8)

	started := make(chan uuid.UUID, 3)
	release := make(chan struct{})

	d := &fakeDecoder{decodeBothFn: func(ctx context.Context, raw []byte, thumbLongEdge, previewLongEdge int) (DecodedRGB, DecodedRGB, error) {
		<-release
		return DecodedRGB{Width: 1, Height: 1, Pixels: []byte{0, 0, 0}}, DecodedRGB{Width: 1, Height: 1, Pixels: []byte{0, 0, 0}}, nil
	}}

	var mu sync.Mutex
	var completed int
	done := make(chan struct{}, 3)

	p := newPhotoProcessor(d, thumbCache, previewCache, 2,
		func(id uuid.UUID, thumbURL, previewURL string) {
			mu.Lock()
			completed++
			mu.Unlock()
			done <- struct{}{}
		},
		func(id uuid.UUID, err error) {
			t.Errorf("unexpected error for %v: %v", id, err)
			done <- struct{}{}
		},
	)
	defer p.Stop()

	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	for _, id := range ids {
		id := id
		if !p.Enqueue(id, func(ctx context.Context) ([]byte, error) {
			started <- id
			return fixtureJPEG(t, 4, 4), nil
		}) {
			t.Fatalf("expected Enqueue to accept %v", id)
		}
	}

	// Exactly two jobs should start and then block on release; the third
	// must stay queued behind the concurrency limit.
	seen := map[uuid.UUID]bool{}
	for i := 0; i < 2; i++ {
		select {
		case id := <-started:
			seen[id] = true
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for job %d to start", i)
		}
	}
	select {
	case id := <-started:
		t.Fatalf("expected only 2 jobs to start under a concurrency limit of 2, got a 3rd: %v", id)
	case <-time.After(100 * time.Millisecond):
	}

	// Release one slot; the third job should start, and eventually all
	// three jobs complete with no more than 2 ever running concurrently.
	release <- struct{}{}
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the third job to start after a slot freed")
	}
	close(release)

	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for job %d to complete", i)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if completed != 3 {
		t.Fatalf("expected all 3 jobs to complete, got %d", completed)
	}
}
