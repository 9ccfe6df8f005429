package cache

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestSetThenGetHit(t *testing.T) {
	c := New("thumbnail", 2)
	ctx := context.Background()
	id := uuid.New()

	url, err := c.Set(ctx, id, []byte("blob"))
	if err != nil {
		t.Fatalf("Set: %v", err)
	}
	if url == "" {
		t.Fatal("expected a non-empty URL")
	}

	got, hit := c.Get(ctx, id)
	if !hit || got != url {
		t.Fatalf("expected cache hit with url %q, got %q hit=%v", url, got, hit)
	}
}

func TestGetMissWithoutPersistentTier(t *testing.T) {
	c := New("thumbnail", 2)
	if _, hit := c.Get(context.Background(), uuid.New()); hit {
		t.Fatal("expected a miss for an unset id")
	}
}

// TestLRUEviction exercises the memory tier's bound: inserting beyond
// capacity evicts the least recently used entry.
func TestLRUEviction(t *testing.T) {
	c := New("thumbnail", 2)
	ctx := context.Background()
	a, b, d := uuid.New(), uuid.New(), uuid.New()

	c.Set(ctx, a, []byte("a"))
	c.Set(ctx, b, []byte("b"))
	c.Set(ctx, d, []byte("d")) // should evict a, the least recently used

	if _, hit := c.Get(ctx, a); hit {
		t.Fatal("expected a to have been evicted")
	}
	if _, hit := c.Get(ctx, b); !hit {
		t.Fatal("expected b to remain")
	}
	if _, hit := c.Get(ctx, d); !hit {
		t.Fatal("expected d to remain")
	}
	if c.Len() != 2 {
		t.Fatalf("expected capacity-bounded length 2, got %d", c.Len())
	}
}

// TestGetPromotesToMostRecentlyUsed: touching an entry via Get promotes it
// to most-recently-used, protecting it from the next eviction.
func TestGetPromotesToMostRecentlyUsed(t *testing.T) {
	c := New("thumbnail", 2)
	ctx := context.Background()
	a, b, d := uuid.New(), uuid.New(), uuid.New()

	c.Set(ctx, a, []byte("a"))
	c.Set(ctx, b, []byte("b"))
	c.Get(ctx, a) // touch a so it is no longer the least recently used
	c.Set(ctx, d, []byte("d"))

	if _, hit := c.Get(ctx, b); hit {
		t.Fatal("expected b to have been evicted instead of a")
	}
	if _, hit := c.Get(ctx, a); !hit {
		t.Fatal("expected a to survive the eviction after being touched")
	}
}

func TestDeleteRemovesEntry(t *testing.T) {
	c := New("thumbnail", 2)
	ctx := context.Background()
	id := uuid.New()
	c.Set(ctx, id, []byte("blob"))
	c.Delete(ctx, id)
	if _, hit := c.Get(ctx, id); hit {
		t.Fatal("expected entry to be gone after Delete")
	}
}

type fakeTier struct {
	blobs map[uuid.UUID][]byte
}

func newFakeTier() *fakeTier { return &fakeTier{blobs: make(map[uuid.UUID][]byte)} }

func (f *fakeTier) Get(_ context.Context, id uuid.UUID) ([]byte, bool, error) {
	b, ok := f.blobs[id]
	return b, ok, nil
}

func (f *fakeTier) Put(_ context.Context, id uuid.UUID, blob []byte) (string, error) {
	f.blobs[id] = blob
	return "disk://" + id.String(), nil
}

func (f *fakeTier) Delete(_ context.Context, id uuid.UUID) error {
	delete(f.blobs, id)
	return nil
}

func TestPersistentTierPromotesOnMemoryMiss(t *testing.T) {
	tier := newFakeTier()
	c := New("preview", 1, WithPersistentTier(tier))
	ctx := context.Background()
	id := uuid.New()

	tier.blobs[id] = []byte("from disk")

	url, hit := c.Get(ctx, id)
	if !hit || url == "" {
		t.Fatal("expected a persistent-tier hit to promote into memory")
	}
	if c.Len() != 1 {
		t.Fatalf("expected the promoted entry to be cached in memory, got len %d", c.Len())
	}
}
