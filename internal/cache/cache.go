// Package cache implements the two-tier artifact cache: a fixed-capacity
// in-memory LRU fronting an optional persistent tier (object storage or
// local disk). Keys are asset ids; values are opaque artifact blobs handed
// back to callers as an artifact URL.
package cache

import (
	"container/list"
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/maukemana/catalog/internal/catalogerr"
	"github.com/maukemana/catalog/internal/metrics"
)

// PersistentTier is the optional second tier consulted on a memory miss and
// written-through on every Set. Implementations: S3Tier (object storage)
// and DiskTier (local filesystem).
type PersistentTier interface {
	Get(ctx context.Context, id uuid.UUID) ([]byte, bool, error)
	Put(ctx context.Context, id uuid.UUID, blob []byte) (url string, err error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// entry is the value stored at each LRU list element.
type entry struct {
	id    uuid.UUID
	blob  []byte
	url   string
	bytes int
}

// Cache is a fixed-capacity memory LRU in front of an optional
// PersistentTier. It hands out opaque URLs; URLs are owned by the cache and
// are revoked on eviction or delete.
type Cache struct {
	mu         sync.Mutex
	capacity   int
	items      map[uuid.UUID]*list.Element
	lru        *list.List
	persistent PersistentTier
	urlFor     func(uuid.UUID, []byte) string
	name       string
}

// Option configures a Cache at construction.
type Option func(*Cache)

// WithPersistentTier attaches a second tier consulted on memory miss.
func WithPersistentTier(tier PersistentTier) Option {
	return func(c *Cache) { c.persistent = tier }
}

// WithURLFunc overrides how memory-only entries mint their URL (default:
// an in-process "mem://" handle keyed by asset id).
func WithURLFunc(f func(uuid.UUID, []byte) string) Option {
	return func(c *Cache) { c.urlFor = f }
}

// New creates a Cache bounded to capacity entries.
func New(name string, capacity int, opts ...Option) *Cache {
	c := &Cache{
		name:     name,
		capacity: capacity,
		items:    make(map[uuid.UUID]*list.Element),
		lru:      list.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.urlFor == nil {
		c.urlFor = func(id uuid.UUID, _ []byte) string {
			return fmt.Sprintf("mem://%s/%s", name, id)
		}
	}
	return c
}

// Get returns the URL for id if cached in memory; otherwise it consults the
// persistent tier, promoting the blob into memory (evicting LRU entries as
// needed) before returning. A false second return means a total miss.
func (c *Cache) Get(ctx context.Context, id uuid.UUID) (string, bool) {
	c.mu.Lock()
	if el, ok := c.items[id]; ok {
		c.lru.MoveToFront(el)
		url := el.Value.(*entry).url
		c.mu.Unlock()
		metrics.CacheHits.WithLabelValues(c.name, "memory").Inc()
		return url, true
	}
	c.mu.Unlock()

	if c.persistent == nil {
		metrics.CacheMisses.WithLabelValues(c.name).Inc()
		return "", false
	}

	blob, ok, err := c.persistent.Get(ctx, id)
	if err != nil {
		slog.Warn("persistent tier read failed", "cache", c.name, "asset_id", id, "error", err)
		metrics.CacheMisses.WithLabelValues(c.name).Inc()
		return "", false
	}
	if !ok {
		metrics.CacheMisses.WithLabelValues(c.name).Inc()
		return "", false
	}

	url := c.urlFor(id, blob)
	c.promote(id, blob, url)
	metrics.CacheHits.WithLabelValues(c.name, "persistent").Inc()
	return url, true
}

// Set writes blob for id write-through: first to the persistent tier
// (best-effort, except that a storage-full error is returned and nothing
// is cached), then into memory (evicting as needed). It returns the newly
// minted URL, which is the persistent tier's URL when it supplies one.
func (c *Cache) Set(ctx context.Context, id uuid.UUID, blob []byte) (string, error) {
	url := c.urlFor(id, blob)

	if c.persistent != nil {
		persistedURL, err := c.persistent.Put(ctx, id, blob)
		if err != nil {
			var cerr *catalogerr.Error
			if ok := asStorageFull(err, &cerr); ok {
				return "", cerr
			}
			slog.Warn("persistent tier write failed, continuing memory-only", "cache", c.name, "asset_id", id, "error", err)
		} else if persistedURL != "" {
			url = persistedURL
		}
	}

	c.promote(id, blob, url)
	return url, nil
}

func asStorageFull(err error, out **catalogerr.Error) bool {
	if err == nil {
		return false
	}
	if catalogerr.KindOf(err) == catalogerr.KindStorageFull {
		if e, ok := err.(*catalogerr.Error); ok {
			*out = e
			return true
		}
	}
	return false
}

// promote inserts/updates the memory entry for id, evicting the least
// recently used entry until the cache is back under capacity.
func (c *Cache) promote(id uuid.UUID, blob []byte, url string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[id]; ok {
		e := el.Value.(*entry)
		e.blob, e.url, e.bytes = blob, url, len(blob)
		c.lru.MoveToFront(el)
		return
	}

	el := c.lru.PushFront(&entry{id: id, blob: blob, url: url, bytes: len(blob)})
	c.items[id] = el

	for c.capacity > 0 && c.lru.Len() > c.capacity {
		c.evictOldest()
	}
}

// evictOldest drops the least-recently-used entry. Caller holds c.mu.
func (c *Cache) evictOldest() {
	back := c.lru.Back()
	if back == nil {
		return
	}
	e := back.Value.(*entry)
	c.lru.Remove(back)
	delete(c.items, e.id)
}

// Delete removes id from both tiers and revokes its URL.
func (c *Cache) Delete(ctx context.Context, id uuid.UUID) {
	c.mu.Lock()
	if el, ok := c.items[id]; ok {
		c.lru.Remove(el)
		delete(c.items, id)
	}
	c.mu.Unlock()

	if c.persistent != nil {
		if err := c.persistent.Delete(ctx, id); err != nil {
			slog.Warn("persistent tier delete failed", "cache", c.name, "asset_id", id, "error", err)
		}
	}
}

// ClearMemory drops all in-memory entries and releases their URLs. The
// persistent tier is untouched.
func (c *Cache) ClearMemory() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[uuid.UUID]*list.Element)
	c.lru.Init()
}

// Len returns the number of entries currently held in memory.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
