// Package countcache caches total-result counts per collection and filter
// fingerprint. Counts are advisory values with a short TTL; serving a stale
// entry beats failing a fetch, so stale reads stay available to callers
// whose recompute failed.
package countcache

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/colex-db/colex/internal/collection"
)

// DefaultTTL is the entry lifetime when none is injected.
const DefaultTTL = 60 * time.Second

type entry struct {
	count    int
	storedAt time.Time
}

// Cache is a TTL-keyed count cache. Writes are whole-entry replacements;
// the map is mutex-guarded for concurrent requests.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	ttl     time.Duration
	hits    *prometheus.CounterVec
	now     func() time.Time
}

// New creates a count cache with the given TTL (DefaultTTL if zero).
// hitTotal is a counter vec with label "result" ("hit"/"miss"/"stale"),
// passed explicitly; nil disables metrics.
func New(ttl time.Duration, hitTotal *prometheus.CounterVec) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		entries: make(map[string]entry),
		ttl:     ttl,
		hits:    hitTotal,
		now:     time.Now,
	}
}

// Key builds the cache key for a collection and optional filter predicate.
func Key(collectionName string, where *collection.Predicate) string {
	if where == nil {
		return collectionName
	}
	return collectionName + ":filtered:" + where.Fingerprint()
}

// Get returns a fresh cached count. Entries older than the TTL are a miss.
func (c *Cache) Get(key string) (int, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || c.now().Sub(e.storedAt) > c.ttl {
		c.inc("miss")
		return 0, false
	}
	c.inc("hit")
	return e.count, true
}

// GetStale returns a cached count regardless of age. Used as the fallback
// when a recompute fails.
func (c *Cache) GetStale(key string) (int, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if ok {
		c.inc("stale")
	}
	return e.count, ok
}

// Set stores a count, replacing any previous entry.
func (c *Cache) Set(key string, count int) {
	c.mu.Lock()
	c.entries[key] = entry{count: count, storedAt: c.now()}
	c.mu.Unlock()
}

// Invalidate removes all entries belonging to a collection.
func (c *Cache) Invalidate(collectionName string) {
	prefix := collectionName + ":filtered:"

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, collectionName)
	for k := range c.entries {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			delete(c.entries, k)
		}
	}
}

// InvalidateAll clears the cache.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.mu.Unlock()
}

// WithClock overrides the time source, for tests.
func (c *Cache) WithClock(now func() time.Time) *Cache {
	c.now = now
	return c
}

func (c *Cache) inc(result string) {
	if c.hits != nil {
		c.hits.WithLabelValues(result).Inc()
	}
}
