// Package cache provides a bounded process-local cache with per-entry expiry.
package cache

import (
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// DefaultMaxEntries bounds a cache created with a non-positive size.
const DefaultMaxEntries = 10_000

// TTL is a concurrency-safe string-keyed cache whose entries expire after their TTL.
// Every entry costs 1, so the cache holds at most maxEntries values.
type TTL[V any] struct {
	c *ristretto.Cache[string, V]
}

// NewTTL creates an empty cache holding up to maxEntries values.
func NewTTL[V any](maxEntries int64) (*TTL[V], error) {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, V]{
		NumCounters:        maxEntries * 10,
		MaxCost:            maxEntries,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	return &TTL[V]{c: c}, nil
}

// Get returns the value for key if present and not expired.
func (t *TTL[V]) Get(key string) (V, bool) {
	return t.c.Get(key)
}

// Set stores value under key. ttl <= 0 means no expiry. The write is visible to Get
// when Set returns; admission may still reject it when the cache is full.
func (t *TTL[V]) Set(key string, value V, ttl time.Duration) bool {
	if ttl < 0 {
		ttl = 0
	}
	ok := t.c.SetWithTTL(key, value, 1, ttl)
	t.c.Wait()
	return ok
}

// Delete removes key.
func (t *TTL[V]) Delete(key string) {
	t.c.Del(key)
}

// Close stops the cache's background goroutines. The cache must not be used afterwards.
func (t *TTL[V]) Close() {
	t.c.Close()
}
