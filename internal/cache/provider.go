package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/miradorstack/mirador-feedback/pkg/cache"
)

// Provider defines the minimal cache operations needed by the service.
type Provider interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	Close() error
}

// ErrCacheMiss signals that a cache key was not found.
var ErrCacheMiss = errors.New("cache miss")

// NoopProvider implements Provider but never stores data.
type NoopProvider struct{}

// Get always returns ErrCacheMiss.
func (NoopProvider) Get(context.Context, string) ([]byte, error) {
	return nil, ErrCacheMiss
}

// Set discards the value and returns nil.
func (NoopProvider) Set(context.Context, string, []byte, time.Duration) error {
	return nil
}

// Del is a no-op for the noop cache.
func (NoopProvider) Del(context.Context, string) error { return nil }

// Close is a no-op.
func (NoopProvider) Close() error { return nil }

// MemoryProvider keeps up to a bounded number of entries in process memory.
type MemoryProvider struct {
	store *cache.TTL[[]byte]
}

// NewMemoryProvider creates an empty in-memory provider. maxEntries <= 0 uses
// cache.DefaultMaxEntries.
func NewMemoryProvider(maxEntries int) (*MemoryProvider, error) {
	store, err := cache.NewTTL[[]byte](int64(maxEntries))
	if err != nil {
		return nil, fmt.Errorf("memory cache: %w", err)
	}
	return &MemoryProvider{store: store}, nil
}

// Get returns a copy of the cached bytes or ErrCacheMiss.
func (p *MemoryProvider) Get(_ context.Context, key string) ([]byte, error) {
	value, ok := p.store.Get(key)
	if !ok {
		return nil, ErrCacheMiss
	}
	return append([]byte(nil), value...), nil
}

// Set stores a copy of value.
func (p *MemoryProvider) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	p.store.Set(key, append([]byte(nil), value...), ttl)
	return nil
}

// Del removes key.
func (p *MemoryProvider) Del(_ context.Context, key string) error {
	p.store.Delete(key)
	return nil
}

// Close releases the cache.
func (p *MemoryProvider) Close() error {
	p.store.Close()
	return nil
}
