package peercache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// MemoryStore keeps values in process memory. Concurrent misses on one key
// share a single Loader call.
type MemoryStore[T any] struct {
	items *cache.Cache
	loads singleflight.Group
}

// NewMemoryStore creates an in-memory store.
//
// Parameters:
//   - defaultTTL: TTL applied when Load or Put is given a zero ttl
//   - sweepInterval: How often expired entries are purged
//
// Returns:
//   - A new *MemoryStore
func NewMemoryStore[T any](defaultTTL, sweepInterval time.Duration) *MemoryStore[T] {
	return &MemoryStore[T]{
		items: cache.New(defaultTTL, sweepInterval),
	}
}

func (m *MemoryStore[T]) lookup(key string) (T, bool) {
	if v, found := m.items.Get(key); found {
		if typed, ok := v.(T); ok {
			return typed, true
		}
	}

	var zero T
	return zero, false
}

// Load implements Store.
func (m *MemoryStore[T]) Load(ctx context.Context, key string, ttl time.Duration, load Loader[T]) (T, error) {
	if v, ok := m.lookup(key); ok {
		return v, nil
	}

	v, err, _ := m.loads.Do(key, func() (any, error) {
		// A concurrent load may have finished before this one started.
		if v, ok := m.lookup(key); ok {
			return v, nil
		}

		loaded, err := load(ctx)
		if err != nil {
			return nil, err
		}
		m.items.Set(key, loaded, ttlOrDefault(ttl))

		return loaded, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}

	typed, ok := v.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("peercache: unexpected %T cached under %q", v, key)
	}

	return typed, nil
}

// Put implements Store.
func (m *MemoryStore[T]) Put(ctx context.Context, key string, value T, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.items.Set(key, value, ttlOrDefault(ttl))
	return nil
}

// Delete implements Store.
func (m *MemoryStore[T]) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.items.Delete(key)
	return nil
}

// DeleteByPrefix implements Store.
func (m *MemoryStore[T]) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	removed := 0
	for key := range m.items.Items() {
		if err := ctx.Err(); err != nil {
			return removed, err
		}

		if strings.HasPrefix(key, prefix) {
			m.items.Delete(key)
			removed++
		}
	}

	return removed, nil
}

// Len implements Store. Expired entries not yet swept are included.
func (m *MemoryStore[T]) Len(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	return m.items.ItemCount(), nil
}

// ttlOrDefault maps a zero ttl to go-cache's "use the store default".
func ttlOrDefault(ttl time.Duration) time.Duration {
	if ttl == 0 {
		return cache.DefaultExpiration
	}

	return ttl
}
