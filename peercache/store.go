// Package peercache caches what the controller learned about remote devices
// (for example the Hands-Free profile version found by service discovery) so
// a reconnecting peer can skip a fresh lookup. Values live either in process
// memory or in Redis when several processes share one adapter fleet.
package peercache

import (
	"context"
	"errors"
	"time"
)

// ErrWaitTimeout is returned when another caller holds the load lock for a
// key and the value does not appear in time.
var ErrWaitTimeout = errors.New("peercache: timed out waiting for value")

// ErrLoadAbandoned is returned when another caller held the load lock for a
// key and released it without storing a value.
var ErrLoadAbandoned = errors.New("peercache: concurrent load stored no value")

// Loader produces the value for a key that is not cached.
type Loader[T any] func(ctx context.Context) (T, error)

// Store is a typed cache with load-through semantics. Concurrent loads of
// the same missing key run the Loader once.
type Store[T any] interface {
	// Load returns the cached value for key, calling load and caching its
	// result for ttl on a miss.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//   - key: Cache key
	//   - ttl: How long a loaded value stays cached
	//   - load: Produces the value on a miss
	//
	// Returns:
	//   - The cached or loaded value
	//   - An error if the backend or load fails
	Load(ctx context.Context, key string, ttl time.Duration, load Loader[T]) (T, error)

	// Put stores value under key for ttl.
	Put(ctx context.Context, key string, value T, ttl time.Duration) error

	// Delete removes key.
	Delete(ctx context.Context, key string) error

	// DeleteByPrefix removes every key starting with prefix and returns how
	// many were removed.
	DeleteByPrefix(ctx context.Context, prefix string) (int, error)

	// Len returns the number of cached keys.
	Len(ctx context.Context) (int, error)
}
