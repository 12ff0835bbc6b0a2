package peercache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	lockTTL     = 30 * time.Second
	waitTimeout = 30 * time.Second
	minBackoff  = 10 * time.Millisecond
	maxBackoff  = 500 * time.Millisecond
)

// unlockScript deletes the lock only if this caller still owns it.
var unlockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// refreshScript extends the lock only if this caller still owns it.
var refreshScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`)

// RedisStore keeps JSON-encoded values in Redis under a namespace. A miss is
// loaded by whichever process wins a SETNX lock; the others poll until the
// value shows up.
type RedisStore[T any] struct {
	client    redis.UniversalClient
	namespace string
}

// NewRedisStore creates a store whose keys are prefixed with namespace.
//
// Example:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	store := NewRedisStore[uint16](client, "hfsco:")
func NewRedisStore[T any](client redis.UniversalClient, namespace string) *RedisStore[T] {
	return &RedisStore[T]{client: client, namespace: namespace}
}

func (r *RedisStore[T]) key(k string) string { return r.namespace + k }

// get returns the decoded value; found is false on redis.Nil.
func (r *RedisStore[T]) get(ctx context.Context, key string) (value T, found bool, err error) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return value, false, nil
	}
	if err != nil {
		return value, false, fmt.Errorf("peercache: get %q: %w", key, err)
	}

	if err := json.Unmarshal(raw, &value); err != nil {
		return value, false, fmt.Errorf("peercache: decode %q: %w", key, err)
	}

	return value, true, nil
}

// Load implements Store.
func (r *RedisStore[T]) Load(ctx context.Context, key string, ttl time.Duration, load Loader[T]) (T, error) {
	var zero T
	full := r.key(key)

	if v, found, err := r.get(ctx, full); err != nil || found {
		return v, err
	}

	lockKey := full + ":lock"
	token := uuid.NewString()

	won, err := r.client.SetNX(ctx, lockKey, token, lockTTL).Result()
	if err != nil {
		return zero, fmt.Errorf("peercache: lock %q: %w", key, err)
	}
	if !won {
		return r.await(ctx, full, lockKey)
	}

	defer unlockScript.Run(context.Background(), r.client, []string{lockKey}, token)

	refreshCtx, stopRefresh := context.WithCancel(context.Background())
	defer stopRefresh()
	go r.refresh(refreshCtx, lockKey, token)

	value, err := load(ctx)
	if err != nil {
		return zero, err
	}

	if err := r.set(context.Background(), full, value, ttl); err != nil {
		return zero, err
	}

	return value, nil
}

// refresh keeps the lock alive while a slow Loader runs.
func (r *RedisStore[T]) refresh(ctx context.Context, lockKey, token string) {
	ticker := time.NewTicker(lockTTL / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refreshScript.Run(ctx, r.client, []string{lockKey}, token, lockTTL.Milliseconds())
		}
	}
}

// await polls with exponential backoff until the lock holder stores the
// value, gives up, or waitTimeout passes.
func (r *RedisStore[T]) await(ctx context.Context, key, lockKey string) (T, error) {
	var zero T

	deadline := time.Now().Add(waitTimeout)
	backoff := minBackoff

	for time.Now().Before(deadline) {
		if v, found, err := r.get(ctx, key); err != nil || found {
			return v, err
		}

		held, err := r.client.Exists(ctx, lockKey).Result()
		if err != nil {
			return zero, fmt.Errorf("peercache: check lock: %w", err)
		}
		if held == 0 {
			// The holder may have stored the value right before unlocking.
			if v, found, err := r.get(ctx, key); err != nil || found {
				return v, err
			}
			return zero, ErrLoadAbandoned
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}

		backoff = min(backoff*2, maxBackoff)
	}

	return zero, ErrWaitTimeout
}

func (r *RedisStore[T]) set(ctx context.Context, key string, value T, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("peercache: encode %q: %w", key, err)
	}

	if err := r.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("peercache: set %q: %w", key, err)
	}

	return nil
}

// Put implements Store. A zero ttl keeps the value until deleted.
func (r *RedisStore[T]) Put(ctx context.Context, key string, value T, ttl time.Duration) error {
	return r.set(ctx, r.key(key), value, ttl)
}

// Delete implements Store.
func (r *RedisStore[T]) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("peercache: delete %q: %w", key, err)
	}

	return nil
}

// DeleteByPrefix implements Store.
func (r *RedisStore[T]) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	keys, err := r.scan(ctx, r.key(prefix)+"*")
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}

	n, err := r.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("peercache: delete by prefix %q: %w", prefix, err)
	}

	return int(n), nil
}

// Len implements Store. Only value keys inside the namespace are counted.
func (r *RedisStore[T]) Len(ctx context.Context) (int, error) {
	keys, err := r.scan(ctx, r.namespace+"*")
	if err != nil {
		return 0, err
	}

	n := 0
	for _, k := range keys {
		if !strings.HasSuffix(k, ":lock") {
			n++
		}
	}

	return n, nil
}

func (r *RedisStore[T]) scan(ctx context.Context, match string) ([]string, error) {
	var keys []string

	iter := r.client.Scan(ctx, 0, match, 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("peercache: scan %q: %w", match, err)
	}

	return keys, nil
}
