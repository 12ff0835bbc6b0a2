package peercache

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newRedisStore connects to the server named by HFSCO_TEST_REDIS_ADDR and
// namespaces every key to the test run.
func newRedisStore[T any](t *testing.T) *RedisStore[T] {
	t.Helper()

	addr := os.Getenv("HFSCO_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("HFSCO_TEST_REDIS_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(context.Background()).Err())

	s := NewRedisStore[T](client, "hfsco-test:"+uuid.NewString()+":")
	t.Cleanup(func() { _, _ = s.DeleteByPrefix(context.Background(), "") })

	return s
}

func TestRedisStore_Load(t *testing.T) {
	s := newRedisStore[uint16](t)
	ctx := context.Background()

	var loads int32
	load := func(context.Context) (uint16, error) {
		atomic.AddInt32(&loads, 1)
		time.Sleep(20 * time.Millisecond)
		return 0x0108, nil
	}

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := s.Load(ctx, "version", time.Minute, load)
			assert.NoError(t, err)
			assert.Equal(t, uint16(0x0108), v)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&loads))

	n, err := s.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRedisStore_PutDelete(t *testing.T) {
	s := newRedisStore[string](t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "a:1", "x", time.Minute))
	require.NoError(t, s.Put(ctx, "a:2", "y", time.Minute))
	require.NoError(t, s.Put(ctx, "b:1", "z", time.Minute))

	n, err := s.DeleteByPrefix(ctx, "a:")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, s.Delete(ctx, "b:1"))
	count, err := s.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRedisStore_FailedLoadReleasesLock(t *testing.T) {
	s := newRedisStore[string](t)
	ctx := context.Background()

	_, err := s.Load(ctx, "k", time.Minute, func(context.Context) (string, error) {
		return "", assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	v, err := s.Load(ctx, "k", time.Minute, constant("ok"))
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}
