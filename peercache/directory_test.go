package peercache

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberinferno/go-hfsco/bdaddr"
)

var (
	peerA = bdaddr.MustParse("00:1A:7D:DA:71:13")
	peerB = bdaddr.MustParse("F0:99:B6:01:02:03")
)

func TestVersionKey(t *testing.T) {
	assert.Equal(t, "hfp:peer:00:1A:7D:DA:71:13:version", VersionKey(peerA))
}

func TestDirectory_ProfileVersion(t *testing.T) {
	ctx := context.Background()

	t.Run("discovers once", func(t *testing.T) {
		var calls int32
		d := NewDirectory(NewMemoryStore[uint16](cache.NoExpiration, time.Minute),
			func(_ context.Context, peer bdaddr.Address) (uint16, error) {
				atomic.AddInt32(&calls, 1)
				return 0x0106, nil
			}, 0, nil)

		for range 3 {
			v, err := d.ProfileVersion(ctx, peerA)
			require.NoError(t, err)
			assert.Equal(t, uint16(0x0106), v)
		}
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})

	t.Run("discovery error", func(t *testing.T) {
		d := NewDirectory(NewMemoryStore[uint16](cache.NoExpiration, time.Minute),
			func(context.Context, bdaddr.Address) (uint16, error) {
				return 0, assert.AnError
			}, time.Hour, nil)

		_, err := d.ProfileVersion(ctx, peerA)
		assert.ErrorIs(t, err, assert.AnError)
	})

	t.Run("no discoverer", func(t *testing.T) {
		d := NewDirectory(NewMemoryStore[uint16](cache.NoExpiration, time.Minute), nil, 0, nil)

		_, err := d.ProfileVersion(ctx, peerA)
		assert.Error(t, err)

		require.NoError(t, d.Remember(ctx, peerA, 0x0105))
		v, err := d.ProfileVersion(ctx, peerA)
		require.NoError(t, err)
		assert.Equal(t, uint16(0x0105), v)
	})
}

func TestDirectory_Forget(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore[uint16](cache.NoExpiration, time.Minute)
	d := NewDirectory(store, nil, 0, nil)

	require.NoError(t, d.Remember(ctx, peerA, 0x0107))
	require.NoError(t, d.Remember(ctx, peerB, 0x0107))
	require.NoError(t, d.Forget(ctx, peerA))

	_, err := d.ProfileVersion(ctx, peerA)
	assert.Error(t, err)

	v, err := d.ProfileVersion(ctx, peerB)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0107), v)
}
