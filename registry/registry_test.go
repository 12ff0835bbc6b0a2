package registry

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberinferno/go-hfsco/audiobus"
	"github.com/cyberinferno/go-hfsco/bdaddr"
	"github.com/cyberinferno/go-hfsco/logger"
	"github.com/cyberinferno/go-hfsco/peercache"
	"github.com/cyberinferno/go-hfsco/scolink"
	"github.com/cyberinferno/go-hfsco/simctl"
)

var (
	peerA = bdaddr.MustParse("00:1A:7D:DA:71:13")
	peerB = bdaddr.MustParse("F0:99:B6:01:02:03")
)

type slc struct{}

func (slc) ServiceLevelConnected() bool { return true }
func (slc) RequestClose()               {}

// syncBuffer collects log output written from several goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newManager(t *testing.T, cfg Config) (*Manager, *simctl.Controller) {
	t.Helper()

	ctrl := simctl.New(simctl.Options{Latency: time.Millisecond})
	t.Cleanup(func() { _ = ctrl.Close() })

	cfg.Controller = ctrl
	m, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Stop(context.Background()) })

	return m, ctrl
}

func state(t *testing.T, e *Entry) scolink.Snapshot {
	t.Helper()
	snap, err := e.Agent.Snapshot(context.Background())
	require.NoError(t, err)
	return snap
}

func TestNew(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, scolink.ErrNoController)
}

func TestManager_Connect(t *testing.T) {
	ctx := context.Background()

	t.Run("registers and listens", func(t *testing.T) {
		m, ctrl := newManager(t, Config{FallbackVersion: 0x0106})

		e, err := m.Connect(ctx, peerA, slc{})
		require.NoError(t, err)
		assert.Equal(t, uint32(1), e.ID)
		assert.Equal(t, peerA, e.Agent.Peer())

		snap := state(t, e)
		assert.Equal(t, scolink.StateListening, snap.State)
		assert.True(t, snap.PeerSupportsESCO15)
		assert.Len(t, ctrl.Links(), 1)

		got, ok := m.Get(peerA)
		require.True(t, ok)
		assert.Same(t, e, got)
		assert.Equal(t, 1, m.Len())
	})

	t.Run("capacity", func(t *testing.T) {
		m, _ := newManager(t, Config{})

		_, err := m.Connect(ctx, peerA, slc{})
		require.NoError(t, err)

		_, err = m.Connect(ctx, peerB, slc{})
		assert.ErrorIs(t, err, ErrTooManySessions)
	})

	t.Run("duplicate peer", func(t *testing.T) {
		m, _ := newManager(t, Config{MaxSessions: 2})

		_, err := m.Connect(ctx, peerA, slc{})
		require.NoError(t, err)

		_, err = m.Connect(ctx, peerA, slc{})
		assert.ErrorIs(t, err, ErrSessionExists)
	})

	t.Run("concurrent connects respect the limit", func(t *testing.T) {
		m, _ := newManager(t, Config{MaxSessions: 2})

		peers := []bdaddr.Address{
			bdaddr.MustParse("00:00:00:00:00:01"),
			bdaddr.MustParse("00:00:00:00:00:02"),
			bdaddr.MustParse("00:00:00:00:00:03"),
			bdaddr.MustParse("00:00:00:00:00:04"),
		}

		var wg sync.WaitGroup
		for _, p := range peers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = m.Connect(ctx, p, slc{})
			}()
		}
		wg.Wait()

		assert.Equal(t, 2, m.Len())
	})
}

func TestManager_ProfileVersionFromDirectory(t *testing.T) {
	ctx := context.Background()
	dir := peercache.NewDirectory(peercache.NewMemoryStore[uint16](cache.NoExpiration, time.Minute), nil, 0, nil)
	require.NoError(t, dir.Remember(ctx, peerA, 0x0105))

	m, _ := newManager(t, Config{MaxSessions: 2, Directory: dir, FallbackVersion: 0x0101})

	a, err := m.Connect(ctx, peerA, slc{})
	require.NoError(t, err)
	assert.True(t, state(t, a).PeerSupportsESCO15)

	b, err := m.Connect(ctx, peerB, slc{})
	require.NoError(t, err)
	assert.False(t, state(t, b).PeerSupportsESCO15, "unknown peer gets the fallback version")
}

func TestManager_Disconnect(t *testing.T) {
	ctx := context.Background()
	bus := audiobus.New(4, nil)
	defer bus.Close()

	m, ctrl := newManager(t, Config{FallbackVersion: 0x0107, Arbiter: bus})

	e, err := m.Connect(ctx, peerA, slc{})
	require.NoError(t, err)
	require.NoError(t, e.Agent.Open(ctx))
	require.Eventually(t, func() bool {
		return state(t, e).State == scolink.StateOpen
	}, time.Second, 5*time.Millisecond)
	require.True(t, bus.Busy())

	require.NoError(t, m.Disconnect(ctx, peerA))

	assert.Zero(t, m.Len())
	assert.Empty(t, ctrl.Links())
	assert.False(t, bus.Busy())
	assert.ErrorIs(t, e.Agent.Listen(ctx), scolink.ErrAgentClosed)

	assert.ErrorIs(t, m.Disconnect(ctx, peerA), ErrUnknownSession)
}

func TestManager_DisconnectTimesOut(t *testing.T) {
	ctx := context.Background()
	ctrl := simctl.New(simctl.Options{Latency: time.Hour})
	defer ctrl.Close()

	logs := &syncBuffer{}
	m, err := New(Config{
		Controller:      ctrl,
		FallbackVersion: 0x0107,
		ShutdownTimeout: 20 * time.Millisecond,
		Logger:          logger.NewZerologLogger(zerolog.New(logs), "test", zerolog.WarnLevel),
	})
	require.NoError(t, err)

	e, err := m.Connect(ctx, peerA, slc{})
	require.NoError(t, err)
	require.NoError(t, e.Agent.Open(ctx))

	start := time.Now()
	require.NoError(t, m.Disconnect(ctx, peerA))
	assert.Less(t, time.Since(start), time.Second)

	out := logs.String()
	assert.Contains(t, out, "link still up after shutdown timeout")
	assert.Contains(t, out, `"state":"ShuttingDown"`)
}

func TestManager_ConnectDoesNotWaitForOtherLookups(t *testing.T) {
	ctx := context.Background()
	started := make(chan struct{})
	release := make(chan struct{})

	discover := func(ctx context.Context, peer bdaddr.Address) (uint16, error) {
		if peer == peerA {
			close(started)
			select {
			case <-release:
			case <-ctx.Done():
				return 0, ctx.Err()
			}
		}
		return 0x0107, nil
	}
	dir := peercache.NewDirectory(peercache.NewMemoryStore[uint16](cache.NoExpiration, time.Minute), discover, 0, nil)

	m, _ := newManager(t, Config{MaxSessions: 2, Directory: dir})

	slow := make(chan error, 1)
	go func() {
		_, err := m.Connect(ctx, peerA, slc{})
		slow <- err
	}()
	<-started

	done := make(chan error, 1)
	go func() {
		_, err := m.Connect(ctx, peerB, slc{})
		done <- err
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		close(release)
		t.Fatal("connect blocked behind another peer's version lookup")
	}

	close(release)
	require.NoError(t, <-slow)
	assert.Equal(t, 2, m.Len())
}

func TestManager_Stop(t *testing.T) {
	ctx := context.Background()
	m, ctrl := newManager(t, Config{MaxSessions: 2})

	_, err := m.Connect(ctx, peerA, slc{})
	require.NoError(t, err)
	_, err = m.Connect(ctx, peerB, slc{})
	require.NoError(t, err)
	assert.Len(t, m.Sessions(), 2)

	require.NoError(t, m.Stop(ctx))

	assert.Zero(t, m.Len())
	assert.Empty(t, ctrl.Links())

	_, err = m.Connect(ctx, peerA, slc{})
	assert.ErrorIs(t, err, ErrStopped)
}
