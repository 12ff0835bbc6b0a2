// Package registry keeps one SCO link agent per connected Audio Gateway.
// A Manager creates the agent when the peer's service-level connection comes
// up, starts it listening for audio, and tears it down when the connection
// goes away.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cyberinferno/go-hfsco/bdaddr"
	"github.com/cyberinferno/go-hfsco/idgenerator"
	"github.com/cyberinferno/go-hfsco/logger"
	"github.com/cyberinferno/go-hfsco/peercache"
	"github.com/cyberinferno/go-hfsco/safemap"
	"github.com/cyberinferno/go-hfsco/scolink"
)

var (
	// ErrTooManySessions is returned by Connect when the manager is full.
	ErrTooManySessions = errors.New("registry: too many sessions")

	// ErrSessionExists is returned by Connect for a peer that already has a session.
	ErrSessionExists = errors.New("registry: session already exists")

	// ErrUnknownSession is returned for a peer without a session.
	ErrUnknownSession = errors.New("registry: unknown session")

	// ErrStopped is returned by Connect after Stop.
	ErrStopped = errors.New("registry: manager stopped")
)

// DefaultMaxSessions matches the single audio link most controllers support.
const DefaultMaxSessions = 1

// DefaultShutdownTimeout bounds how long a teardown waits for the controller
// to confirm that a live link is down.
const DefaultShutdownTimeout = 2 * time.Second

const shutdownPoll = 5 * time.Millisecond

// Config configures a Manager.
type Config struct {
	// MaxSessions caps concurrent sessions. Zero means DefaultMaxSessions.
	MaxSessions int
	// QueueSize is the request queue length of every agent.
	QueueSize int
	// Codec is the initial codec of new sessions.
	Codec scolink.Codec
	// FallbackVersion is used when the peer's profile version is unknown.
	FallbackVersion uint16
	// ShutdownTimeout is zero for DefaultShutdownTimeout.
	ShutdownTimeout time.Duration

	Controller scolink.Controller
	Arbiter    scolink.AudioArbiter
	// Directory resolves peer profile versions; optional.
	Directory *peercache.Directory
	// OnAudio receives every session's audio notifications; optional.
	OnAudio scolink.AudioHandler
	Logger  logger.Logger
}

// Entry is a registered session.
type Entry struct {
	ID    uint32
	Peer  bdaddr.Address
	Agent *scolink.Agent
}

// Manager owns the agents of all connected peers. It is safe for concurrent use.
type Manager struct {
	cfg Config
	log logger.Logger
	ids *idgenerator.Generator[uint32]

	// mu serializes Connect, Disconnect and Stop so the capacity check and
	// the insert happen together.
	mu       sync.Mutex
	sessions safemap.Map[bdaddr.Address, *Entry]
	stopped  bool
}

// New creates a manager.
//
// Parameters:
//   - cfg: Collaborators and limits; Controller is required
//
// Returns:
//   - A new *Manager
//   - An error if cfg has no Controller
func New(cfg Config) (*Manager, error) {
	if cfg.Controller == nil {
		return nil, scolink.ErrNoController
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultMaxSessions
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}

	log := cfg.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}

	return &Manager{
		cfg: cfg,
		log: log.With(logger.Field{Key: "component", Value: "registry"}),
		ids: idgenerator.New[uint32](0),
	}, nil
}

// Connect registers a session for peer once its service-level connection is
// up, and starts listening for incoming audio.
//
// Parameters:
//   - ctx: Bounds the profile version lookup and the listen request
//   - peer: Remote Audio Gateway
//   - slc: The peer's signaling layer
//
// Returns:
//   - The new entry
//   - ErrTooManySessions, ErrSessionExists, ErrStopped, or a session error
func (m *Manager) Connect(ctx context.Context, peer bdaddr.Address, slc scolink.Signaling) (*Entry, error) {
	// The lookup may go to redis or service discovery, so it runs unlocked.
	version := m.profileVersion(ctx, peer)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return nil, ErrStopped
	}
	if m.sessions.Has(peer) {
		return nil, fmt.Errorf("%w: %s", ErrSessionExists, peer)
	}
	if n := m.sessions.Len(); n >= m.cfg.MaxSessions {
		m.log.Warn("session refused",
			logger.Field{Key: "peer", Value: peer.String()},
			logger.Field{Key: "sessions", Value: n},
		)
		return nil, ErrTooManySessions
	}

	id := m.ids.Next()
	sessionLog := m.log.With(logger.Field{Key: "session_id", Value: id})

	s, err := scolink.NewSession(scolink.Options{
		Peer:        peer,
		PeerVersion: version,
		Codec:       m.cfg.Codec,
		Controller:  m.cfg.Controller,
		Signaling:   slc,
		Arbiter:     m.cfg.Arbiter,
		OnAudio:     m.cfg.OnAudio,
		Logger:      sessionLog,
	})
	if err != nil {
		return nil, fmt.Errorf("registry: new session: %w", err)
	}

	agent := scolink.NewAgent(s, m.cfg.QueueSize)
	agent.Start()

	if err := agent.Listen(ctx); err != nil {
		_ = agent.Close()
		return nil, fmt.Errorf("registry: listen: %w", err)
	}

	e := &Entry{ID: id, Peer: peer, Agent: agent}
	m.sessions.Store(peer, e)
	sessionLog.Info("session registered", logger.Field{Key: "peer", Value: peer.String()})

	return e, nil
}

// Disconnect shuts the peer's session down after its service-level
// connection closed.
func (m *Manager) Disconnect(ctx context.Context, peer bdaddr.Address) error {
	m.mu.Lock()
	e, ok := m.sessions.LoadAndDelete(peer)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSession, peer)
	}

	return m.teardown(ctx, e)
}

// Get returns the entry for peer.
func (m *Manager) Get(peer bdaddr.Address) (*Entry, bool) {
	return m.sessions.Load(peer)
}

// Sessions returns every registered entry.
func (m *Manager) Sessions() []*Entry {
	return m.sessions.Values()
}

// Len returns the number of registered sessions.
func (m *Manager) Len() int {
	return m.sessions.Len()
}

// Stop tears every session down in parallel and refuses later connects.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	m.stopped = true
	entries := m.sessions.Values()
	for _, e := range entries {
		m.sessions.Delete(e.Peer)
	}
	m.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, e := range entries {
		g.Go(func() error { return m.teardown(gctx, e) })
	}

	err := g.Wait()
	m.log.Info("registry stopped", logger.Field{Key: "sessions", Value: len(entries)})

	return err
}

// teardown shuts the session down, waits up to ShutdownTimeout for a live
// link to go away and closes the agent. Link callbacks arriving afterwards
// are dropped.
func (m *Manager) teardown(ctx context.Context, e *Entry) error {
	defer func() { _ = e.Agent.Close() }()

	if err := e.Agent.Shutdown(ctx); err != nil {
		return fmt.Errorf("registry: shutdown %s: %w", e.Peer, err)
	}

	wctx, cancel := context.WithTimeout(ctx, m.cfg.ShutdownTimeout)
	defer cancel()

	ticker := time.NewTicker(shutdownPoll)
	defer ticker.Stop()

	last := "unknown"
	for {
		snap, err := e.Agent.Snapshot(wctx)
		if err == nil {
			if snap.State == scolink.StateShutdown {
				break
			}
			last = snap.State.String()
		}
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("registry: shutdown %s: %w", e.Peer, err)
		}

		select {
		case <-ticker.C:
			continue
		case <-wctx.Done():
		}

		if ctx.Err() != nil {
			return fmt.Errorf("registry: shutdown %s: %w", e.Peer, ctx.Err())
		}
		m.log.Warn("link still up after shutdown timeout",
			logger.Field{Key: "peer", Value: e.Peer.String()},
			logger.Field{Key: "state", Value: last},
		)
		break
	}

	m.log.Info("session removed",
		logger.Field{Key: "session_id", Value: e.ID},
		logger.Field{Key: "peer", Value: e.Peer.String()},
	)
	return nil
}

func (m *Manager) profileVersion(ctx context.Context, peer bdaddr.Address) uint16 {
	if m.cfg.Directory == nil {
		return m.cfg.FallbackVersion
	}

	v, err := m.cfg.Directory.ProfileVersion(ctx, peer)
	if err != nil {
		m.log.Warn("profile version unknown, using fallback",
			logger.Field{Key: "peer", Value: peer.String()},
			logger.Field{Key: "fallback", Value: fmt.Sprintf("0x%04x", m.cfg.FallbackVersion)},
			logger.Field{Key: "error", Value: err.Error()},
		)
		return m.cfg.FallbackVersion
	}

	return v
}
