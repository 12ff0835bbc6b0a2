package simctl

import (
	"sync"
	"sync/atomic"
)

// SLC is a simulated service-level connection for one peer.
type SLC struct {
	connected atomic.Bool
	once      sync.Once
	closed    chan struct{}
}

// NewSLC returns a connected SLC.
func NewSLC() *SLC {
	s := &SLC{closed: make(chan struct{})}
	s.connected.Store(true)
	return s
}

// ServiceLevelConnected implements scolink.Signaling.
func (s *SLC) ServiceLevelConnected() bool { return s.connected.Load() }

// SetConnected changes the reported SLC state.
func (s *SLC) SetConnected(up bool) { s.connected.Store(up) }

// RequestClose implements scolink.Signaling. The connection drops and Closed
// is signalled.
func (s *SLC) RequestClose() {
	s.connected.Store(false)
	s.once.Do(func() { close(s.closed) })
}

// Closed is closed once the session asked the SLC to finish closing.
func (s *SLC) Closed() <-chan struct{} { return s.closed }
