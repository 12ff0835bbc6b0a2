// Package simctl is a simulated radio controller. It implements
// scolink.Controller with in-memory links and reports link events from its
// own goroutines after a configurable delay, the way a real controller
// answers from its HCI event thread. It drives the command line simulator
// and integration tests.
package simctl

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cyberinferno/go-hfsco/bdaddr"
	"github.com/cyberinferno/go-hfsco/idgenerator"
	"github.com/cyberinferno/go-hfsco/logger"
	"github.com/cyberinferno/go-hfsco/safemap"
	"github.com/cyberinferno/go-hfsco/scolink"
)

var (
	// ErrClosed is returned by every command once the controller is closed.
	ErrClosed = errors.New("simctl: controller closed")

	// ErrNoListener is returned by InjectIncoming when the peer has no
	// passive link with a registered connection-request handler.
	ErrNoListener = errors.New("simctl: no passive link for peer")

	// ErrNoPendingRequest is returned when answering a link that has no
	// outstanding connection request.
	ErrNoPendingRequest = errors.New("simctl: no pending connection request")

	// ErrNotConnected is returned by DropLink for a link that is not up.
	ErrNotConnected = errors.New("simctl: link not connected")
)

// maxHandle is the largest HCI connection handle.
const maxHandle scolink.LinkHandle = 0x0EFF

// Options configures a Controller.
type Options struct {
	// Latency delays every asynchronous event.
	Latency time.Duration
	// FailESCO makes every outgoing link that allows eSCO packet types fail
	// to connect, as some controller firmware does.
	FailESCO bool
	// RejectCreate makes CreateLink refuse every command.
	RejectCreate bool
	Logger       logger.Logger
}

// LinkState is the lifecycle state of a simulated link.
type LinkState int

const (
	LinkListening LinkState = iota // passive, waiting for the peer
	LinkRequested                  // peer asked to connect, waiting for the host's answer
	LinkConnecting                 // outgoing or accepted, not up yet
	LinkConnected
	LinkRemoving
)

// String returns a human-readable name for the state.
func (s LinkState) String() string {
	switch s {
	case LinkListening:
		return "listening"
	case LinkRequested:
		return "requested"
	case LinkConnecting:
		return "connecting"
	case LinkConnected:
		return "connected"
	case LinkRemoving:
		return "removing"
	default:
		return "unknown"
	}
}

// LinkInfo describes a simulated link.
type LinkInfo struct {
	Handle      scolink.LinkHandle
	Peer        bdaddr.Address
	Originate   bool
	PacketTypes scolink.PacketType
	LinkType    scolink.LinkType
	State       LinkState
}

type link struct {
	mu        sync.Mutex
	info      LinkInfo
	events    scolink.LinkEvents
	onRequest scolink.ConnectionRequestHandler
}

func (l *link) snapshot() LinkInfo {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.info
}

// Controller is a simulated link manager. It is safe for concurrent use.
type Controller struct {
	opts    Options
	log     logger.Logger
	handles *idgenerator.Generator[scolink.LinkHandle]
	links   safemap.Map[scolink.LinkHandle, *link]

	modeMu sync.Mutex
	modes  map[scolink.LinkType]scolink.Params

	// runMu orders later's WaitGroup.Add against Close.
	runMu  sync.RWMutex
	done   chan struct{}
	closed atomic.Bool
	wg     sync.WaitGroup
}

var _ scolink.Controller = (*Controller)(nil)

// New creates a simulated controller.
func New(opts Options) *Controller {
	log := opts.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}

	return &Controller{
		opts:    opts,
		log:     log.With(logger.Field{Key: "component", Value: "simctl"}),
		handles: idgenerator.NewBounded[scolink.LinkHandle](0x007F, maxHandle, 0),
		modes:   make(map[scolink.LinkType]scolink.Params),
		done:    make(chan struct{}),
	}
}

// Close stops event delivery and waits for in-flight callbacks to finish.
// Idempotent.
func (c *Controller) Close() error {
	c.runMu.Lock()
	if c.closed.Load() {
		c.runMu.Unlock()
		return nil
	}
	c.closed.Store(true)
	close(c.done)
	c.runMu.Unlock()

	c.wg.Wait()
	return nil
}

// SetLinkModeParameters implements scolink.Controller.
func (c *Controller) SetLinkModeParameters(linkType scolink.LinkType, params scolink.Params) error {
	if c.closed.Load() {
		return ErrClosed
	}

	c.modeMu.Lock()
	c.modes[linkType] = params
	c.modeMu.Unlock()

	c.log.Debug("link mode parameters set",
		logger.Field{Key: "link_type", Value: linkType.String()},
		logger.Field{Key: "packet_types", Value: uint16(params.PacketTypes)},
	)
	return nil
}

// Mode returns the parameters last set for linkType.
func (c *Controller) Mode(linkType scolink.LinkType) (scolink.Params, bool) {
	c.modeMu.Lock()
	defer c.modeMu.Unlock()

	p, ok := c.modes[linkType]
	return p, ok
}

// CreateLink implements scolink.Controller.
func (c *Controller) CreateLink(peer bdaddr.Address, originate bool, packetTypes scolink.PacketType, events scolink.LinkEvents) (scolink.LinkHandle, error) {
	if c.closed.Load() {
		return scolink.InvalidHandle, ErrClosed
	}
	if c.opts.RejectCreate {
		return scolink.InvalidHandle, errors.New("simctl: create link rejected")
	}

	l := &link{
		info: LinkInfo{
			Peer:        peer,
			Originate:   originate,
			PacketTypes: packetTypes,
			LinkType:    linkTypeFor(packetTypes),
			State:       LinkListening,
		},
		events: events,
	}
	if originate {
		l.info.State = LinkConnecting
	}

	for {
		h := c.handles.Next()
		if _, taken := c.links.LoadOrStore(h, l); !taken {
			l.info.Handle = h
			break
		}
	}
	h := l.info.Handle

	c.log.Debug("link created",
		logger.Field{Key: "handle", Value: h.String()},
		logger.Field{Key: "peer", Value: peer.String()},
		logger.Field{Key: "originate", Value: originate},
	)

	if originate {
		fail := c.opts.FailESCO && l.info.LinkType == scolink.LinkTypeESCO
		c.later(func() { c.complete(l, fail) })
	}

	return h, nil
}

// RemoveLink implements scolink.Controller. A passive link nobody connected
// to is released at once; anything else goes down asynchronously.
func (c *Controller) RemoveLink(h scolink.LinkHandle) (bool, error) {
	if c.closed.Load() {
		return false, ErrClosed
	}

	l, ok := c.links.Load(h)
	if !ok {
		return false, scolink.ErrUnknownLink
	}

	l.mu.Lock()
	state := l.info.State
	if state == LinkListening {
		l.mu.Unlock()
		c.links.Delete(h)
		c.log.Debug("passive link released", logger.Field{Key: "handle", Value: h.String()})
		return false, nil
	}
	l.info.State = LinkRemoving
	l.mu.Unlock()

	if state != LinkRemoving {
		c.later(func() { c.disconnect(l) })
	}

	return true, nil
}

// RegisterConnectionRequestHandler implements scolink.Controller.
func (c *Controller) RegisterConnectionRequestHandler(h scolink.LinkHandle, handler scolink.ConnectionRequestHandler) error {
	if c.closed.Load() {
		return ErrClosed
	}

	l, ok := c.links.Load(h)
	if !ok {
		return scolink.ErrUnknownLink
	}

	l.mu.Lock()
	l.onRequest = handler
	l.mu.Unlock()

	return nil
}

// RespondConnectionRequest implements scolink.Controller.
func (c *Controller) RespondConnectionRequest(h scolink.LinkHandle, status scolink.HCIStatus, params scolink.Params) error {
	if c.closed.Load() {
		return ErrClosed
	}

	l, ok := c.links.Load(h)
	if !ok {
		c.log.Debug("response for unknown link",
			logger.Field{Key: "handle", Value: h.String()},
			logger.Field{Key: "status", Value: status.String()},
		)
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.info.State != LinkRequested {
		return ErrNoPendingRequest
	}

	if status != scolink.HCIStatusSuccess {
		l.info.State = LinkListening
		c.log.Debug("connection request rejected",
			logger.Field{Key: "handle", Value: h.String()},
			logger.Field{Key: "status", Value: status.String()},
		)
		return nil
	}

	l.info.State = LinkConnecting
	l.info.PacketTypes = params.PacketTypes
	c.later(func() { c.complete(l, false) })

	return nil
}

// InjectIncoming simulates the peer connecting audio to its passive link.
func (c *Controller) InjectIncoming(peer bdaddr.Address, linkType scolink.LinkType) (scolink.LinkHandle, error) {
	if c.closed.Load() {
		return scolink.InvalidHandle, ErrClosed
	}

	var target *link
	c.links.Range(func(_ scolink.LinkHandle, l *link) bool {
		l.mu.Lock()
		defer l.mu.Unlock()

		if l.info.Peer == peer && l.info.State == LinkListening && l.onRequest != nil {
			l.info.State = LinkRequested
			l.info.LinkType = linkType
			target = l
			return false
		}
		return true
	})
	if target == nil {
		return scolink.InvalidHandle, ErrNoListener
	}

	target.mu.Lock()
	h, handler := target.info.Handle, target.onRequest
	target.mu.Unlock()

	c.later(func() { handler(h, linkType) })
	return h, nil
}

// DropLink simulates the radio losing a connected link.
func (c *Controller) DropLink(h scolink.LinkHandle) error {
	l, ok := c.links.Load(h)
	if !ok {
		return scolink.ErrUnknownLink
	}

	l.mu.Lock()
	if l.info.State != LinkConnected {
		l.mu.Unlock()
		return ErrNotConnected
	}
	l.info.State = LinkRemoving
	l.mu.Unlock()

	c.later(func() { c.disconnect(l) })
	return nil
}

// Link returns a copy of the link's description.
func (c *Controller) Link(h scolink.LinkHandle) (LinkInfo, bool) {
	l, ok := c.links.Load(h)
	if !ok {
		return LinkInfo{}, false
	}

	return l.snapshot(), true
}

// Links returns every live link.
func (c *Controller) Links() []LinkInfo {
	var out []LinkInfo
	c.links.Range(func(_ scolink.LinkHandle, l *link) bool {
		out = append(out, l.snapshot())
		return true
	})

	return out
}

// complete finishes a connection attempt unless the link was removed in
// the meantime.
func (c *Controller) complete(l *link, fail bool) {
	l.mu.Lock()
	if l.info.State != LinkConnecting {
		l.mu.Unlock()
		return
	}

	h := l.info.Handle
	if fail {
		l.mu.Unlock()
		c.links.Delete(h)
		c.log.Info("simulated eSCO setup failure", logger.Field{Key: "handle", Value: h.String()})
		l.events.LinkClosed(h)
		return
	}

	l.info.State = LinkConnected
	l.mu.Unlock()

	c.log.Debug("link connected", logger.Field{Key: "handle", Value: h.String()})
	l.events.LinkOpened(h)
}

func (c *Controller) disconnect(l *link) {
	h := l.snapshot().Handle
	if _, ok := c.links.LoadAndDelete(h); !ok {
		return
	}

	c.log.Debug("link disconnected", logger.Field{Key: "handle", Value: h.String()})
	l.events.LinkClosed(h)
}

// later runs f on a new goroutine after the configured latency unless the
// controller is closed first.
func (c *Controller) later(f func()) {
	c.runMu.RLock()
	if c.closed.Load() {
		c.runMu.RUnlock()
		return
	}
	c.wg.Add(1)
	c.runMu.RUnlock()

	go func() {
		defer c.wg.Done()

		if c.opts.Latency > 0 {
			timer := time.NewTimer(c.opts.Latency)
			defer timer.Stop()

			select {
			case <-timer.C:
			case <-c.done:
				return
			}
		}

		select {
		case <-c.done:
			return
		default:
		}
		f()
	}()
}

// linkTypeFor classifies an outgoing link by the packet types it allows.
func linkTypeFor(p scolink.PacketType) scolink.LinkType {
	if p&scolink.ESCOLinkOnlyMask != 0 {
		return scolink.LinkTypeESCO
	}

	return scolink.LinkTypeSCO
}
