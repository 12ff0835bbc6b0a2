package scolink

import (
	"context"
	"sync"

	"github.com/cyberinferno/go-hfsco/bdaddr"
	"github.com/cyberinferno/go-hfsco/logger"
)

// DefaultQueueSize is the request queue length used when NewAgent is given
// a non-positive size.
const DefaultQueueSize = 32

// Op names a request processed by an Agent.
type Op int

const (
	OpListen Op = iota
	OpOpen
	OpClose
	OpShutdown
	OpSignalingClose
	OpSetCodec
	OpSnapshot
	OpLinkOpened
	OpLinkClosed
	OpConnectionRequest
)

// String implements fmt.Stringer.
func (o Op) String() string {
	switch o {
	case OpListen:
		return "Listen"
	case OpOpen:
		return "Open"
	case OpClose:
		return "Close"
	case OpShutdown:
		return "Shutdown"
	case OpSignalingClose:
		return "SignalingClose"
	case OpSetCodec:
		return "SetCodec"
	case OpSnapshot:
		return "Snapshot"
	case OpLinkOpened:
		return "LinkOpened"
	case OpLinkClosed:
		return "LinkClosed"
	case OpConnectionRequest:
		return "ConnectionRequest"
	default:
		return "Unknown"
	}
}

type request struct {
	op       Op
	handle   LinkHandle
	linkType LinkType
	codec    Codec
	reply    chan Snapshot
}

// Agent serializes every request and controller callback for one Session on
// a single goroutine. Profile requests, LinkEvents callbacks and snapshots
// all go through the same queue, so the session never sees two events at
// once. It is safe for concurrent use.
//
// Application AudioHandler callbacks run on the agent goroutine.
type Agent struct {
	session *Session
	log     logger.Logger

	queue    chan request
	stopChan chan struct{}
	wg       sync.WaitGroup

	startOnce sync.Once
	mu        sync.Mutex
	closed    bool
}

// NewAgent wraps s and makes the agent the receiver of the session's
// controller callbacks. The session must not be used directly afterwards.
//
// Parameters:
//   - s: The session to own
//   - queueSize: Request queue length; non-positive means DefaultQueueSize
//
// Returns:
//   - A new *Agent; call Start to begin processing and Close when done
func NewAgent(s *Session, queueSize int) *Agent {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}

	a := &Agent{
		session:  s,
		log:      s.log,
		queue:    make(chan request, queueSize),
		stopChan: make(chan struct{}),
	}
	s.events = a

	return a
}

// Start launches the event loop. Calling it more than once has no effect.
func (a *Agent) Start() {
	a.startOnce.Do(func() {
		a.wg.Add(1)
		go a.loop()
	})
}

// Close stops the event loop and waits for it to exit. Requests still queued
// are discarded. Idempotent.
func (a *Agent) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.stopChan)
	a.mu.Unlock()

	a.wg.Wait()
	return nil
}

// Peer returns the address of the session's peer.
func (a *Agent) Peer() bdaddr.Address { return a.session.peer }

// Listen queues a listen request.
func (a *Agent) Listen(ctx context.Context) error {
	return a.post(ctx, request{op: OpListen})
}

// Open queues an open request.
func (a *Agent) Open(ctx context.Context) error {
	return a.post(ctx, request{op: OpOpen})
}

// CloseAudio queues a close request for the audio link. Close stops the
// agent itself.
func (a *Agent) CloseAudio(ctx context.Context) error {
	return a.post(ctx, request{op: OpClose})
}

// Shutdown queues a shutdown request.
func (a *Agent) Shutdown(ctx context.Context) error {
	return a.post(ctx, request{op: OpShutdown})
}

// SignalingClose queues a signaling-initiated close.
func (a *Agent) SignalingClose(ctx context.Context) error {
	return a.post(ctx, request{op: OpSignalingClose})
}

// SetCodec queues a codec change for the next link.
func (a *Agent) SetCodec(ctx context.Context, c Codec) error {
	return a.post(ctx, request{op: OpSetCodec, codec: c})
}

// Snapshot returns the session's attributes once every request queued before
// it has been processed.
//
// Parameters:
//   - ctx: Bounds the wait for both queueing and the reply
//
// Returns:
//   - A copy of the session attributes
//   - ErrAgentClosed, or ctx.Err() if ctx ends first
func (a *Agent) Snapshot(ctx context.Context) (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	if err := a.post(ctx, request{op: OpSnapshot, reply: reply}); err != nil {
		return Snapshot{}, err
	}

	select {
	case snap := <-reply:
		return snap, nil
	case <-a.stopChan:
		return Snapshot{}, ErrAgentClosed
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

// LinkOpened implements LinkEvents.
func (a *Agent) LinkOpened(h LinkHandle) {
	a.postEvent(request{op: OpLinkOpened, handle: h})
}

// LinkClosed implements LinkEvents.
func (a *Agent) LinkClosed(h LinkHandle) {
	a.postEvent(request{op: OpLinkClosed, handle: h})
}

// ConnectionRequest implements LinkEvents.
func (a *Agent) ConnectionRequest(h LinkHandle, linkType LinkType) {
	a.postEvent(request{op: OpConnectionRequest, handle: h, linkType: linkType})
}

// postEvent queues a controller callback. Callbacks that arrive after Close
// are dropped.
func (a *Agent) postEvent(req request) {
	if err := a.post(context.Background(), req); err != nil {
		a.log.Warn("controller event dropped",
			logger.Field{Key: "op", Value: req.op.String()},
			logger.Field{Key: "handle", Value: req.handle.String()},
			logger.Field{Key: "error", Value: err.Error()},
		)
	}
}

func (a *Agent) post(ctx context.Context, req request) error {
	select {
	case <-a.stopChan:
		return ErrAgentClosed
	default:
	}

	select {
	case a.queue <- req:
		return nil
	case <-a.stopChan:
		return ErrAgentClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Agent) loop() {
	defer a.wg.Done()

	for {
		select {
		case <-a.stopChan:
			return
		case req := <-a.queue:
			a.handle(req)
		}
	}
}

func (a *Agent) handle(req request) {
	s := a.session

	switch req.op {
	case OpListen:
		s.Listen()
	case OpOpen:
		s.Open()
	case OpClose:
		s.Close()
	case OpShutdown:
		s.Shutdown()
	case OpSignalingClose:
		s.SignalingClose()
	case OpSetCodec:
		s.SetCodec(req.codec)
	case OpSnapshot:
		req.reply <- s.Snapshot()
	case OpLinkOpened:
		s.ConnOpen(req.handle)
	case OpLinkClosed:
		s.ConnClose(req.handle)
	case OpConnectionRequest:
		s.ConnectionRequest(req.handle, req.linkType)
	default:
		a.log.Warn("unknown request", logger.Field{Key: "op", Value: req.op.String()})
	}
}
