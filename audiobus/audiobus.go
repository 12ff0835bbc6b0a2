// Package audiobus implements the system audio arbiter. Voice profiles
// report when they claim and release the radio for a synchronous link, and
// other components (for example a media streaming profile) subscribe to
// those notifications to back off while a call is active.
package audiobus

import (
	"fmt"
	"sync"

	"github.com/cskr/pubsub/v2"

	"github.com/cyberinferno/go-hfsco/bdaddr"
	"github.com/cyberinferno/go-hfsco/logger"
	"github.com/cyberinferno/go-hfsco/scolink"
)

// TopicAll receives the notifications of every peer.
const TopicAll = "*"

// DefaultCapacity is the per-subscriber buffer used when New is given a
// non-positive capacity.
const DefaultCapacity = 16

// Kind is the type of an arbitration notification.
type Kind int

const (
	InUse    Kind = iota // A link is being set up
	Open                 // The link is up
	Close                // The link went down
	Released             // The profile no longer needs the radio
)

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case InUse:
		return "InUse"
	case Open:
		return "Open"
	case Close:
		return "Close"
	case Released:
		return "Released"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Notification is published for every arbiter call.
type Notification struct {
	Kind    Kind
	Profile scolink.ProfileID
	Peer    bdaddr.Address
}

// Subscription is a stream of notifications. C is closed once the
// subscription or the bus is closed.
type Subscription struct {
	C <-chan Notification

	bus    *Bus
	ch     chan Notification
	topics []string
	once   sync.Once
}

// Close stops delivery to the subscription.
func (s *Subscription) Close() {
	s.once.Do(func() {
		if s.bus.isClosed() {
			return
		}

		// Unsub may wait on an in-flight publish to this channel.
		go s.bus.ps.Unsub(s.ch, s.topics...)
	})
}

// Bus is an in-process arbiter backed by a pub/sub hub. Publishing never
// blocks: slow subscribers miss notifications instead of stalling the
// session that reports them. It is safe for concurrent use and implements
// scolink.AudioArbiter.
type Bus struct {
	ps  *pubsub.PubSub[string, Notification]
	log logger.Logger

	mu     sync.RWMutex
	claims map[bdaddr.Address]Kind
	closed bool
}

var _ scolink.AudioArbiter = (*Bus)(nil)

// New creates a bus.
//
// Parameters:
//   - capacity: Buffer size of every subscription channel
//   - log: Logger for the bus; nil discards entries
//
// Returns:
//   - A new *Bus; call Close to stop it
func New(capacity int, log logger.Logger) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if log == nil {
		log = logger.NewNopLogger()
	}

	return &Bus{
		ps:     pubsub.New[string, Notification](capacity),
		log:    log.With(logger.Field{Key: "component", Value: "audiobus"}),
		claims: make(map[bdaddr.Address]Kind),
	}
}

// NotifyInUse implements scolink.AudioArbiter.
func (b *Bus) NotifyInUse(profile scolink.ProfileID, peer bdaddr.Address) {
	b.publish(Notification{Kind: InUse, Profile: profile, Peer: peer})
}

// NotifyOpen implements scolink.AudioArbiter.
func (b *Bus) NotifyOpen(profile scolink.ProfileID, peer bdaddr.Address) {
	b.publish(Notification{Kind: Open, Profile: profile, Peer: peer})
}

// NotifyClose implements scolink.AudioArbiter.
func (b *Bus) NotifyClose(profile scolink.ProfileID, peer bdaddr.Address) {
	b.publish(Notification{Kind: Close, Profile: profile, Peer: peer})
}

// NotifyReleased implements scolink.AudioArbiter.
func (b *Bus) NotifyReleased(profile scolink.ProfileID, peer bdaddr.Address) {
	b.publish(Notification{Kind: Released, Profile: profile, Peer: peer})
}

// Subscribe returns a subscription to the given peers' notifications, or to
// every peer when none is given.
func (b *Bus) Subscribe(peers ...bdaddr.Address) *Subscription {
	topics := []string{TopicAll}
	if len(peers) > 0 {
		topics = make([]string, 0, len(peers))
		for _, p := range peers {
			topics = append(topics, p.String())
		}
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		ch := make(chan Notification)
		close(ch)
		return &Subscription{C: ch, bus: b, ch: ch}
	}

	ch := b.ps.Sub(topics...)
	return &Subscription{C: ch, bus: b, ch: ch, topics: topics}
}

// Status returns the last notification kind reported for peer. ok is false
// once the peer released the radio or never claimed it.
func (b *Bus) Status(peer bdaddr.Address) (kind Kind, ok bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	kind, ok = b.claims[peer]
	return kind, ok
}

// Busy reports whether any peer currently holds the radio.
func (b *Bus) Busy() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.claims) > 0
}

// Close shuts the hub down and closes every subscription channel.
// Idempotent.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	b.ps.Shutdown()
}

func (b *Bus) isClosed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.closed
}

func (b *Bus) publish(n Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	if n.Kind == Released {
		delete(b.claims, n.Peer)
	} else {
		b.claims[n.Peer] = n.Kind
	}

	b.log.Debug("audio notification",
		logger.Field{Key: "kind", Value: n.Kind.String()},
		logger.Field{Key: "peer", Value: n.Peer.String()},
		logger.Field{Key: "profile", Value: uint8(n.Profile)},
	)
	b.ps.TryPub(n, TopicAll, n.Peer.String())
}
