// Package scolink implements the SCO/eSCO audio link controller of a
// Hands-Free client. A Session owns one peer's synchronous link: it selects
// link parameters for the negotiated codec, drives the listen / open / close /
// shutdown state machine, falls back to basic SCO when an eSCO attempt fails,
// and tells the system audio arbiter and the application when audio starts
// and stops.
//
// A Session is not safe for concurrent use. Wrap it in an Agent to funnel
// profile requests and controller callbacks through a single goroutine.
package scolink

import (
	"errors"

	"github.com/cyberinferno/go-hfsco/bdaddr"
	"github.com/cyberinferno/go-hfsco/logger"
	"github.com/cyberinferno/go-hfsco/perfmonitor"
)

// Options configures a Session.
type Options struct {
	// Peer is the remote Audio Gateway.
	Peer bdaddr.Address
	// Profile is reported to the arbiter. Zero means ProfileHandsFree.
	Profile ProfileID
	// PeerVersion is the Hands-Free profile version advertised by the peer.
	PeerVersion uint16
	// Codec is the codec negotiated so far. Zero means CodecCVSD.
	Codec Codec

	Controller Controller
	Signaling  Signaling
	// Arbiter is optional.
	Arbiter AudioArbiter
	// OnAudio is optional.
	OnAudio AudioHandler
	// Logger is optional; entries carry a "peer" field.
	Logger logger.Logger
}

// Snapshot is a copy of a session's attributes.
type Snapshot struct {
	Peer                      bdaddr.Address
	Handle                    LinkHandle
	State                     State
	Codec                     Codec
	PeerSupportsESCO15        bool
	RetryWithSCOOnly          bool
	ServiceLevelConnected     bool
	CloseRequestedBySignaling bool
}

// Session is the SCO link controller for one peer.
type Session struct {
	peer    bdaddr.Address
	profile ProfileID
	ctrl    Controller
	slc     Signaling
	arbiter AudioArbiter
	onAudio AudioHandler
	log     logger.Logger

	handle                    LinkHandle
	state                     State
	codec                     Codec
	peerSupportsESCO15        bool
	retryWithSCOOnly          bool
	closeRequestedBySignaling bool
	// audioClaimed is set once NotifyInUse was reported for the current
	// link and cleared when the matching close is reported.
	audioClaimed bool

	// events is handed to the controller. It points back at the session
	// unless an Agent has taken ownership.
	events LinkEvents
	setup  *perfmonitor.PerformanceMonitor
}

// NewSession creates a session in StateShutdown with no link allocated.
//
// Parameters:
//   - opts: Collaborators and peer information
//
// Returns:
//   - The new Session
//   - ErrNoController or ErrNoSignaling when a required collaborator is missing
func NewSession(opts Options) (*Session, error) {
	if opts.Controller == nil {
		return nil, ErrNoController
	}
	if opts.Signaling == nil {
		return nil, ErrNoSignaling
	}

	s := &Session{
		peer:               opts.Peer,
		profile:            opts.Profile,
		ctrl:               opts.Controller,
		slc:                opts.Signaling,
		arbiter:            opts.Arbiter,
		onAudio:            opts.OnAudio,
		codec:              opts.Codec,
		peerSupportsESCO15: SupportsESCO(opts.PeerVersion),
		handle:             InvalidHandle,
		state:              StateShutdown,
		setup:              perfmonitor.NewPerformanceMonitor(),
	}

	if s.profile == 0 {
		s.profile = ProfileHandsFree
	}
	if s.codec == 0 {
		s.codec = CodecCVSD
	}
	if s.arbiter == nil {
		s.arbiter = nopArbiter{}
	}

	log := opts.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}
	s.log = log.With(logger.Field{Key: "peer", Value: opts.Peer.String()})
	s.events = directEvents{s}

	return s, nil
}

// Peer returns the remote device address.
func (s *Session) Peer() bdaddr.Address { return s.peer }

// State returns the current state.
func (s *Session) State() State { return s.state }

// Handle returns the allocated link handle, or InvalidHandle.
func (s *Session) Handle() LinkHandle { return s.handle }

// Snapshot returns a copy of the session's attributes.
func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		Peer:                      s.peer,
		Handle:                    s.handle,
		State:                     s.state,
		Codec:                     s.codec,
		PeerSupportsESCO15:        s.peerSupportsESCO15,
		RetryWithSCOOnly:          s.retryWithSCOOnly,
		ServiceLevelConnected:     s.slc.ServiceLevelConnected(),
		CloseRequestedBySignaling: s.closeRequestedBySignaling,
	}
}

// SetCodec records the codec the signaling layer agreed with the peer. It
// applies to the next link.
func (s *Session) SetCodec(c Codec) {
	if c == s.codec {
		return
	}

	s.log.Debug("codec changed",
		logger.Field{Key: "from", Value: s.codec.String()},
		logger.Field{Key: "to", Value: c.String()},
	)
	s.codec = c
}

// SetPeerVersion updates the peer's Hands-Free profile version, e.g. once
// service discovery completes.
func (s *Session) SetPeerVersion(v uint16) {
	s.peerSupportsESCO15 = SupportsESCO(v)
}

// Reset returns the session to its initial attributes. It issues no
// controller command.
func (s *Session) Reset() {
	s.state = StateShutdown
	s.handle = InvalidHandle
	s.retryWithSCOOnly = false
	s.closeRequestedBySignaling = false
	s.audioClaimed = false
	s.setup.Reset()
}

// Listen allocates a passive link so the peer can connect audio.
func (s *Session) Listen() {
	s.dispatch(EventListen)
}

// Open originates an audio link to the peer, replacing the passive link.
func (s *Session) Open() {
	s.dispatch(EventOpenReq)
}

// Close tears the audio link down. It does nothing if no link is allocated.
func (s *Session) Close() {
	if !s.handle.Valid() {
		return
	}

	s.dispatch(EventCloseReq)
}

// Shutdown removes any listening or open link and stops listening.
func (s *Session) Shutdown() {
	s.dispatch(EventShutdownReq)
}

// SignalingClose is called when the signaling layer is closing. If audio is
// open the signaling close is deferred until the link is down, otherwise the
// signaling layer is told to proceed right away. The link controller shuts
// down in both cases.
func (s *Session) SignalingClose() {
	if s.state == StateOpen {
		s.closeRequestedBySignaling = true
	} else {
		s.slc.RequestClose()
	}

	s.Shutdown()
}

// ConnOpen handles the controller reporting link h as up.
func (s *Session) ConnOpen(h LinkHandle) {
	if h != s.handle || !s.slc.ServiceLevelConnected() {
		s.log.Warn("removing unexpected link",
			logger.Field{Key: "handle", Value: h.String()},
			logger.Field{Key: "expected", Value: s.handle.String()},
		)
		if _, err := s.ctrl.RemoveLink(h); err != nil && !errors.Is(err, ErrUnknownLink) {
			s.log.Error("remove unexpected link failed", logger.Field{Key: "error", Value: err.Error()})
		}
		return
	}

	s.arbiter.NotifyOpen(s.profile, s.peer)

	s.setup.Stop()
	s.log.Info("audio link open",
		logger.Field{Key: "handle", Value: h.String()},
		logger.Field{Key: "codec", Value: s.codec.String()},
		logger.Field{Key: "setup_ms", Value: s.setup.ElapsedMilliseconds()},
	)
	s.setup.Reset()

	s.notify(AudioEvent{Kind: AudioOpened, Peer: s.peer, Codec: s.codec})
	s.retryWithSCOOnly = false

	// Dispatch last: a link removed at once while shutting down reports
	// its close from inside the transition.
	s.dispatch(EventConnOpened)
}

// ConnClose handles the controller reporting link h as down.
func (s *Session) ConnClose(h LinkHandle) {
	if h != s.handle {
		s.log.Warn("close for unknown link ignored",
			logger.Field{Key: "handle", Value: h.String()},
			logger.Field{Key: "expected", Value: s.handle.String()},
		)
		return
	}

	s.handle = InvalidHandle

	// The basic SCO origination clears the retry flag itself. On the other
	// path it is cleared before the transition, which may originate anew.
	if s.retryWithSCOOnly && s.slc.ServiceLevelConnected() && s.originating() {
		s.log.Info("eSCO attempt failed, retrying with basic SCO")
		s.createLink(true)
		return
	}

	s.retryWithSCOOnly = false
	s.endAudio()
	s.dispatch(EventConnClosed)
}

// ConnectionRequest answers the peer's request to connect to passive link h.
func (s *Session) ConnectionRequest(h LinkHandle, linkType LinkType) {
	if h != s.handle || !s.slc.ServiceLevelConnected() {
		s.log.Warn("rejecting connection request: no matching session",
			logger.Field{Key: "handle", Value: h.String()},
			logger.Field{Key: "link_type", Value: linkType.String()},
		)
		s.respond(h, HCIStatusHostRejectResources, Params{})
		return
	}

	if s.state != StateListening {
		s.log.Warn("rejecting connection request: not listening",
			logger.Field{Key: "state", Value: s.state.String()},
			logger.Field{Key: "link_type", Value: linkType.String()},
		)
		s.respond(h, HCIStatusHostRejectDevice, Params{})
		return
	}

	s.claimAudio()
	if !s.respond(h, HCIStatusSuccess, responseParams(linkType, s.codec)) {
		s.audioClaimed = false
		s.arbiter.NotifyReleased(s.profile, s.peer)
		return
	}

	s.setup.Start()
	s.setState(StateOpening, "ConnectionRequest")
}

// originating reports whether an outgoing attempt is in flight.
func (s *Session) originating() bool {
	return s.state == StateOpening || s.state == StateOpenPendingClose
}

// createLink asks the controller for a new link, passive or outgoing.
func (s *Session) createLink(originate bool) {
	if s.handle.Valid() {
		s.log.Warn(ErrLinkInUse.Error(), logger.Field{Key: "handle", Value: s.handle.String()})
		return
	}

	packetTypes := ParamsESCOCVSD.PacketTypes
	if originate {
		if s.retryWithSCOOnly {
			s.log.Info("retrying with basic SCO only")
		}

		plan := planOrigination(s.peerSupportsESCO15, s.retryWithSCOOnly, s.codec)
		if err := s.ctrl.SetLinkModeParameters(plan.linkType, plan.params); err != nil {
			s.log.Error("set link mode parameters failed",
				logger.Field{Key: "link_type", Value: plan.linkType.String()},
				logger.Field{Key: "error", Value: err.Error()},
			)
		}

		s.retryWithSCOOnly = plan.retry
		packetTypes = plan.params.PacketTypes

		s.claimAudio()
		s.setup.Start()
	} else {
		s.retryWithSCOOnly = false
	}

	h, err := s.ctrl.CreateLink(s.peer, originate, packetTypes, s.events)
	if err != nil {
		s.log.Error("create link rejected",
			logger.Field{Key: "originate", Value: originate},
			logger.Field{Key: "error", Value: err.Error()},
		)
		return
	}
	s.handle = h

	if !originate {
		if err := s.ctrl.RegisterConnectionRequestHandler(h, s.events.ConnectionRequest); err != nil {
			s.log.Error("register connection request handler failed",
				logger.Field{Key: "handle", Value: h.String()},
				logger.Field{Key: "error", Value: err.Error()},
			)
		}
	}

	s.log.Debug("link created",
		logger.Field{Key: "handle", Value: h.String()},
		logger.Field{Key: "originate", Value: originate},
		logger.Field{Key: "packet_types", Value: uint16(packetTypes)},
		logger.Field{Key: "retry_with_sco_only", Value: s.retryWithSCOOnly},
	)
}

// claimAudio tells the arbiter a link is being set up.
func (s *Session) claimAudio() {
	s.audioClaimed = true
	s.arbiter.NotifyInUse(s.profile, s.peer)
}

// endAudio reports the end of a claimed link to the arbiter and the
// application, and completes a close the signaling layer is waiting on.
func (s *Session) endAudio() {
	if s.audioClaimed {
		s.audioClaimed = false
		s.arbiter.NotifyClose(s.profile, s.peer)
		s.arbiter.NotifyReleased(s.profile, s.peer)
		s.setup.Reset()
		s.notify(AudioEvent{Kind: AudioClosed, Peer: s.peer})
	}

	if s.closeRequestedBySignaling {
		s.closeRequestedBySignaling = false
		s.slc.RequestClose()
	}
}

// removeLink asks the controller to remove the current link and reports
// whether a LinkClosed callback is now expected.
func (s *Session) removeLink() bool {
	if !s.handle.Valid() {
		return false
	}

	pending, err := s.ctrl.RemoveLink(s.handle)
	switch {
	case err == nil && pending:
		return true
	case err == nil, errors.Is(err, ErrUnknownLink):
		s.log.Debug("link released", logger.Field{Key: "handle", Value: s.handle.String()})
		s.handle = InvalidHandle
	default:
		s.log.Error("remove link rejected",
			logger.Field{Key: "handle", Value: s.handle.String()},
			logger.Field{Key: "error", Value: err.Error()},
		)
	}

	return false
}

// respond answers a connection request and reports whether the controller
// accepted the command.
func (s *Session) respond(h LinkHandle, status HCIStatus, params Params) bool {
	if err := s.ctrl.RespondConnectionRequest(h, status, params); err != nil {
		s.log.Error("connection response rejected",
			logger.Field{Key: "handle", Value: h.String()},
			logger.Field{Key: "status", Value: status.String()},
			logger.Field{Key: "error", Value: err.Error()},
		)
		return false
	}

	return true
}

func (s *Session) setState(next State, cause string) {
	if next == s.state {
		return
	}

	s.log.Debug("state changed",
		logger.Field{Key: "from", Value: s.state.String()},
		logger.Field{Key: "to", Value: next.String()},
		logger.Field{Key: "cause", Value: cause},
	)
	s.state = next
}

func (s *Session) notify(ev AudioEvent) {
	if s.onAudio != nil {
		s.onAudio(ev)
	}
}

// directEvents delivers controller callbacks straight into the session. It
// is only correct when the controller calls back on the session's goroutine.
type directEvents struct{ s *Session }

func (d directEvents) LinkOpened(h LinkHandle) { d.s.ConnOpen(h) }
func (d directEvents) LinkClosed(h LinkHandle) { d.s.ConnClose(h) }
func (d directEvents) ConnectionRequest(h LinkHandle, linkType LinkType) {
	d.s.ConnectionRequest(h, linkType)
}
