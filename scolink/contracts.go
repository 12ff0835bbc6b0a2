package scolink

import "github.com/cyberinferno/go-hfsco/bdaddr"

// LinkEvents receives the asynchronous notifications a Controller produces
// for a link. Controllers may call these methods from any goroutine; the
// Agent marshals them onto its event loop.
type LinkEvents interface {
	// LinkOpened is called once the link identified by h is physically up.
	LinkOpened(h LinkHandle)

	// LinkClosed is called when the link identified by h went down or could
	// not be established.
	LinkClosed(h LinkHandle)

	// ConnectionRequest is called when the peer asks to connect to the
	// passive link h with the given link type.
	ConnectionRequest(h LinkHandle, linkType LinkType)
}

// ConnectionRequestHandler is registered on a passive link to receive
// inbound connection requests.
type ConnectionRequestHandler func(h LinkHandle, linkType LinkType)

// Controller is the link-manager surface of the radio controller.
// Every method returns immediately; outcomes arrive later through LinkEvents.
type Controller interface {
	// CreateLink allocates a link. With originate set the controller starts
	// connecting to peer, otherwise the link only accepts incoming requests.
	//
	// Parameters:
	//   - peer: Remote device
	//   - originate: true for an outgoing link, false for a passive one
	//   - packetTypes: Allowed packet types
	//   - events: Receiver of the link's open/close notifications
	//
	// Returns:
	//   - The handle assigned to the link
	//   - An error if the controller refused the command
	CreateLink(peer bdaddr.Address, originate bool, packetTypes PacketType, events LinkEvents) (LinkHandle, error)

	// RemoveLink removes a link. pending is true when the removal was started
	// and LinkClosed will follow; false with a nil error means the link was
	// released immediately (for example a passive link with no connection).
	// ErrUnknownLink means the handle is already gone.
	RemoveLink(h LinkHandle) (pending bool, err error)

	// SetLinkModeParameters sets the default parameters used for the next
	// link of the given type.
	SetLinkModeParameters(linkType LinkType, params Params) error

	// RegisterConnectionRequestHandler routes connection requests for the
	// passive link h to handler.
	RegisterConnectionRequestHandler(h LinkHandle, handler ConnectionRequestHandler) error

	// RespondConnectionRequest answers a connection request. params is only
	// meaningful when status is HCIStatusSuccess.
	RespondConnectionRequest(h LinkHandle, status HCIStatus, params Params) error
}

// AudioArbiter tells the rest of the system that the radio is (or no longer
// is) carrying a voice link, so streaming profiles can back off.
type AudioArbiter interface {
	NotifyInUse(profile ProfileID, peer bdaddr.Address)
	NotifyOpen(profile ProfileID, peer bdaddr.Address)
	NotifyClose(profile ProfileID, peer bdaddr.Address)
	NotifyReleased(profile ProfileID, peer bdaddr.Address)
}

// Signaling is the part of the service-level connection the link controller
// depends on.
type Signaling interface {
	// ServiceLevelConnected reports whether the SLC is up.
	ServiceLevelConnected() bool

	// RequestClose asks the signaling layer to finish closing itself once the
	// audio link it was waiting on is down.
	RequestClose()
}

// AudioEventKind distinguishes application audio notifications.
type AudioEventKind int

const (
	AudioOpened AudioEventKind = iota
	AudioClosed
)

// String implements fmt.Stringer.
func (k AudioEventKind) String() string {
	switch k {
	case AudioOpened:
		return "AudioOpened"
	case AudioClosed:
		return "AudioClosed"
	default:
		return "Unknown"
	}
}

// AudioEvent is delivered to the application when the audio link opens or
// closes. Codec is set on AudioOpened only.
type AudioEvent struct {
	Kind  AudioEventKind
	Peer  bdaddr.Address
	Codec Codec
}

// AudioHandler receives application audio notifications. It is invoked on
// the goroutine driving the session and must not block.
type AudioHandler func(event AudioEvent)

type nopArbiter struct{}

func (nopArbiter) NotifyInUse(ProfileID, bdaddr.Address)    {}
func (nopArbiter) NotifyOpen(ProfileID, bdaddr.Address)     {}
func (nopArbiter) NotifyClose(ProfileID, bdaddr.Address)    {}
func (nopArbiter) NotifyReleased(ProfileID, bdaddr.Address) {}
