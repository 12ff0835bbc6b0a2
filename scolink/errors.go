package scolink

import "errors"

var (
	// ErrLinkInUse is logged when a create is refused because the session
	// still owns a link.
	ErrLinkInUse = errors.New("scolink: link handle already in use")

	// ErrUnknownLink is returned by a Controller when a handle does not refer
	// to any link it knows about. The session treats it as "already gone".
	ErrUnknownLink = errors.New("scolink: unknown link handle")

	// ErrAgentClosed is returned when posting to an Agent that has been closed.
	ErrAgentClosed = errors.New("scolink: agent closed")

	// ErrNoController is returned by NewSession when no Controller is supplied.
	ErrNoController = errors.New("scolink: controller is required")

	// ErrNoSignaling is returned by NewSession when no Signaling is supplied.
	ErrNoSignaling = errors.New("scolink: signaling layer is required")

	// ErrUnknownCodec is returned by ParseCodec.
	ErrUnknownCodec = errors.New("scolink: unknown codec")
)
