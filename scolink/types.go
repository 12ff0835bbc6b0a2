package scolink

import (
	"fmt"
	"strings"
)

// LinkHandle identifies a SCO/eSCO link allocated by the controller.
type LinkHandle uint16

// InvalidHandle marks a session that has no link allocated.
const InvalidHandle LinkHandle = 0xFFFF

// Valid reports whether h refers to an allocated link.
func (h LinkHandle) Valid() bool {
	return h != InvalidHandle
}

// String implements fmt.Stringer.
func (h LinkHandle) String() string {
	if !h.Valid() {
		return "invalid"
	}

	return fmt.Sprintf("0x%04x", uint16(h))
}

// LinkType is the HCI link type of a synchronous connection.
type LinkType uint8

const (
	LinkTypeSCO  LinkType = 0x00
	LinkTypeESCO LinkType = 0x02
)

// String implements fmt.Stringer.
func (t LinkType) String() string {
	switch t {
	case LinkTypeSCO:
		return "SCO"
	case LinkTypeESCO:
		return "eSCO"
	default:
		return fmt.Sprintf("LinkType(%d)", uint8(t))
	}
}

// HCIStatus is the status code sent back when answering a connection request.
type HCIStatus uint8

const (
	HCIStatusSuccess             HCIStatus = 0x00
	HCIStatusHostRejectResources HCIStatus = 0x0D
	HCIStatusHostRejectDevice    HCIStatus = 0x0F
)

// String implements fmt.Stringer.
func (s HCIStatus) String() string {
	switch s {
	case HCIStatusSuccess:
		return "success"
	case HCIStatusHostRejectResources:
		return "host-reject-resources"
	case HCIStatusHostRejectDevice:
		return "host-reject-device"
	default:
		return fmt.Sprintf("HCIStatus(0x%02x)", uint8(s))
	}
}

// Codec is the voice codec agreed with the peer over the signaling channel.
type Codec uint8

const (
	CodecCVSD Codec = 1 // narrowband
	CodecMSBC Codec = 2 // wideband
)

// String implements fmt.Stringer.
func (c Codec) String() string {
	switch c {
	case CodecCVSD:
		return "CVSD"
	case CodecMSBC:
		return "mSBC"
	default:
		return fmt.Sprintf("Codec(%d)", uint8(c))
	}
}

// ParseCodec maps "cvsd"/"narrowband" and "msbc"/"wideband", in any case, to a Codec.
func ParseCodec(s string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cvsd", "narrowband":
		return CodecCVSD, nil
	case "msbc", "wideband":
		return CodecMSBC, nil
	}

	return 0, fmt.Errorf("%w: %q", ErrUnknownCodec, s)
}

// ProfileID identifies the profile that claims the audio hardware when
// notifying the system audio arbiter.
type ProfileID uint8

// ProfileHandsFree is the Hands-Free client profile.
const ProfileHandsFree ProfileID = 0x05

// HFPVersion15 is the first Hands-Free profile version that supports eSCO.
const HFPVersion15 uint16 = 0x0105

// SupportsESCO reports whether a peer advertising the given Hands-Free
// profile version may be offered an eSCO link.
func SupportsESCO(peerVersion uint16) bool {
	return peerVersion >= HFPVersion15
}
