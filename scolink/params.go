package scolink

// PacketType is the HCI synchronous packet-type bit mask. The EV3..EV5 bits
// permit eSCO packet types; the NoEDR* bits forbid the corresponding
// enhanced-data-rate packet types.
type PacketType uint16

const (
	PacketHV1    PacketType = 0x0001
	PacketHV2    PacketType = 0x0002
	PacketHV3    PacketType = 0x0004
	PacketEV3    PacketType = 0x0008
	PacketEV4    PacketType = 0x0010
	PacketEV5    PacketType = 0x0020
	PacketNo2EV3 PacketType = 0x0040
	PacketNo3EV3 PacketType = 0x0080
	PacketNo2EV5 PacketType = 0x0100
	PacketNo3EV5 PacketType = 0x0200

	SCOLinkOnlyMask  = PacketHV1 | PacketHV2 | PacketHV3
	ESCOLinkOnlyMask = PacketEV3 | PacketEV4 | PacketEV5
	SCOLinkAllMask   = SCOLinkOnlyMask | ESCOLinkOnlyMask
	NoEDRESCOMask    = PacketNo2EV3 | PacketNo3EV3 | PacketNo2EV5 | PacketNo3EV5
)

// needsSCOFallback reports whether an eSCO attempt with this mask should be
// followed by a basic SCO attempt if it fails.
func (p PacketType) needsSCOFallback() bool {
	return p&ESCOLinkOnlyMask != 0 || p&^(ESCOLinkOnlyMask|SCOLinkOnlyMask) == NoEDRESCOMask
}

// Voice settings (HCI Write_Voice_Setting encoding).
const (
	VoiceSettingCVSD        uint16 = 0x0060
	VoiceSettingTransparent uint16 = 0x0063
)

// Retransmission effort values.
const (
	RetransNone    uint8 = 0x00
	RetransPower   uint8 = 0x01
	RetransQuality uint8 = 0x02
)

// Bandwidth64kbit is 64 kbit/s expressed in octets per second.
const Bandwidth64kbit uint32 = 8000

// Params is one synchronous connection parameter profile.
type Params struct {
	RxBandwidth  uint32
	TxBandwidth  uint32
	MaxLatency   uint16 // milliseconds
	VoiceSetting uint16
	PacketTypes  PacketType
	Retrans      uint8
}

var (
	// ParamsSCOCVSD is the basic SCO profile used for pre-1.5 peers and for
	// the fallback after a failed eSCO attempt.
	ParamsSCOCVSD = Params{
		RxBandwidth:  Bandwidth64kbit,
		TxBandwidth:  Bandwidth64kbit,
		MaxLatency:   10,
		VoiceSetting: VoiceSettingCVSD,
		PacketTypes:  SCOLinkOnlyMask | NoEDRESCOMask,
		Retrans:      RetransPower,
	}

	// ParamsESCOCVSD allows every packet type except 5-slot EDR.
	ParamsESCOCVSD = Params{
		RxBandwidth:  Bandwidth64kbit,
		TxBandwidth:  Bandwidth64kbit,
		MaxLatency:   10,
		VoiceSetting: VoiceSettingCVSD,
		PacketTypes:  SCOLinkAllMask | PacketNo2EV5 | PacketNo3EV5,
		Retrans:      RetransPower,
	}

	// ParamsESCOMSBC carries wideband speech over EV3 or 2-EV3 packets.
	ParamsESCOMSBC = Params{
		RxBandwidth:  Bandwidth64kbit,
		TxBandwidth:  Bandwidth64kbit,
		MaxLatency:   13,
		VoiceSetting: VoiceSettingTransparent,
		PacketTypes:  PacketEV3 | PacketNo3EV3 | PacketNo2EV5 | PacketNo3EV5,
		Retrans:      RetransQuality,
	}
)

// ESCOParamsFor returns the eSCO profile matching a negotiated codec.
// Unknown codecs fall back to narrowband.
func ESCOParamsFor(c Codec) Params {
	if c == CodecMSBC {
		return ParamsESCOMSBC
	}

	return ParamsESCOCVSD
}

// responseParams picks the parameters used to accept an incoming request.
func responseParams(linkType LinkType, c Codec) Params {
	if linkType == LinkTypeSCO {
		return ParamsSCOCVSD
	}

	return ESCOParamsFor(c)
}

// originationPlan describes how the next outgoing link will be requested.
type originationPlan struct {
	linkType LinkType
	params   Params
	// retry is the value the session's fallback flag takes after this attempt.
	retry bool
}

// planOrigination applies the parameter-selection policy for an outgoing link.
func planOrigination(peerSupportsESCO, retryWithSCOOnly bool, c Codec) originationPlan {
	if !peerSupportsESCO || retryWithSCOOnly {
		return originationPlan{linkType: LinkTypeSCO, params: ParamsSCOCVSD}
	}

	params := ESCOParamsFor(c)
	return originationPlan{
		linkType: LinkTypeESCO,
		params:   params,
		retry:    params.PacketTypes.needsSCOFallback(),
	}
}
