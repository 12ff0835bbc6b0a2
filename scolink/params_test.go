package scolink

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPacketType_NeedsSCOFallback(t *testing.T) {
	tests := []struct {
		name string
		mask PacketType
		want bool
	}{
		{"eSCO packet types", PacketEV3, true},
		{"exact no-EDR subset", NoEDRESCOMask, true},
		{"no-EDR subset with SCO types", NoEDRESCOMask | SCOLinkOnlyMask, true},
		{"SCO only", SCOLinkOnlyMask, false},
		{"partial no-EDR subset", PacketNo2EV3 | PacketHV3, false},
		{"empty", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.mask.needsSCOFallback())
		})
	}
}

func TestParamsTables(t *testing.T) {
	assert.Zero(t, ParamsSCOCVSD.PacketTypes&ESCOLinkOnlyMask, "basic SCO must not allow eSCO packets")
	assert.Equal(t, SCOLinkOnlyMask, ParamsSCOCVSD.PacketTypes&SCOLinkOnlyMask)
	assert.Equal(t, VoiceSettingCVSD, ParamsESCOCVSD.VoiceSetting)
	assert.Equal(t, VoiceSettingTransparent, ParamsESCOMSBC.VoiceSetting)
	assert.Equal(t, RetransQuality, ParamsESCOMSBC.Retrans)
	assert.Greater(t, ParamsESCOMSBC.MaxLatency, ParamsESCOCVSD.MaxLatency)
}

func TestESCOParamsFor(t *testing.T) {
	assert.Equal(t, ParamsESCOCVSD, ESCOParamsFor(CodecCVSD))
	assert.Equal(t, ParamsESCOMSBC, ESCOParamsFor(CodecMSBC))
	assert.Equal(t, ParamsESCOCVSD, ESCOParamsFor(Codec(9)))
}

func TestResponseParams(t *testing.T) {
	assert.Equal(t, ParamsSCOCVSD, responseParams(LinkTypeSCO, CodecMSBC))
	assert.Equal(t, ParamsESCOMSBC, responseParams(LinkTypeESCO, CodecMSBC))
	assert.Equal(t, ParamsESCOCVSD, responseParams(LinkTypeESCO, CodecCVSD))
}

func TestPlanOrigination(t *testing.T) {
	tests := []struct {
		name     string
		esco     bool
		retry    bool
		codec    Codec
		linkType LinkType
		params   Params
		setRetry bool
	}{
		{"peer without eSCO", false, false, CodecMSBC, LinkTypeSCO, ParamsSCOCVSD, false},
		{"retry flag forces SCO", true, true, CodecMSBC, LinkTypeSCO, ParamsSCOCVSD, false},
		{"narrowband eSCO", true, false, CodecCVSD, LinkTypeESCO, ParamsESCOCVSD, true},
		{"wideband eSCO", true, false, CodecMSBC, LinkTypeESCO, ParamsESCOMSBC, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := planOrigination(tt.esco, tt.retry, tt.codec)
			assert.Equal(t, tt.linkType, plan.linkType)
			assert.Equal(t, tt.params, plan.params)
			assert.Equal(t, tt.setRetry, plan.retry)
		})
	}
}
