package scolink

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinkHandle(t *testing.T) {
	assert.False(t, InvalidHandle.Valid())
	assert.Equal(t, "invalid", InvalidHandle.String())
	assert.True(t, LinkHandle(0x0080).Valid())
	assert.Equal(t, "0x0080", LinkHandle(0x0080).String())
}

func TestParseCodec(t *testing.T) {
	tests := []struct {
		in   string
		want Codec
	}{
		{"cvsd", CodecCVSD},
		{"CVSD", CodecCVSD},
		{" narrowband ", CodecCVSD},
		{"mSBC", CodecMSBC},
		{"wideband", CodecMSBC},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			c, err := ParseCodec(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, c)
		})
	}

	t.Run("unknown", func(t *testing.T) {
		_, err := ParseCodec("lc3")
		assert.ErrorIs(t, err, ErrUnknownCodec)
	})
}

func TestSupportsESCO(t *testing.T) {
	assert.False(t, SupportsESCO(0))
	assert.False(t, SupportsESCO(0x0104))
	assert.True(t, SupportsESCO(HFPVersion15))
	assert.True(t, SupportsESCO(0x0108))
}

func TestStringers(t *testing.T) {
	assert.Equal(t, "eSCO", LinkTypeESCO.String())
	assert.Equal(t, "host-reject-device", HCIStatusHostRejectDevice.String())
	assert.Equal(t, "mSBC", CodecMSBC.String())
	assert.Equal(t, "AudioClosed", AudioClosed.String())
	assert.Equal(t, "ConnectionRequest", OpConnectionRequest.String())
}
