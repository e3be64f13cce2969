package rtpsession

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeConfigOptionsAndApply(t *testing.T) {
	raw := map[string]any{
		"profile":      "AVPF",
		"rtcp_mux":     true,
		"mprtp_enabled": false,
		"rtx": map[string]any{
			"mode":                 "nack_timed",
			"window_ms":            3000,
			"payload_type":         97,
			"primary_payload_type": 96,
		},
		"packetisation_mode": "non_interleaved",
		"extension_ids": map[string]any{
			"urn:ietf:params:rtp-hdrext:toffset": 1,
		},
	}

	opts, err := DecodeConfigOptions(raw)
	require.NoError(t, err)
	assert.Equal(t, "AVPF", opts.Profile)
	assert.Equal(t, "nack_timed", opts.RTX.Mode)
	assert.EqualValues(t, 3000, opts.RTX.WindowMs)

	base := DefaultSessionParameters()
	merged, err := opts.ApplyTo(base)
	require.NoError(t, err)
	assert.Equal(t, ProfileAVPF, merged.Profile)
	assert.True(t, merged.RTCPMux)
	require.NotNil(t, merged.RTX)
	assert.Equal(t, RTXNackTimed, merged.RTX.Mode)
	assert.Equal(t, uint32(3000), merged.RTX.WindowMillis)
	assert.Equal(t, "urn:ietf:params:rtp-hdrext:toffset", merged.ExtensionMap[1])
}

func TestConfigOptionsRTXDisabledClearsRTX(t *testing.T) {
	opts := &ConfigOptions{Profile: "AVP", RTX: RTXConfigOption{Mode: "disabled"}}
	base := DefaultSessionParameters()
	base.RTX = &RTXInfo{PayloadType: 97, PrimaryPT: 96, Mode: RTXCircular}

	merged, err := opts.ApplyTo(base)
	require.NoError(t, err)
	assert.False(t, merged.RTXEnabled)
	assert.Nil(t, merged.RTX)
}

func TestConfigOptionsRejectsUnknownProfile(t *testing.T) {
	opts := &ConfigOptions{Profile: "bogus"}
	_, err := opts.ApplyTo(DefaultSessionParameters())
	assert.Error(t, err)
}
