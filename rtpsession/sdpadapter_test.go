package rtpsession

import (
	"testing"

	"github.com/pion/sdp/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTestSDP() *sdp.SessionDescription {
	return &sdp.SessionDescription{
		MediaDescriptions: []*sdp.MediaDescription{
			{
				MediaName: sdp.MediaName{Media: "video", Formats: []string{"96"}},
				Attributes: []sdp.Attribute{
					{Key: "rtpmap", Value: "96 H264/90000"},
					{Key: "rtcp-mux", Value: ""},
					{Key: "sendonly", Value: ""},
					{Key: "extmap", Value: "1 urn:ietf:params:rtp-hdrext:toffset"},
					{Key: "ssrc", Value: "12345 cname:alice@example.com"},
				},
			},
		},
	}
}

func TestParamsFromSDP(t *testing.T) {
	local := EndpointPair{LocalRTP: "127.0.0.1:5000", LocalRTCP: "127.0.0.1:5001"}
	p, err := ParamsFromSDP(buildTestSDP(), 0, local)
	require.NoError(t, err)

	assert.Equal(t, MediaTypeVideo, p.MediaType)
	assert.Equal(t, DirectionSendOnly, p.Direction)
	assert.True(t, p.RTCPMux)
	require.Contains(t, p.PayloadTable, uint8(96))
	assert.Equal(t, "H264", p.PayloadTable[96].EncodingName)
	assert.EqualValues(t, 90000, p.PayloadTable[96].ClockRate)
	assert.Equal(t, "urn:ietf:params:rtp-hdrext:toffset", p.ExtensionMap[1])
	assert.Equal(t, "alice@example.com", p.LocalSDES.CNAME)
}

func TestParamsFromSDPRejectsOutOfRangeMediaIndex(t *testing.T) {
	_, err := ParamsFromSDP(buildTestSDP(), 5, EndpointPair{})
	assert.Error(t, err)
}
