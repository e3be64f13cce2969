package rtpsession

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validParams() SessionParameters {
	p := DefaultSessionParameters()
	p.LocalSDES.CNAME = "tester@example.com"
	p.PayloadTable = map[uint8]PayloadInfo{96: {EncodingName: "H264", ClockRate: 90000}}
	p.CurrentPayloadType = 96
	p.Endpoints = []EndpointPair{{LocalRTP: "127.0.0.1:5000", RemoteRTP: "127.0.0.1:6000"}}
	return p
}

func TestNewSessionParametersGeneratesCNAME(t *testing.T) {
	p := validParams()
	p.LocalSDES.CNAME = ""
	sp, err := NewSessionParameters(p)
	require.NoError(t, err)
	assert.NotEmpty(t, sp.LocalSDES.CNAME)
}

func TestValidateRejectsMissingEndpoint(t *testing.T) {
	p := validParams()
	p.Endpoints = nil
	assert.Error(t, p.Validate())
}

func TestValidateRejectsMultipleEndpointsWithoutMPRTP(t *testing.T) {
	p := validParams()
	p.Endpoints = append(p.Endpoints, EndpointPair{LocalRTP: "127.0.0.1:5002"})
	assert.Error(t, p.Validate())

	p.MPRTPEnabled = true
	assert.NoError(t, p.Validate())
}

func TestValidateRejectsUnknownCurrentPayloadType(t *testing.T) {
	p := validParams()
	p.CurrentPayloadType = 111
	assert.Error(t, p.Validate())
}

func TestValidateRejectsRTXSamePayloadType(t *testing.T) {
	p := validParams()
	p.RTX = &RTXInfo{PayloadType: 96, PrimaryPT: 96, Mode: RTXCircular}
	assert.Error(t, p.Validate())
}

func TestValidateRejectsOutOfRangeExtensionID(t *testing.T) {
	p := validParams()
	p.ExtensionMap = map[uint8]string{1: "urn:a", 2: "urn:b"}
	assert.NoError(t, p.Validate())

	p.ExtensionMap = map[uint8]string{0: "urn:reserved"}
	assert.Error(t, p.Validate())

	p.ExtensionMap = map[uint8]string{20: "urn:toolarge"}
	assert.Error(t, p.Validate())
}
