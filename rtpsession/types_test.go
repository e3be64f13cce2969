package rtpsession

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDirectionString(t *testing.T) {
	cases := map[Direction]string{
		DirectionSendRecv: "sendrecv",
		DirectionSendOnly: "sendonly",
		DirectionRecvOnly: "recvonly",
		DirectionInactive: "inactive",
	}
	for dir, want := range cases {
		assert.Equal(t, want, dir.String())
	}
}

func TestDirectionCanSendCanReceive(t *testing.T) {
	assert.True(t, DirectionSendRecv.CanSend())
	assert.True(t, DirectionSendRecv.CanReceive())
	assert.True(t, DirectionSendOnly.CanSend())
	assert.False(t, DirectionSendOnly.CanReceive())
	assert.True(t, DirectionRecvOnly.CanReceive())
	assert.False(t, DirectionRecvOnly.CanSend())
	assert.False(t, DirectionInactive.CanSend())
	assert.False(t, DirectionInactive.CanReceive())
}

func TestProfileString(t *testing.T) {
	assert.Equal(t, "AVP", ProfileAVP.String())
	assert.Equal(t, "AVPF", ProfileAVPF.String())
}

func TestErrorKindString(t *testing.T) {
	assert.Equal(t, "malformed_packet", ErrMalformedPacket.String())
	assert.Equal(t, "expired_rtx", ErrExpiredRtx.String())
	assert.Equal(t, "session_shutting_down", ErrSessionShuttingDown.String())
}

func TestSessionErrorIsBySentinel(t *testing.T) {
	err := newErr(ErrExpiredRtx, "TestOp", nil)
	assert.ErrorIs(t, err, ErrExpiredRtxSentinel)
	assert.NotErrorIs(t, err, ErrMalformedPacketSentinel)
}
