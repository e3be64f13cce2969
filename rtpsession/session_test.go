package rtpsession

import (
	"context"
	"testing"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(t *testing.T, configure func(*SessionParameters)) *Session {
	t.Helper()
	p := DefaultSessionParameters()
	p.LocalSDES.CNAME = "session-test@example.com"
	p.PayloadTable = map[uint8]PayloadInfo{96: {EncodingName: "H264", ClockRate: 90000}}
	p.CurrentPayloadType = 96
	p.Endpoints = []EndpointPair{{LocalRTP: "127.0.0.1:0"}}
	if configure != nil {
		configure(&p)
	}
	sp, err := NewSessionParameters(p)
	require.NoError(t, err)

	s, err := NewSession(sp, nil, nil, Callbacks{})
	require.NoError(t, err)
	return s
}

func TestSessionLifecycleStartStop(t *testing.T) {
	s := newTestSession(t, nil)
	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.isRunning())

	require.NoError(t, s.Stop())
	assert.False(t, s.isRunning())

	// Stop is idempotent.
	require.NoError(t, s.Stop())
}

func TestSessionPacketiseRejectsWhenNotRunning(t *testing.T) {
	s := newTestSession(t, nil)
	_, err := s.Packetise([][]byte{{0x01, 0x02}}, nil)
	require.Error(t, err)
	var se *SessionError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, ErrSessionShuttingDown, se.Kind)
}

func TestSessionPacketiseAndSendBuffersForRTX(t *testing.T) {
	s := newTestSession(t, func(p *SessionParameters) {
		p.RTXEnabled = true
		p.RTX = &RTXInfo{PayloadType: 97, PrimaryPT: 96, Mode: RTXCircular}
	})
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	ts := uint32(1000)
	pkts, err := s.Packetise([][]byte{{0x65, 'a', 'b', 'c'}}, &ts)
	require.NoError(t, err)
	require.Len(t, pkts, 1)

	require.NoError(t, s.Send(pkts[0], -1))
	assert.Equal(t, 1, s.rtx.Len())
}

func TestSessionOnIncomingRTPValidatesAfterProbation(t *testing.T) {
	s := newTestSession(t, nil)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	var received []Arrival
	s.callbacks.OnRTP = func(a Arrival) { received = append(received, a) }

	mkPkt := func(seq uint16) *rtp.Packet {
		return &rtp.Packet{Header: rtp.Header{PayloadType: 96, SequenceNumber: seq, Timestamp: 0, SSRC: 0xBEEF}, Payload: []byte{0x01}}
	}
	s.onIncomingRTP(mkPkt(10), nil)
	s.onIncomingRTP(mkPkt(11), nil)
	s.onIncomingRTP(mkPkt(12), nil)

	require.Len(t, received, 3)
	assert.False(t, received[0].SSRCValidated, "invalid after the first packet")
	assert.True(t, received[1].SSRCValidated, "valid on the second strictly-consecutive packet")
	assert.True(t, received[2].SSRCValidated)
}

func TestSessionOnIncomingRTPUnknownPayloadCallback(t *testing.T) {
	s := newTestSession(t, nil)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	var unknown *rtp.Packet
	s.callbacks.OnUnknownPayload = func(p *rtp.Packet) { unknown = p }

	pkt := &rtp.Packet{Header: rtp.Header{PayloadType: 111, SequenceNumber: 1, SSRC: 0x1}, Payload: []byte{0x01}}
	s.onIncomingRTP(pkt, nil)
	require.NotNil(t, unknown)
	assert.Equal(t, uint8(111), unknown.PayloadType)
}

func TestSessionOnIncomingRTCPDispatchesNack(t *testing.T) {
	s := newTestSession(t, func(p *SessionParameters) {
		p.RTXEnabled = true
		p.RTX = &RTXInfo{PayloadType: 97, PrimaryPT: 96, Mode: RTXCircular}
	})
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	ts := uint32(500)
	pkts, err := s.Packetise([][]byte{{0x65, 'x'}}, &ts)
	require.NoError(t, err)
	require.NoError(t, s.Send(pkts[0], -1))

	var seenRTCP bool
	s.callbacks.OnRTCP = func(_ []rtcp.Packet, _ RTCPArrival) { seenRTCP = true }

	nack := &rtcp.TransportLayerNack{
		MediaSSRC: s.state.SSRC(),
		Nacks:     []rtcp.NackPair{{PacketID: pkts[0].SequenceNumber, LostPackets: 0}},
	}
	s.onIncomingRTCP([]rtcp.Packet{nack}, 64)

	assert.True(t, seenRTCP)
	// The retransmission buffer entry is still there (RTXCircular never
	// evicts on NACK), confirming the NACK path ran without error.
	assert.Equal(t, 1, s.rtx.Len())
}

func TestSessionOnIncomingRTCPReceptionReportDrivesAckDrivenEviction(t *testing.T) {
	s := newTestSession(t, func(p *SessionParameters) {
		p.RTXEnabled = true
		p.RTX = &RTXInfo{PayloadType: 97, PrimaryPT: 96, Mode: RTXAckDriven}
	})
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	ts := uint32(500)
	pkts, err := s.Packetise([][]byte{{0x65, 'x'}}, &ts)
	require.NoError(t, err)
	require.NoError(t, s.Send(pkts[0], -1))
	require.Equal(t, 1, s.rtx.Len())

	rr := &rtcp.ReceiverReport{
		SSRC: 0xBEEF,
		Reports: []rtcp.ReceptionReport{{
			SSRC:               s.state.SSRC(),
			LastSequenceNumber: uint32(pkts[0].SequenceNumber),
		}},
	}
	s.onIncomingRTCP([]rtcp.Packet{rr}, 32)

	assert.Equal(t, 0, s.rtx.Len(), "the reported highest sequence number acknowledges the buffered packet")
}

func TestStopAwaitsReverseReconsiderationDelayBeforeReturning(t *testing.T) {
	s := newTestSession(t, nil)
	require.NoError(t, s.Start(context.Background()))

	now := time.Now()
	for i := 0; i < 55; i++ {
		ssrc := uint32(0x2000 + i)
		s.members.ObserveRTP(&rtp.Packet{Header: rtp.Header{PayloadType: 96, SequenceNumber: 1, SSRC: ssrc}, Payload: []byte{0x1}}, 90000, now)
		s.members.ObserveRTP(&rtp.Packet{Header: rtp.Header{PayloadType: 96, SequenceNumber: 2, SSRC: ssrc}, Payload: []byte{0x1}}, 90000, now)
	}
	require.Greater(t, s.members.ActiveMemberCount()-1, ImmediateByeMemberLimit)

	delay := 150 * time.Millisecond
	s.scheduler.mu.Lock()
	s.scheduler.tp = now
	s.scheduler.tn = now.Add(delay)
	s.scheduler.pmembers = s.members.ActiveMemberCount() - 1
	s.scheduler.mu.Unlock()

	start := time.Now()
	require.NoError(t, s.Stop())
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, delay-20*time.Millisecond,
		"Stop must wait out the reverse-reconsideration delay before returning, not exit early via context cancellation")
}

func TestSessionBuildCompoundRTCPSplitsOver31Reports(t *testing.T) {
	s := newTestSession(t, nil)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	now := time.Now()
	for i := 0; i < 35; i++ {
		ssrc := uint32(0x1000 + i)
		for _, seq := range []uint16{1, 2, 3} {
			s.members.ObserveRTP(&rtp.Packet{Header: rtp.Header{PayloadType: 96, SequenceNumber: seq, SSRC: ssrc}, Payload: []byte{0x1}}, 90000, now)
		}
	}
	_, _, receivers := s.members.TakeReportData()
	require.Len(t, receivers, 35)

	compound := s.buildCompoundRTCP(false, receivers)
	var totalReports int
	var rrCount int
	for _, p := range compound {
		if rr, ok := p.(*rtcp.ReceiverReport); ok {
			rrCount++
			totalReports += len(rr.Reports)
		}
	}
	assert.GreaterOrEqual(t, rrCount, 2, "more than 31 sources must split across multiple RR packets")
	assert.Equal(t, 35, totalReports)
}
