// TransmissionManager buffers recently sent RTP packets so they can be
// retransmitted per RFC 4588 when the peer signals loss, and builds
// the SSRC-multiplexed RTX wire format RFC 4588 §4 defines (original
// sequence number prefixed to the original payload, carried under the
// RTX SSRC/payload type/sequence space), extended for MPRTP per
// draft-ietf-mptcp-multipath-rtp with a 6-byte flow-id+FSSN prefix in
// place of the 2-byte original-sequence prefix when a subflow is in
// use. Grounded on original_source/src/Lib/rfc4588/TransmissionManager.cpp
// for the three eviction policies, and on the teacher's circular-buffer
// style (pkg/rtp/rtcp_session.go uses a similar ring for its own
// history) for the Go idiom.
package rtpsession

import (
	"sync"
	"time"

	"github.com/pion/rtp"
)

// bufferedPacket is one retained outgoing RTP packet. flowID/fssn are
// only meaningful when onFlow is set, which happens when the packet
// was sent on an MPRTP subflow (RecordOnFlow) rather than Record.
type bufferedPacket struct {
	seq       uint16
	timestamp uint32
	payload   []byte
	sentAt    time.Time
	acked     bool

	onFlow bool
	flowID uint16
	fssn   uint16
}

// TransmissionManager is a bounded buffer of recently sent RTP packets
// kept around for retransmission. Eviction policy is fixed at
// construction time per RTXMode and the three modes are mutually
// exclusive: Circular evicts strictly by capacity, NackTimed
// additionally expires entries older than the negotiated window,
// AckDriven removes entries once a reception report's extended
// highest sequence number confirms delivery.
type TransmissionManager struct {
	mu       sync.Mutex
	mode     RTXMode
	capacity int
	window   time.Duration

	buf   []*bufferedPacket // ring, oldest first
	byKey map[uint16]*bufferedPacket

	primaryPT uint8
	rtxPT     uint8
	rtxSSRC   uint32

	state *SessionState
}

// NewTransmissionManager constructs a manager for the given RTX
// negotiation. The ring always bounds memory regardless of mode: every
// mode uses info.Depth as its capacity (DefaultRTXDepth if unset),
// which for NackTimed and AckDriven is a backstop against a buffer
// that grows unbounded when the peer never NACKs or ACKs.
func NewTransmissionManager(info RTXInfo, mode RTXMode, state *SessionState) *TransmissionManager {
	capacity := int(info.Depth)
	if capacity <= 0 {
		capacity = DefaultRTXDepth
	}
	window := time.Duration(info.WindowMillis) * time.Millisecond
	if window <= 0 {
		window = 2 * time.Second
	}
	return &TransmissionManager{
		mode:      mode,
		capacity:  capacity,
		window:    window,
		byKey:     make(map[uint16]*bufferedPacket, capacity),
		primaryPT: info.PrimaryPT,
		rtxPT:     info.PayloadType,
		rtxSSRC:   state.RtxSSRC(),
		state:     state,
	}
}

// Record stores a copy of a just-sent primary packet for possible
// later retransmission.
func (tm *TransmissionManager) Record(pkt *rtp.Packet, now time.Time) {
	if tm.mode == RTXDisabled {
		return
	}
	tm.mu.Lock()
	defer tm.mu.Unlock()

	payload := make([]byte, len(pkt.Payload))
	copy(payload, pkt.Payload)
	bp := &bufferedPacket{
		seq:       pkt.SequenceNumber,
		timestamp: pkt.Timestamp,
		payload:   payload,
		sentAt:    now,
	}

	tm.buf = append(tm.buf, bp)
	tm.byKey[bp.seq] = bp
	tm.evictLocked(now)
}

// RecordOnFlow is Record for a packet sent on an MPRTP subflow: the
// retransmission later built from this entry carries the subflow's
// flow id and flow-specific sequence number alongside the original
// sequence number, per draft-ietf-mptcp-multipath-rtp, so the peer can
// route the RTX packet back through per-subflow reordering the same
// way it would the original.
func (tm *TransmissionManager) RecordOnFlow(pkt *rtp.Packet, flowID uint16, fssn uint16, now time.Time) {
	if tm.mode == RTXDisabled {
		return
	}
	tm.mu.Lock()
	defer tm.mu.Unlock()

	payload := make([]byte, len(pkt.Payload))
	copy(payload, pkt.Payload)
	bp := &bufferedPacket{
		seq:       pkt.SequenceNumber,
		timestamp: pkt.Timestamp,
		payload:   payload,
		sentAt:    now,
		onFlow:    true,
		flowID:    flowID,
		fssn:      fssn,
	}

	tm.buf = append(tm.buf, bp)
	tm.byKey[bp.seq] = bp
	tm.evictLocked(now)
}

// evictLocked enforces capacity (all modes) and the NACK-timed window
// (NackTimed only). Caller holds tm.mu.
func (tm *TransmissionManager) evictLocked(now time.Time) {
	for len(tm.buf) > tm.capacity {
		tm.popOldestLocked()
	}
	if tm.mode == RTXNackTimed {
		for len(tm.buf) > 0 && now.Sub(tm.buf[0].sentAt) > tm.window {
			tm.popOldestLocked()
		}
	}
}

func (tm *TransmissionManager) popOldestLocked() {
	if len(tm.buf) == 0 {
		return
	}
	oldest := tm.buf[0]
	tm.buf = tm.buf[1:]
	delete(tm.byKey, oldest.seq)
}

// Ack removes a buffered packet once its delivery has been confirmed,
// the AckDriven eviction path. It is a no-op in the other two modes.
func (tm *TransmissionManager) Ack(seq uint16) {
	if tm.mode != RTXAckDriven {
		return
	}
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if bp, ok := tm.byKey[seq]; ok {
		bp.acked = true
		tm.removeLocked(seq)
	}
}

// AckUpTo drives AckDriven eviction from a peer's own reception report:
// every buffered packet at or before seq is implicitly acknowledged,
// the same way a TCP cumulative ack subsumes earlier ones. A no-op in
// the other two modes.
func (tm *TransmissionManager) AckUpTo(seq uint16) {
	if tm.mode != RTXAckDriven {
		return
	}
	tm.mu.Lock()
	var toAck []uint16
	for _, bp := range tm.buf {
		if int16(bp.seq-seq) <= 0 {
			toAck = append(toAck, bp.seq)
		}
	}
	tm.mu.Unlock()
	for _, s := range toAck {
		tm.Ack(s)
	}
}

func (tm *TransmissionManager) removeLocked(seq uint16) {
	delete(tm.byKey, seq)
	for i, bp := range tm.buf {
		if bp.seq == seq {
			tm.buf = append(tm.buf[:i], tm.buf[i+1:]...)
			return
		}
	}
}

// lookup retrieves a buffered packet by its original sequence number.
// For NackTimed mode the window is also enforced here, not just on the
// next Record: a NACK arriving after the window has elapsed must see
// the packet as expired even if no further packets have been sent.
func (tm *TransmissionManager) lookup(seq uint16, now time.Time) (*bufferedPacket, bool) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	bp, ok := tm.byKey[seq]
	if ok && tm.mode == RTXNackTimed && now.Sub(bp.sentAt) > tm.window {
		tm.removeLocked(seq)
		return nil, false
	}
	return bp, ok
}

// BuildRetransmission constructs the RFC 4588 §4 SSRC-multiplexed RTX
// packet for a NACKed sequence number: the RTX payload is the original
// packet's sequence number (network byte order) prepended to its
// original payload, sent under the RTX SSRC/PT/independent sequence
// space. When the buffered packet was recorded via RecordOnFlow, the
// prefix grows to 6 bytes, with the subflow's flow id and
// flow-specific sequence number appended after the original sequence
// number, per draft-ietf-mptcp-multipath-rtp.
func (tm *TransmissionManager) BuildRetransmission(origSeq uint16, now time.Time) (*rtp.Packet, error) {
	bp, ok := tm.lookup(origSeq, now)
	if !ok {
		return nil, newErr(ErrExpiredRtx, "TransmissionManager.BuildRetransmission", nil)
	}

	prefixLen := 2
	if bp.onFlow {
		prefixLen = 6
	}
	rtxPayload := make([]byte, prefixLen+len(bp.payload))
	rtxPayload[0] = byte(origSeq >> 8)
	rtxPayload[1] = byte(origSeq)
	if bp.onFlow {
		rtxPayload[2] = byte(bp.flowID >> 8)
		rtxPayload[3] = byte(bp.flowID)
		rtxPayload[4] = byte(bp.fssn >> 8)
		rtxPayload[5] = byte(bp.fssn)
	}
	copy(rtxPayload[prefixLen:], bp.payload)

	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    tm.rtxPT,
			SequenceNumber: tm.state.NextRtxSeq(),
			Timestamp:      bp.timestamp,
			SSRC:           tm.rtxSSRC,
		},
		Payload: rtxPayload,
	}
	return pkt, nil
}

// DecodeRetransmission reverses BuildRetransmission's 2-byte-prefix
// form on the receive side: given an RTX packet's payload, returns the
// original sequence number and the original payload bytes. Callers
// that negotiated MPRTP should use DecodeMPRTPRetransmission instead
// when the subflow is known to tag its retransmissions with the
// 6-byte form.
func DecodeRetransmission(rtxPayload []byte) (origSeq uint16, origPayload []byte, err error) {
	if len(rtxPayload) < 2 {
		return 0, nil, newErr(ErrMalformedPacket, "DecodeRetransmission", nil)
	}
	origSeq = uint16(rtxPayload[0])<<8 | uint16(rtxPayload[1])
	origPayload = rtxPayload[2:]
	return origSeq, origPayload, nil
}

// DecodeMPRTPRetransmission reverses the 6-byte flow-id+FSSN form of
// BuildRetransmission: given an RTX packet's payload, returns the
// subflow's flow id, its flow-specific sequence number, the original
// (pre-subflow) sequence number, and the original payload bytes.
func DecodeMPRTPRetransmission(rtxPayload []byte) (flowID uint16, fssn uint16, origSeq uint16, origPayload []byte, err error) {
	if len(rtxPayload) < 6 {
		return 0, 0, 0, nil, newErr(ErrMalformedPacket, "DecodeMPRTPRetransmission", nil)
	}
	origSeq = uint16(rtxPayload[0])<<8 | uint16(rtxPayload[1])
	flowID = uint16(rtxPayload[2])<<8 | uint16(rtxPayload[3])
	fssn = uint16(rtxPayload[4])<<8 | uint16(rtxPayload[5])
	origPayload = rtxPayload[6:]
	return flowID, fssn, origSeq, origPayload, nil
}

// Len reports how many packets are currently buffered, for tests and
// telemetry.
func (tm *TransmissionManager) Len() int {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return len(tm.buf)
}
