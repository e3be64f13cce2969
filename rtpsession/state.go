package rtpsession

import (
	"crypto/rand"
	"encoding/binary"
	"sync/atomic"
)

// SessionState is the mutable per-session identity: SSRC(s), outgoing
// sequence counters, and the RTP timestamp base. It is owned
// exclusively by the Session's task; fields are atomics only so that
// components invoked from transport-facing goroutines (e.g. a
// retransmission timer firing concurrently with the session loop) can
// read counters without a data race while still being logically
// single-owner, single-writer.
type SessionState struct {
	ssrc    uint32
	rtxSSRC uint32 // 0 if RTX is not in use

	seq    uint32 // low 16 bits are the live sequence number
	rtxSeq uint32

	tsBase uint32 // randomised at session start

	senderPacketCount uint64 // atomic
	senderOctetCount  uint64 // atomic
}

// NewSessionState creates state with a random SSRC, sequence number,
// and RTP timestamp base, generating an independent RTX SSRC when rtx
// is true.
func NewSessionState(rtx bool) (*SessionState, error) {
	ssrc, err := randomUint32()
	if err != nil {
		return nil, err
	}
	seq, err := randomUint16()
	if err != nil {
		return nil, err
	}
	ts, err := randomUint32()
	if err != nil {
		return nil, err
	}
	s := &SessionState{
		ssrc:   ssrc,
		seq:    uint32(seq),
		tsBase: ts,
	}
	if rtx {
		rtxSSRC, err := randomUint32()
		if err != nil {
			return nil, err
		}
		rtxSeq, err := randomUint16()
		if err != nil {
			return nil, err
		}
		s.rtxSSRC = rtxSSRC
		s.rtxSeq = uint32(rtxSeq)
	}
	return s, nil
}

func randomUint32() (uint32, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func randomUint16() (uint16, error) {
	v, err := randomUint32()
	return uint16(v), err
}

// SSRC returns the session's primary synchronisation source.
func (s *SessionState) SSRC() uint32 { return atomic.LoadUint32(&s.ssrc) }

// RtxSSRC returns the RTX stream's SSRC, or 0 if RTX is not in use.
func (s *SessionState) RtxSSRC() uint32 { return atomic.LoadUint32(&s.rtxSSRC) }

// NextSeq returns the next outgoing sequence number for the primary
// stream and advances the counter, wrapping at 16 bits.
func (s *SessionState) NextSeq() uint16 {
	return uint16(atomic.AddUint32(&s.seq, 1))
}

// NextRtxSeq returns the next outgoing RTX sequence number, independent
// of the primary stream's counter.
func (s *SessionState) NextRtxSeq() uint16 {
	return uint16(atomic.AddUint32(&s.rtxSeq, 1))
}

// TimestampBase returns the RTP timestamp base chosen at session start.
func (s *SessionState) TimestampBase() uint32 { return s.tsBase }

// RecordSent accounts for one outgoing RTP packet carrying payloadLen
// bytes, for use in Sender Report packet/octet counts.
func (s *SessionState) RecordSent(payloadLen int) {
	atomic.AddUint64(&s.senderPacketCount, 1)
	atomic.AddUint64(&s.senderOctetCount, uint64(payloadLen))
}

// SenderCounts returns the cumulative packet and octet counts this
// session has sent, as carried in a Sender Report.
func (s *SessionState) SenderCounts() (packets, octets uint32) {
	return uint32(atomic.LoadUint64(&s.senderPacketCount)), uint32(atomic.LoadUint64(&s.senderOctetCount))
}
