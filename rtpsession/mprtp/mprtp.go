// Package mprtp implements the optional multipath-RTP extension:
// a per-subflow sequence space carried in an RFC 5285 one-byte header
// extension, per-flow NACK feedback, and per-flow reception
// statistics alongside the aggregate MemberDb. Grounded on the
// teacher's source_manager.go map-of-counters shape, generalised from
// one dimension (SSRC) to two (SSRC, flow id). Wired into Session as a
// nil-checked optional field rather than a build tag, so the package
// compiles unconditionally but contributes nothing at runtime when a
// session's SessionParameters.MPRTPEnabled is false.
package mprtp

import (
	"encoding/binary"
	"fmt"
	"sync"
)

// SubflowHeader is the (flow id, flow-specific sequence number) pair
// RFC-style MPRTP carries in a one-byte RTP header extension element.
type SubflowHeader struct {
	FlowID uint16
	FSSN   uint16
}

// Encode serialises a SubflowHeader to its 4-byte extension value.
func (h SubflowHeader) Encode() []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint16(b[0:2], h.FlowID)
	binary.BigEndian.PutUint16(b[2:4], h.FSSN)
	return b
}

// DecodeSubflowHeader parses a SubflowHeader from its 4-byte extension
// value.
func DecodeSubflowHeader(b []byte) (SubflowHeader, error) {
	if len(b) != 4 {
		return SubflowHeader{}, fmt.Errorf("mprtp: subflow header must be 4 bytes, got %d", len(b))
	}
	return SubflowHeader{
		FlowID: binary.BigEndian.Uint16(b[0:2]),
		FSSN:   binary.BigEndian.Uint16(b[2:4]),
	}, nil
}

// FlowStats holds the per-flow counters MemberDb keeps per-SSRC,
// narrowed to what RFC 3550 Appendix A.3's loss fraction needs when
// computed per subflow rather than in aggregate.
type FlowStats struct {
	FlowID          uint16
	baseFSSN        uint16
	maxFSSN         uint16
	cycles          uint32
	received        uint32
	expectedPrior   uint32
	receivedPrior   uint32
	initialised     bool
}

// ExtendedFSSN returns the 32-bit extended flow-specific sequence
// number, mirroring MemberEntry.ExtendedHighestSeq for the per-flow
// space.
func (f *FlowStats) ExtendedFSSN() uint32 {
	return f.cycles | uint32(f.maxFSSN)
}

// FractionLost computes the interval loss fraction for this flow,
// identical in shape to rtpsession's per-source calculation but
// scoped to one flow's sequence space.
func (f *FlowStats) FractionLost() uint8 {
	extended := f.ExtendedFSSN()
	expected := extended - uint32(f.baseFSSN) + 1
	expectedInterval := expected - f.expectedPrior
	receivedInterval := f.received - f.receivedPrior
	lost := int64(expectedInterval) - int64(receivedInterval)
	f.expectedPrior = expected
	f.receivedPrior = f.received
	if expectedInterval == 0 || lost <= 0 {
		return 0
	}
	return uint8((lost << 8) / int64(expectedInterval))
}

// MemberFlows tracks every subflow seen from one remote SSRC.
type MemberFlows struct {
	mu    sync.Mutex
	flows map[uint16]*FlowStats
}

// NewMemberFlows constructs an empty per-member flow table.
func NewMemberFlows() *MemberFlows {
	return &MemberFlows{flows: make(map[uint16]*FlowStats)}
}

// Observe records one arriving packet's subflow header, updating that
// flow's sequence-space bookkeeping with the same wraparound handling
// MemberDb uses for the aggregate SSRC space.
func (mf *MemberFlows) Observe(hdr SubflowHeader) {
	mf.mu.Lock()
	defer mf.mu.Unlock()

	f, ok := mf.flows[hdr.FlowID]
	if !ok {
		f = &FlowStats{FlowID: hdr.FlowID, baseFSSN: hdr.FSSN, maxFSSN: hdr.FSSN, initialised: true}
		mf.flows[hdr.FlowID] = f
	}
	udelta := hdr.FSSN - f.maxFSSN
	if udelta < 3000 {
		if hdr.FSSN < f.maxFSSN {
			f.cycles += 1 << 16
		}
		f.maxFSSN = hdr.FSSN
	}
	f.received++
}

// Snapshot returns a copy of every flow's current stats, for per-flow
// RTCP report generation.
func (mf *MemberFlows) Snapshot() []FlowStats {
	mf.mu.Lock()
	defer mf.mu.Unlock()
	out := make([]FlowStats, 0, len(mf.flows))
	for _, f := range mf.flows {
		out = append(out, *f)
	}
	return out
}

// NackItem is one (flow id, FSSN) pair carried in MPRTP's generic NACK
// feedback, extending RFC 4585's plain-SSRC NACK with a flow
// dimension.
type NackItem struct {
	FlowID uint16
	FSSN   uint16
}

// SubflowSender assigns independent, monotonically increasing
// sequence numbers per outgoing flow, the send-side counterpart of
// FlowStats.
type SubflowSender struct {
	mu   sync.Mutex
	next map[uint16]uint16
}

// NewSubflowSender constructs an empty sender-side sequence allocator.
func NewSubflowSender() *SubflowSender {
	return &SubflowSender{next: make(map[uint16]uint16)}
}

// NextFSSN returns and advances the next flow-specific sequence number
// for flowID.
func (s *SubflowSender) NextFSSN(flowID uint16) uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.next[flowID]
	s.next[flowID] = v + 1
	return v
}
