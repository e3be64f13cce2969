package rtpsession

import (
	"time"

	"github.com/pion/rtp"
)

// Arrival wraps a decoded incoming RTP packet with the receiver-side
// derived fields SPEC_FULL.md §3 names: wall-clock arrival time, the
// extended (32-bit, wraparound-aware) sequence number MemberDb
// computed for it, and whether the source has cleared RFC 3550
// Appendix A.1 probation. It is the value the Session hands to the
// application's incoming-RTP callback.
type Arrival struct {
	Packet           *rtp.Packet
	ArrivedAt        time.Time
	ExtendedSeq      uint32
	SSRCValidated    bool
	RTCPSynchronised bool
	PresentationTime time.Time
	Subflow          *SubflowInfo // non-nil only when MPRTP is negotiated
}

// SubflowInfo carries the decoded MPRTP subflow header for one
// incoming packet, when present.
type SubflowInfo struct {
	FlowID uint16
	FSSN   uint32 // extended flow-specific sequence number
}

// RTCPArrival wraps a decoded incoming compound RTCP packet.
type RTCPArrival struct {
	ArrivedAt time.Time
	Size      int
}
