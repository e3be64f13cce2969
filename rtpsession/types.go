// Package rtpsession implements the RTP session runtime described by
// RFC 3550 and its companion RFCs (4585 feedback, 4588 retransmission,
// 6184 H.264 payload, 5285 header extensions) plus an optional
// multipath-RTP extension.
//
// The package is a per-session state machine: it owns the member/source
// database, the RTCP reconsideration timer, and the send-side
// retransmission buffer, and it brokers RTP/RTCP bytes to and from a
// caller-supplied transport. Signalling (RTSP/SIP/SDP offer-answer) and
// concrete media devices live outside the package; they hand in a
// SessionParameters value and receive media-sample callbacks.
package rtpsession

import "time"

// RFC 3550 Appendix A.1 / timer constants named in the wire spec.
const (
	// MinSequential is the number of strictly-consecutive sequence
	// numbers a probationary source must deliver before it validates.
	MinSequential = 2
	// MaxDropout bounds how large a forward sequence jump may be
	// before it is treated as a large, possibly-restarted stream.
	MaxDropout = 3000
	// MaxMisorder bounds how far backward a sequence number may land
	// before it is treated as a duplicate/very-late packet.
	MaxMisorder = 100

	// RTCPMinInterval is the minimum RTCP transmission interval under
	// the AVP profile. Until the session has sent its first report,
	// half of the applicable minimum is used.
	RTCPMinInterval = 5 * time.Second
	// RTCPMinIntervalReduced replaces RTCPMinInterval as the minimum
	// when the session runs the AVPF profile. The BYE path consults
	// neither minimum.
	RTCPMinIntervalReduced = 2500 * time.Millisecond

	// ByeGrace is the minimum time a member that has sent BYE is kept
	// in the database before it becomes eligible for removal.
	ByeGrace = 2 * time.Second

	// ImmediateByeMemberLimit is the RFC 3550 §6.3.7 threshold above
	// which a departing participant must reconsider its BYE timing
	// instead of sending immediately.
	ImmediateByeMemberLimit = 50

	// DefaultRTCPBandwidthFraction is the fraction of session
	// bandwidth reserved for RTCP traffic (RFC 3550 §6.2).
	DefaultRTCPBandwidthFraction = 0.05
	// SenderReportFractionCeiling is the fraction of members, above
	// which senders no longer get their own quarter share of RTCP
	// bandwidth (RFC 3550 §6.3.2).
	SenderReportFractionCeiling = 0.25

	// RTCPCompensation is RFC 3550's "e - 3/2" constant used to
	// compensate for the convergence bias the randomised interval
	// would otherwise introduce.
	RTCPCompensation = 1.21828

	// MaxReceptionReportsPerPacket is the 5-bit RC/SC field's limit.
	MaxReceptionReportsPerPacket = 31
)

// Direction describes which way media flows on a stream, mirroring the
// SDP a=sendrecv/sendonly/recvonly/inactive attributes that negotiate
// it (negotiation itself is out of scope; the core only needs the
// resulting value).
type Direction int

const (
	DirectionSendRecv Direction = iota
	DirectionSendOnly
	DirectionRecvOnly
	DirectionInactive
)

func (d Direction) String() string {
	switch d {
	case DirectionSendRecv:
		return "sendrecv"
	case DirectionSendOnly:
		return "sendonly"
	case DirectionRecvOnly:
		return "recvonly"
	case DirectionInactive:
		return "inactive"
	default:
		return "unknown"
	}
}

// CanSend reports whether the direction permits outgoing media.
func (d Direction) CanSend() bool {
	return d == DirectionSendRecv || d == DirectionSendOnly
}

// CanReceive reports whether the direction permits incoming media.
func (d Direction) CanReceive() bool {
	return d == DirectionSendRecv || d == DirectionRecvOnly
}

// MediaType follows RFC 4566 media types relevant to this runtime.
type MediaType int

const (
	MediaTypeAudio MediaType = iota
	MediaTypeVideo
	MediaTypeApplication
)

// Profile names the RTP profile in use (RFC 3551 AVP, RFC 4585 AVPF).
type Profile int

const (
	ProfileAVP Profile = iota
	ProfileAVPF
)

func (p Profile) String() string {
	if p == ProfileAVPF {
		return "AVPF"
	}
	return "AVP"
}

// RTXMode selects the send-side retransmission buffer's eviction
// policy; the three modes are mutually exclusive per session.
type RTXMode int

const (
	RTXDisabled RTXMode = iota
	RTXCircular
	RTXNackTimed
	RTXAckDriven
)

// XRMode records which RFC 3611 extended-report sub-blocks were
// configured. Session builds no XR blocks in any mode.
type XRMode int

const (
	XRNone XRMode = iota
	XRReceiverReferenceTime
	XRDLRR
)

// PacketisationMode selects the RFC 6184 H.264 packetisation mode.
type PacketisationMode int

const (
	PacketisationSingleNAL PacketisationMode = iota
	PacketisationNonInterleaved
	PacketisationInterleaved
)

// PayloadInfo describes one entry of a session's payload-type table.
type PayloadInfo struct {
	EncodingName string
	ClockRate    uint32
}

// EndpointPair is a local/remote (rtp, rtcp) address pair. The pair
// count is fixed for the session's lifetime, so callers hold them in a
// slice sized once at construction rather than behind pointers.
type EndpointPair struct {
	LocalRTP   string
	LocalRTCP  string
	RemoteRTP  string
	RemoteRTCP string
}
