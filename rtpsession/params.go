package rtpsession

import (
	"fmt"

	"github.com/google/uuid"
)

// DefaultRTXDepth is the ring capacity a circular RTX buffer uses when
// RTXInfo.Depth is left at zero.
const DefaultRTXDepth = 30

// RTXInfo describes the secondary RFC 4588 retransmission payload, if
// the session negotiated one.
type RTXInfo struct {
	PayloadType  uint8
	PrimaryPT    uint8
	Mode         RTXMode
	WindowMillis uint32 // meaningful only when Mode is RTXNackTimed
	Depth        uint32 // ring capacity for RTXCircular; 0 means DefaultRTXDepth
}

// SourceDescription holds the RFC 3550 §6.5 SDES items this session
// advertises for its local participant. CNAME is the only mandatory
// field.
type SourceDescription struct {
	CNAME string
	NAME  string
	EMAIL string
	PHONE string
	LOC   string
	TOOL  string
	NOTE  string
}

// SessionParameters is the immutable, negotiated description of a
// session. It is supplied by the signalling layer (RTSP/SIP/SDP
// offer-answer) external to this package and never mutated once a
// Session is constructed from it, so it may be freely shared by
// reference across goroutines.
type SessionParameters struct {
	Profile          Profile
	MediaType        MediaType
	Direction        Direction
	Mid              string
	SessionBandwidth uint32 // kbps

	// PayloadTable maps a 7-bit payload type to its encoding name and
	// clock rate. CurrentPayloadType names the one entry in active
	// use; the rest are advertised alternates.
	PayloadTable       map[uint8]PayloadInfo
	CurrentPayloadType uint8
	RTX                *RTXInfo // nil when RTX is not negotiated

	// Endpoints holds one pair per RTP/RTCP flow. Exactly one entry
	// unless MPRTP is enabled.
	Endpoints []EndpointPair

	RTCPMux      bool
	MPRTPEnabled bool
	RTXEnabled   bool
	ExtensionMap map[uint8]string // extmap id -> extension name
	XR           XRMode

	PacketisationMode PacketisationMode
	AggregateSTAP     bool // default true in non-interleaved mode

	LocalSDES SourceDescription
}

// Validate checks the invariants construction-time callers must
// satisfy; failures here are ErrInvalidConfiguration, an error kind
// that aborts session creation rather than being recovered locally.
func (p *SessionParameters) Validate() error {
	if p.LocalSDES.CNAME == "" {
		return newErr(ErrInvalidConfiguration, "SessionParameters.Validate", fmt.Errorf("CNAME is mandatory"))
	}
	if len(p.Endpoints) == 0 {
		return newErr(ErrInvalidConfiguration, "SessionParameters.Validate", fmt.Errorf("at least one endpoint pair is required"))
	}
	if !p.MPRTPEnabled && len(p.Endpoints) != 1 {
		return newErr(ErrInvalidConfiguration, "SessionParameters.Validate", fmt.Errorf("multiple endpoint pairs require MPRTP"))
	}
	if _, ok := p.PayloadTable[p.CurrentPayloadType]; !ok {
		return newErr(ErrInvalidConfiguration, "SessionParameters.Validate", fmt.Errorf("current payload type %d not in payload table", p.CurrentPayloadType))
	}
	if p.RTX != nil {
		if p.RTX.PayloadType == p.RTX.PrimaryPT {
			return newErr(ErrInvalidConfiguration, "SessionParameters.Validate", fmt.Errorf("RTX payload type must differ from its primary"))
		}
		if _, ok := p.PayloadTable[p.RTX.PrimaryPT]; !ok {
			return newErr(ErrInvalidConfiguration, "SessionParameters.Validate", fmt.Errorf("RTX primary payload type %d not in payload table", p.RTX.PrimaryPT))
		}
	}
	seen := make(map[uint8]string, len(p.ExtensionMap))
	for id, name := range p.ExtensionMap {
		if id == 0 || id > 14 {
			return newErr(ErrInvalidConfiguration, "SessionParameters.Validate", fmt.Errorf("extension id %d out of 1-byte range", id))
		}
		if other, dup := seen[id]; dup {
			return newErr(ErrInvalidConfiguration, "SessionParameters.Validate", fmt.Errorf("duplicate extension id %d for %q and %q", id, other, name))
		}
		seen[id] = name
	}
	return nil
}

// DefaultSessionParameters returns a value pre-populated with sensible
// defaults (STAP aggregation on in non-interleaved mode, AVP profile)
// for callers to customise before passing to NewSessionParameters.
func DefaultSessionParameters() SessionParameters {
	return SessionParameters{
		Profile:           ProfileAVP,
		PacketisationMode: PacketisationNonInterleaved,
		AggregateSTAP:     true,
		PayloadTable:      map[uint8]PayloadInfo{},
		ExtensionMap:      map[uint8]string{},
	}
}

// NewSessionParameters generates a CNAME when the caller left one
// unset and validates the result; it does not otherwise apply
// defaults — start from DefaultSessionParameters for those.
func NewSessionParameters(p SessionParameters) (*SessionParameters, error) {
	if p.LocalSDES.CNAME == "" {
		p.LocalSDES.CNAME = uuid.NewString()
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// PayloadFor returns the negotiated clock rate and encoding name for pt.
func (p *SessionParameters) PayloadFor(pt uint8) (PayloadInfo, bool) {
	info, ok := p.PayloadTable[pt]
	return info, ok
}
