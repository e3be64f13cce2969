package h264

import (
	"github.com/pion/rtp"
)

// DefaultPayloadBudget is the RTP payload size above which a NAL unit
// must be fragmented, chosen (as the teacher's reference encoder does)
// to clear typical Ethernet/IP/UDP/RTP overhead under a 1500-byte MTU.
const DefaultPayloadBudget = 1460

// PacketiserConfig parameterises a Packetiser.
type PacketiserConfig struct {
	PayloadBudget int
	Mode          Mode
	// AggregateSTAP enables STAP-A/B aggregation of consecutive small
	// NAL units belonging to the same access unit. Left at its zero
	// value here it defaults to false; rtpsession.Session instead
	// passes through SessionParameters.AggregateSTAP, which
	// DefaultSessionParameters sets to true.
	AggregateSTAP bool
}

// Mode mirrors rtpsession.PacketisationMode without importing the
// parent package, keeping h264 usable standalone.
type Mode int

const (
	ModeSingleNAL Mode = iota
	ModeNonInterleaved
	ModeInterleaved
)

// Packetiser turns a sequence of NAL units belonging to one access
// unit into RTP payloads, per RFC 6184. It does not own sequence
// numbers, SSRC or timestamps — the caller (rtpsession.Session)
// supplies those, either by wrapping Pack's payloads itself or through
// PackToRTP's parameters, so this package stays independent of session
// lifecycle.
type Packetiser struct {
	cfg PacketiserConfig

	// donCounter tracks the 16-bit decoding-order-number interleaved
	// mode requires for STAP-B/FU-B/MTAP units (RFC 6184 §5.6-5.8).
	donCounter uint16
}

// NewPacketiser constructs a Packetiser. A zero PayloadBudget defaults
// to DefaultPayloadBudget.
func NewPacketiser(cfg PacketiserConfig) *Packetiser {
	if cfg.PayloadBudget <= 0 {
		cfg.PayloadBudget = DefaultPayloadBudget
	}
	return &Packetiser{cfg: cfg}
}

// Pack converts nalus (one access unit) into RTP payload byte slices.
// It returns raw payload bytes and sets no marker bit; the caller wraps
// each in an rtp.Packet with its own header fields and marks the packet
// carrying the access unit's final sample (RFC 6184 §5.1), as
// PackToRTP does.
func (p *Packetiser) Pack(nalus [][]byte) ([][]byte, error) {
	if p.cfg.Mode == ModeInterleaved && p.cfg.AggregateSTAP {
		return p.packInterleaved(nalus)
	}
	if p.cfg.AggregateSTAP && p.cfg.Mode != ModeSingleNAL {
		return p.packAggregated(nalus)
	}
	return p.packPlain(nalus)
}

// packPlain emits one payload per NAL unit, fragmenting with FU-A any
// that exceed the payload budget; FU-B is not used, even in
// interleaved mode.
func (p *Packetiser) packPlain(nalus [][]byte) ([][]byte, error) {
	var out [][]byte
	for _, nalu := range nalus {
		if len(nalu) <= p.cfg.PayloadBudget {
			out = append(out, nalu)
			continue
		}
		frags, err := p.fragment(nalu)
		if err != nil {
			return nil, err
		}
		out = append(out, frags...)
	}
	return out, nil
}

// packAggregated greedily aggregates consecutive small NAL units into
// STAP-A payloads (RFC 6184 §5.7.1), fragmenting any unit that alone
// exceeds the budget.
func (p *Packetiser) packAggregated(nalus [][]byte) ([][]byte, error) {
	var out [][]byte
	var pending [][]byte
	pendingSize := 1 // STAP-A indicator byte

	flush := func() {
		if len(pending) == 0 {
			return
		}
		if len(pending) == 1 {
			out = append(out, pending[0])
			pending = nil
			pendingSize = 1
			return
		}
		out = append(out, buildStapA(pending))
		pending = nil
		pendingSize = 1
	}

	for _, nalu := range nalus {
		if len(nalu) > p.cfg.PayloadBudget {
			flush()
			frags, err := p.fragment(nalu)
			if err != nil {
				return nil, err
			}
			out = append(out, frags...)
			continue
		}
		entrySize := 2 + len(nalu) // NALU size field + unit
		if pendingSize+entrySize > p.cfg.PayloadBudget {
			flush()
		}
		pending = append(pending, nalu)
		pendingSize += entrySize
	}
	flush()
	return out, nil
}

// packInterleaved is packAggregated's interleaved-mode counterpart: it
// tags every unit (whether aggregated via STAP-B or fragmented via
// FU-B) with a monotonically increasing DON, per RFC 6184 §5.7.2/§5.8.
func (p *Packetiser) packInterleaved(nalus [][]byte) ([][]byte, error) {
	var out [][]byte
	for _, nalu := range nalus {
		don := p.donCounter
		p.donCounter++
		if len(nalu) <= p.cfg.PayloadBudget-2 {
			out = append(out, buildStapB(nalu, don))
			continue
		}
		frags, err := p.fragmentB(nalu, don)
		if err != nil {
			return nil, err
		}
		out = append(out, frags...)
	}
	return out, nil
}

// fragment splits a single NAL unit into FU-A payloads.
func (p *Packetiser) fragment(nalu []byte) ([][]byte, error) {
	if len(nalu) < 1 {
		return nil, newDecapErr(DecapInvalidHeader, "empty NAL unit")
	}
	header := ParseNALHeader(nalu[0])
	body := nalu[1:]

	chunkSize := p.cfg.PayloadBudget - 2 // FU indicator + FU header
	if chunkSize < 1 {
		chunkSize = 1
	}

	var out [][]byte
	for offset := 0; offset < len(body); offset += chunkSize {
		end := offset + chunkSize
		if end > len(body) {
			end = len(body)
		}
		indicator := NALHeader{ForbiddenZero: header.ForbiddenZero, NRI: header.NRI, Type: uint8(NALUTypeFuA)}
		fuHeader := FUHeader{
			Start: offset == 0,
			End:   end == len(body),
			Type:  header.Type,
		}
		payload := make([]byte, 2+(end-offset))
		payload[0] = indicator.Byte()
		payload[1] = fuHeader.Byte()
		copy(payload[2:], body[offset:end])
		out = append(out, payload)
	}
	return out, nil
}

// fragmentB is fragment's FU-B counterpart: the first fragment carries
// an additional 16-bit DON field (RFC 6184 §5.8.2).
func (p *Packetiser) fragmentB(nalu []byte, don uint16) ([][]byte, error) {
	if len(nalu) < 1 {
		return nil, newDecapErr(DecapInvalidHeader, "empty NAL unit")
	}
	header := ParseNALHeader(nalu[0])
	body := nalu[1:]

	chunkSize := p.cfg.PayloadBudget - 4
	if chunkSize < 1 {
		chunkSize = 1
	}

	var out [][]byte
	first := true
	for offset := 0; offset < len(body); offset += chunkSize {
		end := offset + chunkSize
		if end > len(body) {
			end = len(body)
		}
		indicator := NALHeader{ForbiddenZero: header.ForbiddenZero, NRI: header.NRI, Type: uint8(NALUTypeFuB)}
		fuHeader := FUHeader{Start: first, End: end == len(body), Type: header.Type}

		headerLen := 2
		if first {
			headerLen = 4
		}
		payload := make([]byte, headerLen+(end-offset))
		payload[0] = indicator.Byte()
		payload[1] = fuHeader.Byte()
		if first {
			payload[2] = byte(don >> 8)
			payload[3] = byte(don)
		}
		copy(payload[headerLen:], body[offset:end])
		out = append(out, payload)
		first = false
	}
	return out, nil
}

// buildStapA aggregates 2+ NAL units into one STAP-A payload (RFC 6184
// §5.7.1): indicator byte, then repeated (16-bit size, unit) entries.
func buildStapA(units [][]byte) []byte {
	total := 1
	for _, u := range units {
		total += 2 + len(u)
	}
	out := make([]byte, total)
	nri := uint8(0)
	for _, u := range units {
		h := ParseNALHeader(u[0])
		if h.NRI > nri {
			nri = h.NRI
		}
	}
	out[0] = NALHeader{NRI: nri, Type: uint8(NALUTypeStapA)}.Byte()
	offset := 1
	for _, u := range units {
		out[offset] = byte(len(u) >> 8)
		out[offset+1] = byte(len(u))
		copy(out[offset+2:], u)
		offset += 2 + len(u)
	}
	return out
}

// buildStapB wraps a single NAL unit in a STAP-B-style payload carrying
// a DON, used by interleaved mode even for single units so the
// depacketiser always finds a DON to reorder by.
func buildStapB(nalu []byte, don uint16) []byte {
	h := ParseNALHeader(nalu[0])
	out := make([]byte, 3+2+len(nalu))
	out[0] = NALHeader{NRI: h.NRI, Type: uint8(NALUTypeStapB)}.Byte()
	out[1] = byte(don >> 8)
	out[2] = byte(don)
	out[3] = byte(len(nalu) >> 8)
	out[4] = byte(len(nalu))
	copy(out[5:], nalu)
	return out
}

// PackToRTP is a convenience wrapper building full rtp.Packet values
// from Pack's payloads, stamping a sequence number from nextSeq plus
// ssrc/pt/timestamp on each and the marker bit on the last.
func (p *Packetiser) PackToRTP(nalus [][]byte, pt uint8, ssrc uint32, timestamp uint32, nextSeq func() uint16) ([]*rtp.Packet, error) {
	payloads, err := p.Pack(nalus)
	if err != nil {
		return nil, err
	}
	out := make([]*rtp.Packet, len(payloads))
	for i, payload := range payloads {
		pkt := &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				PayloadType:    pt,
				SequenceNumber: nextSeq(),
				Timestamp:      timestamp,
				SSRC:           ssrc,
			},
			Payload: payload,
		}
		if i == len(payloads)-1 {
			pkt.Header.Marker = true
		}
		out[i] = pkt
	}
	return out, nil
}
