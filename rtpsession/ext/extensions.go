// Package ext implements RFC 5285 one-byte and two-byte RTP header
// extensions, dispatched by a per-session id table frozen at session
// start: the receiver's own extmap governs extension-id dispatch, so
// the table is built once from the negotiated id->name mapping rather
// than re-derived per packet. Grounded on pion/rtp's own extension
// helpers for the bit-level layout and on the teacher's
// config-struct-with-map style for the dispatch table.
package ext

import "fmt"

// Kind selects the RFC 5285 extension profile in use. The two are
// wire-incompatible; a session picks one for its lifetime.
type Kind int

const (
	OneByte Kind = iota
	TwoByte
)

// profileID is the value carried in the RTP header's first 16
// extension-profile bits that identifies which Kind is in use.
const (
	oneByteProfile = 0xBEDE
	twoByteProfile = 0x1000 // high 12 bits fixed, low 4 bits reserved/appbits
)

// Element is one decoded header extension: the negotiated id and its
// raw value bytes.
type Element struct {
	ID    uint8
	Value []byte
}

// Table is the frozen id->name dispatch table negotiated for a
// session (rtpsession.SessionParameters.ExtensionMap), plus the wire
// Kind it was negotiated under.
type Table struct {
	Kind  Kind
	Names map[uint8]string
}

// NewTable builds a Table, validating that every id fits the chosen
// Kind's id space (1-14 for one-byte, 1-255 for two-byte; ids 0 and,
// for one-byte, 15 are reserved by RFC 5285 §4.2/4.3).
func NewTable(kind Kind, names map[uint8]string) (*Table, error) {
	for id := range names {
		if id == 0 {
			return nil, fmt.Errorf("ext: id 0 is reserved")
		}
		if kind == OneByte && id > 14 {
			return nil, fmt.Errorf("ext: id %d exceeds one-byte extension range", id)
		}
	}
	return &Table{Kind: kind, Names: names}, nil
}

// NameFor returns the negotiated extension name for id, if any.
func (t *Table) NameFor(id uint8) (string, bool) {
	name, ok := t.Names[id]
	return name, ok
}

// Encode serialises elements as an RFC 5285 extension block (not
// including the 4-byte RTP "defined by profile"+length prefix, which
// the caller's rtp.Header.SetExtension already manages per element
// when using pion/rtp — Encode exists for callers building the raw
// block directly, e.g. the MPRTP subflow extension).
func Encode(kind Kind, elems []Element) ([]byte, error) {
	var out []byte
	switch kind {
	case OneByte:
		for _, e := range elems {
			if e.ID == 0 || e.ID > 14 {
				return nil, fmt.Errorf("ext: id %d invalid for one-byte profile", e.ID)
			}
			if len(e.Value) == 0 || len(e.Value) > 16 {
				return nil, fmt.Errorf("ext: one-byte value length %d out of range", len(e.Value))
			}
			header := (e.ID << 4) | uint8(len(e.Value)-1)
			out = append(out, header)
			out = append(out, e.Value...)
		}
	case TwoByte:
		for _, e := range elems {
			if len(e.Value) > 255 {
				return nil, fmt.Errorf("ext: two-byte value length %d out of range", len(e.Value))
			}
			out = append(out, e.ID, uint8(len(e.Value)))
			out = append(out, e.Value...)
		}
	}
	// Pad to a multiple of 4 bytes per RFC 5285 §4.2/4.3.
	for len(out)%4 != 0 {
		out = append(out, 0)
	}
	return out, nil
}

// Decode parses a raw extension block back into elements, skipping
// 0x00 padding bytes in both forms and, in the one-byte form, stopping
// at the reserved id 0xF.
func Decode(kind Kind, block []byte) ([]Element, error) {
	var out []Element
	switch kind {
	case OneByte:
		for i := 0; i < len(block); {
			b := block[i]
			if b == 0x00 {
				i++
				continue
			}
			id := b >> 4
			length := int(b&0x0F) + 1
			if id == 0x0F {
				break // reserved "stop" id
			}
			i++
			if i+length > len(block) {
				return nil, fmt.Errorf("ext: one-byte element truncated")
			}
			out = append(out, Element{ID: id, Value: block[i : i+length]})
			i += length
		}
	case TwoByte:
		for i := 0; i < len(block); {
			if block[i] == 0x00 {
				i++
				continue
			}
			if i+2 > len(block) {
				return nil, fmt.Errorf("ext: two-byte header truncated")
			}
			id := block[i]
			length := int(block[i+1])
			i += 2
			if i+length > len(block) {
				return nil, fmt.Errorf("ext: two-byte element truncated")
			}
			out = append(out, Element{ID: id, Value: block[i : i+length]})
			i += length
		}
	}
	return out, nil
}

// ProfileValue returns the 16-bit "defined by profile" field value for
// kind, for callers constructing the raw extension header themselves.
func ProfileValue(kind Kind) uint16 {
	if kind == TwoByte {
		return twoByteProfile
	}
	return oneByteProfile
}
