package h264

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A 4000-byte NAL unit (type 5, NRI 3) fragmented under a 1400-byte
// budget must split into three FU-A packets with S/E bits 1/0/0 and
// 0/0/1, the marker bit only on the last, an identical RTP timestamp
// across all three, strictly consecutive sequence numbers, and
// bit-identical reassembly on the receive side.
func TestFUAFragmentationRoundTrips(t *testing.T) {
	nalu := make([]byte, 4000)
	nalu[0] = NALHeader{NRI: 3, Type: 5}.Byte()
	for i := 1; i < len(nalu); i++ {
		nalu[i] = byte(i)
	}

	p := NewPacketiser(PacketiserConfig{PayloadBudget: 1400, Mode: ModeNonInterleaved})

	seq := uint16(5)
	next := func() uint16 {
		s := seq
		seq++
		return s
	}

	pkts, err := p.PackToRTP([][]byte{nalu}, 96, 0xABCD, 1000000, next)
	require.NoError(t, err)
	require.Len(t, pkts, 3)

	wantS := []bool{true, false, false}
	wantE := []bool{false, false, true}
	wantSeq := []uint16{5, 6, 7}

	var reassembled [][]byte
	d := NewDepacketiser()
	for i, pkt := range pkts {
		assert.Equal(t, wantSeq[i], pkt.SequenceNumber)
		assert.Equal(t, uint32(1000000), pkt.Timestamp)
		assert.Equal(t, i == len(pkts)-1, pkt.Marker)

		fuHeader := ParseFUHeader(pkt.Payload[1])
		assert.Equal(t, wantS[i], fuHeader.Start, "fragment %d start bit", i)
		assert.Equal(t, wantE[i], fuHeader.End, "fragment %d end bit", i)

		out, err := d.Push(pkt.SequenceNumber, pkt.Payload)
		require.NoError(t, err)
		reassembled = append(reassembled, out...)
	}
	require.Len(t, reassembled, 1)
	assert.Equal(t, nalu, reassembled[0])
}

// Three small NAL units (10, 20, 30 bytes) under a 1400-byte budget
// aggregate into a single STAP-A packet, marker set.
func TestSTAPAAggregatesSmallNALUnits(t *testing.T) {
	sizes := []int{10, 20, 30}
	var nalus [][]byte
	for i, size := range sizes {
		u := make([]byte, size)
		u[0] = NALHeader{NRI: 2, Type: 1}.Byte()
		for j := 1; j < size; j++ {
			u[j] = byte(i*100 + j)
		}
		nalus = append(nalus, u)
	}

	p := NewPacketiser(PacketiserConfig{PayloadBudget: 1400, Mode: ModeNonInterleaved, AggregateSTAP: true})
	seq := uint16(0)
	pkts, err := p.PackToRTP(nalus, 96, 0x1, 5000, func() uint16 { s := seq; seq++; return s })
	require.NoError(t, err)
	require.Len(t, pkts, 1)

	pkt := pkts[0]
	assert.True(t, pkt.Marker)
	header := ParseNALHeader(pkt.Payload[0])
	assert.Equal(t, uint8(NALUTypeStapA), header.Type)

	d := NewDepacketiser()
	out, err := d.Push(pkt.SequenceNumber, pkt.Payload)
	require.NoError(t, err)
	require.Len(t, out, 3)
	for i, u := range nalus {
		assert.Equal(t, u, out[i])
	}
}

func TestFragmentationGapAbortsFU(t *testing.T) {
	nalu := make([]byte, 3000)
	nalu[0] = NALHeader{NRI: 1, Type: 5}.Byte()
	p := NewPacketiser(PacketiserConfig{PayloadBudget: 1400, Mode: ModeNonInterleaved})
	seq := uint16(0)
	pkts, err := p.PackToRTP([][]byte{nalu}, 96, 0x1, 1, func() uint16 { s := seq; seq++; return s })
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(pkts), 2)

	d := NewDepacketiser()
	_, err = d.Push(pkts[0].SequenceNumber, pkts[0].Payload)
	require.NoError(t, err)

	// Skip a sequence number mid-fragmentation.
	_, err = d.Push(pkts[1].SequenceNumber+1, pkts[1].Payload)
	require.Error(t, err)
	var decapErr *DecapError
	require.ErrorAs(t, err, &decapErr)
	assert.Equal(t, DecapGapInFragmentation, decapErr.Kind)
}
