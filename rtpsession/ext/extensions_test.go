package ext

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOneByteEncodeDecodeRoundTrip(t *testing.T) {
	elems := []Element{
		{ID: 1, Value: []byte{0xAA, 0xBB, 0xCC}},
		{ID: 3, Value: []byte{0x01}},
	}
	block, err := Encode(OneByte, elems)
	require.NoError(t, err)
	assert.Equal(t, 0, len(block)%4, "block must be padded to a multiple of 4 bytes")

	decoded, err := Decode(OneByte, block)
	require.NoError(t, err)
	require.Len(t, decoded, 2)
	assert.Equal(t, elems[0], decoded[0])
	assert.Equal(t, elems[1], decoded[1])
}

func TestTwoByteEncodeDecodeRoundTrip(t *testing.T) {
	elems := []Element{
		{ID: 200, Value: make([]byte, 20)},
		{ID: 5, Value: []byte{0x7F}},
	}
	block, err := Encode(TwoByte, elems)
	require.NoError(t, err)
	assert.Equal(t, 0, len(block)%4)

	decoded, err := Decode(TwoByte, block)
	require.NoError(t, err)
	require.Len(t, decoded, 2)
	assert.Equal(t, elems[0], decoded[0])
	assert.Equal(t, elems[1], decoded[1])
}

func TestOneByteRejectsOutOfRangeID(t *testing.T) {
	_, err := NewTable(OneByte, map[uint8]string{15: "foo"})
	assert.Error(t, err)

	_, err = NewTable(OneByte, map[uint8]string{0: "bar"})
	assert.Error(t, err)
}

func TestOneByteDecodeStopsAtReservedID(t *testing.T) {
	// id=0xF (reserved "stop") in the high nibble, anything in the low.
	block := []byte{0xF0, 0x00, 0x00, 0x00}
	decoded, err := Decode(OneByte, block)
	require.NoError(t, err)
	assert.Empty(t, decoded)
}

func TestProfileValue(t *testing.T) {
	assert.Equal(t, uint16(0xBEDE), ProfileValue(OneByte))
	assert.Equal(t, uint16(0x1000), ProfileValue(TwoByte))
}
