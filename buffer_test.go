package seria

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferFixedWidth(t *testing.T) {
	b := NewBuffer(nil, 0)
	b.WriteByte(0xAA)
	b.WriteUint16(0xBBCC)
	b.WriteUint32(0xDDEEFF00)
	b.WriteUint64(0x0102030405060708)

	expected := []byte{
		0xAA,
		0xCC, 0xBB,
		0x00, 0xFF, 0xEE, 0xDD,
		0x08, 0x07, 0x06, 0x05, 0x04, 0x03, 0x02, 0x01,
	}
	assert.Equal(t, expected, b.Bytes())

	r := NewReader(b.Bytes(), 0, NoLimits())
	v8, err := r.ReadByte()
	require.NoError(t, err)
	v16, err := r.ReadUint16()
	require.NoError(t, err)
	v32, err := r.ReadUint32()
	require.NoError(t, err)
	v64, err := r.ReadUint64()
	require.NoError(t, err)

	assert.Equal(t, byte(0xAA), v8)
	assert.Equal(t, uint16(0xBBCC), v16)
	assert.Equal(t, uint32(0xDDEEFF00), v32)
	assert.Equal(t, uint64(0x0102030405060708), v64)
	assert.Zero(t, r.Remaining())
}

func TestBufferVarints(t *testing.T) {
	values := []int64{0, 1, -1, 63, -64, 64, 127, 128, -129, math.MaxInt64, math.MinInt64}
	b := NewBuffer(nil, 0)
	for _, v := range values {
		b.WriteVarInt(v)
	}
	r := NewReader(b.Bytes(), 0, NoLimits())
	for _, want := range values {
		got, err := r.ReadVarInt()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	assert.Zero(t, r.Remaining())
}

func TestVarUintLen(t *testing.T) {
	assert.Equal(t, 1, VarUintLen(uint64(0)))
	assert.Equal(t, 1, VarUintLen(uint64(127)))
	assert.Equal(t, 2, VarUintLen(uint64(128)))
	assert.Equal(t, 10, VarUintLen(uint64(math.MaxUint64)))
	assert.Equal(t, 1, VarIntLen(int64(-64)))
	assert.Equal(t, 2, VarIntLen(int64(64)))
}

func TestBufferReservePatch(t *testing.T) {
	b := NewBuffer(nil, 0)
	pos := b.Reserve(2)
	b.WriteRawString("hello")
	b.PatchInt16(pos, int16(b.Len()-pos-2))

	r := NewReader(b.Bytes(), 0, NoLimits())
	size, err := r.ReadInt16()
	require.NoError(t, err)
	assert.Equal(t, int16(5), size)
}

func TestBufferResumesAtOffset(t *testing.T) {
	buf := []byte{1, 2, 3}
	b := NewBuffer(buf, 3)
	b.WriteByte(4)
	assert.Equal(t, []byte{1, 2, 3, 4}, b.Bytes())
}

func TestLenPrefixedNilVsEmpty(t *testing.T) {
	b := NewBuffer(nil, 0)
	b.WriteLenBytes(nil)
	b.WriteLenBytes([]byte{})
	b.WriteLenBytes([]byte{9})

	r := NewReader(b.Bytes(), 0, NoLimits())
	p, err := r.ReadLenBytes(math.MaxUint32, "byte array")
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = r.ReadLenBytes(math.MaxUint32, "byte array")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Empty(t, p)

	p, err = r.ReadLenBytes(math.MaxUint32, "byte array")
	require.NoError(t, err)
	assert.Equal(t, []byte{9}, p)
}

func TestReaderEndOfStream(t *testing.T) {
	r := NewReader([]byte{1}, 0, NoLimits())
	_, err := r.ReadUint32()
	assert.ErrorIs(t, err, ErrEndOfStream)
}

func TestReaderStringLimit(t *testing.T) {
	b := NewBuffer(nil, 0)
	b.WriteLenString("this string is far too long")

	limits := NoLimits()
	limits.MaxStringLength = 4
	r := NewReader(b.Bytes(), 0, limits)
	_, err := r.ReadLenString()
	assert.ErrorIs(t, err, ErrMaliciousInput)
}

func TestReaderDeclaredLengthBeyondInput(t *testing.T) {
	// A prefix declaring far more bytes than the stream holds must fail
	// before any proportional allocation.
	b := NewBuffer(nil, 0)
	b.WriteVarUint(1_000_001)
	r := NewReader(b.Bytes(), 0, NoLimits())
	_, err := r.ReadLenBytes(math.MaxUint32, "byte array")
	assert.ErrorIs(t, err, ErrEndOfStream)
}

func TestReaderVarintOverflow(t *testing.T) {
	r := NewReader([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x01}, 0, NoLimits())
	_, err := r.ReadVarUint()
	assert.ErrorIs(t, err, ErrMaliciousInput)
}
