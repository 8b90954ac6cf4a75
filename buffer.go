package seria

import (
	"encoding/binary"
	"math"
)

// Order is the byte order of every fixed-width integer in the format.
// The reinterpret fast path is the only exception; it honors native
// endianness.
var Order = binary.LittleEndian

// Buffer is a growable write cursor over a caller-supplied byte slice.
// Writes never fail: the backing slice is grown in place when needed and
// handed back to the caller through the advancing offset.
type Buffer struct {
	B []byte // backing store, len(B) is the high-water mark
	N int    // current write position
}

// NewBuffer creates a Buffer resuming at the given offset.
func NewBuffer(b []byte, offset int) *Buffer {
	return &Buffer{B: b, N: offset}
}

// grow extends the backing slice by n bytes at the write position and
// returns the window to write into.
func (b *Buffer) grow(n int) []byte {
	end := b.N + n
	if end > len(b.B) {
		if end > cap(b.B) {
			nb := make([]byte, end, max(end, 2*cap(b.B)+64))
			copy(nb, b.B)
			b.B = nb
		} else {
			b.B = b.B[:end]
		}
	}
	p := b.B[b.N:end]
	b.N = end
	return p
}

// Reserve skips n bytes and returns their position so the caller can patch
// them later. The reserved bytes are zeroed.
func (b *Buffer) Reserve(n int) int {
	pos := b.N
	clear(b.grow(n))
	return pos
}

// PatchInt16 writes v at a previously reserved position.
func (b *Buffer) PatchInt16(pos int, v int16) {
	Order.PutUint16(b.B[pos:pos+2], uint16(v))
}

// Bytes returns the written prefix of the backing slice.
func (b *Buffer) Bytes() []byte { return b.B[:b.N] }

// Len returns the current write position.
func (b *Buffer) Len() int { return b.N }

func (b *Buffer) WriteByte(v byte) {
	b.grow(1)[0] = v
}

func (b *Buffer) WriteBool(v bool) {
	if v {
		b.WriteByte(1)
	} else {
		b.WriteByte(0)
	}
}

func (b *Buffer) WriteBytes(p []byte) {
	copy(b.grow(len(p)), p)
}

func (b *Buffer) WriteRawString(s string) {
	copy(b.grow(len(s)), s)
}

func (b *Buffer) WriteUint16(v uint16) {
	Order.PutUint16(b.grow(2), v)
}

func (b *Buffer) WriteUint32(v uint32) {
	Order.PutUint32(b.grow(4), v)
}

func (b *Buffer) WriteUint64(v uint64) {
	Order.PutUint64(b.grow(8), v)
}

func (b *Buffer) WriteFloat32(v float32) {
	b.WriteUint32(math.Float32bits(v))
}

func (b *Buffer) WriteFloat64(v float64) {
	b.WriteUint64(math.Float64bits(v))
}

// WriteVarUint writes v in LEB128 form, 1-10 bytes.
func (b *Buffer) WriteVarUint(v uint64) {
	for v >= 0x80 {
		b.WriteByte(byte(v) | 0x80)
		v >>= 7
	}
	b.WriteByte(byte(v))
}

// WriteVarInt writes v zigzag-encoded.
func (b *Buffer) WriteVarInt(v int64) {
	b.WriteVarUint(zigzag(v))
}

// WriteLenBytes writes p with a nil-aware length prefix: 0 encodes a nil
// slice, n+1 encodes n payload bytes.
func (b *Buffer) WriteLenBytes(p []byte) {
	if p == nil {
		b.WriteByte(0)
		return
	}
	b.WriteVarUint(uint64(len(p)) + 1)
	b.WriteBytes(p)
}

// WriteLenString writes s with the same prefix scheme; a string is never nil,
// so the prefix is always len+1.
func (b *Buffer) WriteLenString(s string) {
	b.WriteVarUint(uint64(len(s)) + 1)
	b.WriteRawString(s)
}
