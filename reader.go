package seria

import (
	"math"

	"github.com/cockroachdb/errors"
)

// Reader is a bounds-checked read cursor over an immutable byte slice.
// Every length-prefixed construct is validated against the configured size
// limits before any allocation proportional to the declared size. Decoded
// values never alias the input buffer; strings and byte runs are copied out.
type Reader struct {
	B      []byte
	N      int
	Limits SizeLimits
}

// NewReader creates a Reader resuming at the given offset.
func NewReader(b []byte, offset int, limits SizeLimits) *Reader {
	return &Reader{B: b, N: offset, Limits: limits}
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	n := len(r.B) - r.N
	if n < 0 {
		return 0
	}
	return n
}

// need returns the next n bytes without copying, or ErrEndOfStream.
func (r *Reader) need(n int) ([]byte, error) {
	if n < 0 || r.N+n > len(r.B) {
		return nil, errors.Wrapf(ErrEndOfStream, "need %d bytes at offset %d of %d", n, r.N, len(r.B))
	}
	p := r.B[r.N : r.N+n]
	r.N += n
	return p, nil
}

// Skip advances the cursor by n bytes.
func (r *Reader) Skip(n int) error {
	_, err := r.need(n)
	return err
}

func (r *Reader) ReadByte() (byte, error) {
	p, err := r.need(1)
	if err != nil {
		return 0, err
	}
	return p[0], nil
}

func (r *Reader) ReadBool() (bool, error) {
	b, err := r.ReadByte()
	return b != 0, err
}

// ReadBytes returns a copy of the next n bytes.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	p, err := r.need(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, p)
	return out, nil
}

// ReadInto fills dst from the stream without allocating.
func (r *Reader) ReadInto(dst []byte) error {
	p, err := r.need(len(dst))
	if err != nil {
		return err
	}
	copy(dst, p)
	return nil
}

func (r *Reader) ReadUint16() (uint16, error) {
	p, err := r.need(2)
	if err != nil {
		return 0, err
	}
	return Order.Uint16(p), nil
}

func (r *Reader) ReadInt16() (int16, error) {
	v, err := r.ReadUint16()
	return int16(v), err
}

func (r *Reader) ReadUint32() (uint32, error) {
	p, err := r.need(4)
	if err != nil {
		return 0, err
	}
	return Order.Uint32(p), nil
}

func (r *Reader) ReadUint64() (uint64, error) {
	p, err := r.need(8)
	if err != nil {
		return 0, err
	}
	return Order.Uint64(p), nil
}

func (r *Reader) ReadFloat32() (float32, error) {
	v, err := r.ReadUint32()
	return math.Float32frombits(v), err
}

func (r *Reader) ReadFloat64() (float64, error) {
	v, err := r.ReadUint64()
	return math.Float64frombits(v), err
}

// ReadVarUint reads a LEB128 value. Encodings longer than 10 bytes or with
// overflowing continuation are rejected as hostile input.
func (r *Reader) ReadVarUint() (uint64, error) {
	var v uint64
	var shift uint
	for i := 0; i < 10; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		if shift == 63 && b > 1 {
			return 0, errors.Wrap(ErrMaliciousInput, "varint overflow")
		}
		v |= uint64(b&0x7f) << shift
		if b < 0x80 {
			return v, nil
		}
		shift += 7
	}
	return 0, errors.Wrap(ErrMaliciousInput, "varint too long")
}

// ReadVarInt reads a zigzag-encoded value.
func (r *Reader) ReadVarInt() (int64, error) {
	u, err := r.ReadVarUint()
	return unzigzag(u), err
}

// readLen decodes a nil-aware length prefix and validates it against both the
// given limit and the remaining input. The bool result reports nil.
func (r *Reader) readLen(limit uint32, what string) (int, bool, error) {
	u, err := r.ReadVarUint()
	if err != nil {
		return 0, false, err
	}
	if u == 0 {
		return 0, true, nil
	}
	n := u - 1
	if n > uint64(limit) {
		return 0, false, errors.Wrapf(ErrMaliciousInput, "%s length %d exceeds limit %d", what, n, limit)
	}
	if n > uint64(r.Remaining()) {
		return 0, false, errors.Wrapf(ErrEndOfStream, "%s length %d exceeds remaining %d", what, n, r.Remaining())
	}
	return int(n), false, nil
}

// ReadLenBytes reads a nil-aware, length-prefixed byte run as a fresh slice.
func (r *Reader) ReadLenBytes(limit uint32, what string) ([]byte, error) {
	n, isNil, err := r.readLen(limit, what)
	if err != nil || isNil {
		return nil, err
	}
	return r.ReadBytes(n)
}

// ReadLenString reads a length-prefixed string, bounded by MaxStringLength.
func (r *Reader) ReadLenString() (string, error) {
	n, isNil, err := r.readLen(r.Limits.MaxStringLength, "string")
	if err != nil {
		return "", err
	}
	if isNil {
		// Strings are written with a len+1 prefix, a zero prefix is a
		// malformed stream rather than a nil value.
		return "", errors.Wrap(ErrMaliciousInput, "nil string prefix")
	}
	p, err := r.need(n)
	if err != nil {
		return "", err
	}
	return string(p), nil
}
