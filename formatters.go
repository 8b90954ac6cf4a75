package seria

import (
	"encoding"
	"reflect"

	"github.com/cockroachdb/errors"
)

// primitiveFormatter covers every numeric kind and bool. Widths up to 32 bits
// are fixed little-endian; 64-bit and platform-sized integers travel as
// varints (zigzag-mapped when signed) so streams stay portable across word
// sizes.
type primitiveFormatter struct {
	kind reflect.Kind
}

func (f *primitiveFormatter) Write(_ *state, b *Buffer, v reflect.Value) error {
	switch f.kind {
	case reflect.Bool:
		b.WriteBool(v.Bool())
	case reflect.Int8:
		b.WriteByte(byte(v.Int()))
	case reflect.Int16:
		b.WriteUint16(uint16(v.Int()))
	case reflect.Int32:
		b.WriteUint32(uint32(v.Int()))
	case reflect.Int, reflect.Int64:
		b.WriteVarInt(v.Int())
	case reflect.Uint8:
		b.WriteByte(byte(v.Uint()))
	case reflect.Uint16:
		b.WriteUint16(uint16(v.Uint()))
	case reflect.Uint32:
		b.WriteUint32(uint32(v.Uint()))
	case reflect.Uint, reflect.Uint64:
		b.WriteVarUint(v.Uint())
	case reflect.Float32:
		b.WriteFloat32(float32(v.Float()))
	case reflect.Float64:
		b.WriteFloat64(v.Float())
	case reflect.Complex64:
		c := v.Complex()
		b.WriteFloat32(float32(real(c)))
		b.WriteFloat32(float32(imag(c)))
	case reflect.Complex128:
		c := v.Complex()
		b.WriteFloat64(real(c))
		b.WriteFloat64(imag(c))
	default:
		return errors.Wrapf(ErrUnknownType, "unsupported primitive kind %s", f.kind)
	}
	return nil
}

func (f *primitiveFormatter) Read(_ *state, r *Reader, v reflect.Value) error {
	switch f.kind {
	case reflect.Bool:
		x, err := r.ReadBool()
		if err != nil {
			return err
		}
		v.SetBool(x)
	case reflect.Int8:
		x, err := r.ReadByte()
		if err != nil {
			return err
		}
		v.SetInt(int64(int8(x)))
	case reflect.Int16:
		x, err := r.ReadInt16()
		if err != nil {
			return err
		}
		v.SetInt(int64(x))
	case reflect.Int32:
		x, err := r.ReadUint32()
		if err != nil {
			return err
		}
		v.SetInt(int64(int32(x)))
	case reflect.Int, reflect.Int64:
		x, err := r.ReadVarInt()
		if err != nil {
			return err
		}
		v.SetInt(x)
	case reflect.Uint8:
		x, err := r.ReadByte()
		if err != nil {
			return err
		}
		v.SetUint(uint64(x))
	case reflect.Uint16:
		x, err := r.ReadUint16()
		if err != nil {
			return err
		}
		v.SetUint(uint64(x))
	case reflect.Uint32:
		x, err := r.ReadUint32()
		if err != nil {
			return err
		}
		v.SetUint(uint64(x))
	case reflect.Uint, reflect.Uint64:
		x, err := r.ReadVarUint()
		if err != nil {
			return err
		}
		v.SetUint(x)
	case reflect.Float32:
		x, err := r.ReadFloat32()
		if err != nil {
			return err
		}
		v.SetFloat(float64(x))
	case reflect.Float64:
		x, err := r.ReadFloat64()
		if err != nil {
			return err
		}
		v.SetFloat(x)
	case reflect.Complex64:
		re, err := r.ReadFloat32()
		if err != nil {
			return err
		}
		im, err := r.ReadFloat32()
		if err != nil {
			return err
		}
		v.SetComplex(complex(float64(re), float64(im)))
	case reflect.Complex128:
		re, err := r.ReadFloat64()
		if err != nil {
			return err
		}
		im, err := r.ReadFloat64()
		if err != nil {
			return err
		}
		v.SetComplex(complex(re, im))
	default:
		return errors.Wrapf(ErrUnknownType, "unsupported primitive kind %s", f.kind)
	}
	return nil
}

type stringFormatter struct{}

func (stringFormatter) Write(_ *state, b *Buffer, v reflect.Value) error {
	b.WriteLenString(v.String())
	return nil
}

func (stringFormatter) Read(_ *state, r *Reader, v reflect.Value) error {
	s, err := r.ReadLenString()
	if err != nil {
		return err
	}
	v.SetString(s)
	return nil
}

// byteSliceFormatter handles []byte with the byte-array size limit.
type byteSliceFormatter struct{}

func (byteSliceFormatter) Write(_ *state, b *Buffer, v reflect.Value) error {
	b.WriteLenBytes(v.Bytes())
	return nil
}

func (byteSliceFormatter) Read(_ *state, r *Reader, v reflect.Value) error {
	p, err := r.ReadLenBytes(r.Limits.MaxByteArraySize, "byte array")
	if err != nil {
		return err
	}
	v.SetBytes(p)
	return nil
}

// sliceFormatter handles every non-byte slice with a nil-aware count prefix
// and the non-byte array size limit.
type sliceFormatter struct {
	elemFmt  Formatter
	elemSize uintptr
}

func (f *sliceFormatter) Write(st *state, b *Buffer, v reflect.Value) error {
	if v.IsNil() {
		b.WriteByte(0)
		return nil
	}
	n := v.Len()
	b.WriteVarUint(uint64(n) + 1)
	for i := 0; i < n; i++ {
		if err := f.elemFmt.Write(st, b, v.Index(i)); err != nil {
			return err
		}
	}
	return nil
}

func (f *sliceFormatter) Read(st *state, r *Reader, v reflect.Value) error {
	u, err := r.ReadVarUint()
	if err != nil {
		return err
	}
	if u == 0 {
		v.SetZero()
		return nil
	}
	n := u - 1
	if n > uint64(r.Limits.MaxArraySize) {
		return errors.Wrapf(ErrMaliciousInput, "array length %d exceeds limit %d", n, r.Limits.MaxArraySize)
	}
	if f.elemSize > 0 && n > uint64(r.Remaining()) {
		return errors.Wrapf(ErrEndOfStream, "array length %d exceeds remaining %d", n, r.Remaining())
	}
	out := reflect.MakeSlice(v.Type(), int(n), int(n))
	for i := 0; i < int(n); i++ {
		if err := f.elemFmt.Read(st, r, out.Index(i)); err != nil {
			return err
		}
	}
	v.Set(out)
	return nil
}

// arrayFormatter writes fixed-length arrays element by element with no count;
// the length is part of the type.
type arrayFormatter struct {
	elemFmt Formatter
}

func (f *arrayFormatter) Write(st *state, b *Buffer, v reflect.Value) error {
	for i := 0; i < v.Len(); i++ {
		if err := f.elemFmt.Write(st, b, v.Index(i)); err != nil {
			return err
		}
	}
	return nil
}

func (f *arrayFormatter) Read(st *state, r *Reader, v reflect.Value) error {
	for i := 0; i < v.Len(); i++ {
		if err := f.elemFmt.Read(st, r, v.Index(i)); err != nil {
			return err
		}
	}
	return nil
}

// mapFormatter handles mappings (and set-shaped map[K]struct{} types) with a
// nil-aware count prefix and the collection size limit.
type mapFormatter struct {
	keyFmt  Formatter
	elemFmt Formatter
}

func (f *mapFormatter) Write(st *state, b *Buffer, v reflect.Value) error {
	if v.IsNil() {
		b.WriteByte(0)
		return nil
	}
	b.WriteVarUint(uint64(v.Len()) + 1)
	iter := v.MapRange()
	for iter.Next() {
		// Map entries are not addressable; copies keep unexported-member and
		// reinterpret access working on both sides of the entry.
		if err := f.keyFmt.Write(st, b, addressable(iter.Key())); err != nil {
			return err
		}
		if err := f.elemFmt.Write(st, b, addressable(iter.Value())); err != nil {
			return err
		}
	}
	return nil
}

func (f *mapFormatter) Read(st *state, r *Reader, v reflect.Value) error {
	u, err := r.ReadVarUint()
	if err != nil {
		return err
	}
	if u == 0 {
		v.SetZero()
		return nil
	}
	n := u - 1
	if n > uint64(r.Limits.MaxCollectionSize) {
		return errors.Wrapf(ErrMaliciousInput, "collection length %d exceeds limit %d", n, r.Limits.MaxCollectionSize)
	}
	if n > uint64(r.Remaining()) {
		return errors.Wrapf(ErrEndOfStream, "collection length %d exceeds remaining %d", n, r.Remaining())
	}
	mt := v.Type()
	out := reflect.MakeMapWithSize(mt, int(n))
	for i := uint64(0); i < n; i++ {
		key := reflect.New(mt.Key()).Elem()
		if err := f.keyFmt.Read(st, r, key); err != nil {
			return err
		}
		val := reflect.New(mt.Elem()).Elem()
		if err := f.elemFmt.Read(st, r, val); err != nil {
			return err
		}
		out.SetMapIndex(key, val)
	}
	v.Set(out)
	return nil
}

var (
	binaryMarshalerType   = reflect.TypeOf((*encoding.BinaryMarshaler)(nil)).Elem()
	binaryUnmarshalerType = reflect.TypeOf((*encoding.BinaryUnmarshaler)(nil)).Elem()
)

// binaryMarshalerFormatter defers to a type's own BinaryMarshaler pair,
// storing the blob length-prefixed so version-tolerant readers can skip it.
// This is how opaque stdlib types such as time.Time travel.
type binaryMarshalerFormatter struct{}

func (binaryMarshalerFormatter) Write(_ *state, b *Buffer, v reflect.Value) error {
	m, ok := addressable(v).Addr().Interface().(encoding.BinaryMarshaler)
	if !ok {
		return errors.Wrapf(ErrUnknownType, "%s does not implement BinaryMarshaler", v.Type())
	}
	blob, err := m.MarshalBinary()
	if err != nil {
		return err
	}
	b.WriteLenBytes(blob)
	return nil
}

func (binaryMarshalerFormatter) Read(_ *state, r *Reader, v reflect.Value) error {
	blob, err := r.ReadLenBytes(r.Limits.MaxByteArraySize, "binary blob")
	if err != nil {
		return err
	}
	u, ok := v.Addr().Interface().(encoding.BinaryUnmarshaler)
	if !ok {
		return errors.Wrapf(ErrUnknownType, "%s does not implement BinaryUnmarshaler", v.Type())
	}
	return u.UnmarshalBinary(blob)
}
