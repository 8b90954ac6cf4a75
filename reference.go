package seria

import (
	"reflect"
	"unsafe"

	"github.com/cockroachdb/errors"
)

// Object tokens mirror the type tokens: nil, inline-new, or a back-reference
// into the per-invocation object table.
const tokenNewObject = -2

type refKey struct {
	ptr unsafe.Pointer
	typ reflect.Type
}

// referenceFormatter preserves pointer identity across a graph. The first
// occurrence of a pointer writes an inline marker and its pointee; later
// occurrences write the id it was assigned, so shared targets stay shared and
// cycles terminate. The id is assigned before the pointee is encoded, which
// is what lets a cycle refer back to an object still being written.
type referenceFormatter struct {
	elem    reflect.Type
	elemFmt Formatter
}

func (f *referenceFormatter) Write(st *state, b *Buffer, v reflect.Value) error {
	if v.IsNil() {
		b.WriteVarInt(tokenNil)
		return nil
	}
	key := refKey{ptr: v.UnsafePointer(), typ: v.Type()}
	if id, ok := st.refs[key]; ok {
		b.WriteVarInt(int64(id))
		return nil
	}
	st.refs[key] = st.nextRef
	st.nextRef++
	b.WriteVarInt(tokenNewObject)
	return f.elemFmt.Write(st, b, v.Elem())
}

func (f *referenceFormatter) Read(st *state, r *Reader, v reflect.Value) error {
	tok, err := r.ReadVarInt()
	if err != nil {
		return err
	}
	switch {
	case tok == tokenNil:
		v.SetZero()
		return nil
	case tok >= 0:
		if tok >= int64(len(st.objs)) {
			return errors.Wrapf(ErrMaliciousInput, "object backreference %d outside table of %d", tok, len(st.objs))
		}
		obj := st.objs[tok]
		if !obj.Type().AssignableTo(v.Type()) {
			return errors.Wrapf(ErrSchemaMismatch, "backreference %d is %s, want %s", tok, obj.Type(), v.Type())
		}
		v.Set(obj)
		return nil
	case tok == tokenNewObject:
		p := reflect.New(f.elem)
		// Publish before decoding the pointee so cycles resolve to p.
		st.objs = append(st.objs, p)
		if err := f.elemFmt.Read(st, r, p.Elem()); err != nil {
			return err
		}
		v.Set(p)
		return nil
	default:
		return errors.Wrapf(ErrMaliciousInput, "object token %d", tok)
	}
}

// pointerFormatter is the PreserveReferences=false rendition: a bare nil flag
// and the pointee. Shared targets duplicate and cycles do not terminate; that
// trade is the caller's to make.
type pointerFormatter struct {
	elem    reflect.Type
	elemFmt Formatter
}

func (f *pointerFormatter) Write(st *state, b *Buffer, v reflect.Value) error {
	if v.IsNil() {
		b.WriteBool(false)
		return nil
	}
	b.WriteBool(true)
	return f.elemFmt.Write(st, b, v.Elem())
}

func (f *pointerFormatter) Read(st *state, r *Reader, v reflect.Value) error {
	ok, err := r.ReadBool()
	if err != nil {
		return err
	}
	if !ok {
		v.SetZero()
		return nil
	}
	p := reflect.New(f.elem)
	if err := f.elemFmt.Read(st, r, p.Elem()); err != nil {
		return err
	}
	v.Set(p)
	return nil
}

// interfaceFormatter dispatches on the runtime type: a type token (with the
// schema piggybacked when new and version tolerance is on) followed by the
// payload of the concrete type.
type interfaceFormatter struct{}

func (interfaceFormatter) Write(st *state, b *Buffer, v reflect.Value) error {
	if v.IsNil() {
		b.WriteVarInt(tokenNil)
		return nil
	}
	dyn := v.Elem()
	if err := st.s.writeTypeAndSchema(st, b, dyn.Type()); err != nil {
		return err
	}
	f, err := st.s.writePayloadFor(dyn.Type())
	if err != nil {
		return err
	}
	return f.Write(st, b, addressable(dyn))
}

func (interfaceFormatter) Read(st *state, r *Reader, v reflect.Value) error {
	t, err := st.s.readTypeAndSchema(st, r)
	if err != nil {
		return err
	}
	if t == nil {
		v.SetZero()
		return nil
	}
	if !t.AssignableTo(v.Type()) {
		return errors.Wrapf(ErrSchemaMismatch, "%s is not assignable to %s", t, v.Type())
	}
	f, err := st.s.readPayloadFor(st, t)
	if err != nil {
		return err
	}
	out := reflect.New(t).Elem()
	if err := f.Read(st, r, out); err != nil {
		return err
	}
	v.Set(out)
	return nil
}
