package seria

import (
	"math"
	"reflect"

	"github.com/cockroachdb/errors"
)

// sizePrefixWidth is the fixed width reserved in front of every member in a
// version-tolerant payload. Fixed rather than varint so the count can be
// patched retroactively into the reserved space; signed 16-bit, which bounds
// a single member's encoding to 32767 bytes.
const sizePrefixWidth = 2

type writeStep struct {
	member *memberInfo
	fmt    Formatter
}

type readStep struct {
	skip   bool
	name   string
	member *memberInfo
	fmt    Formatter
}

// schemaFormatter is the compiled reader/writer pair for one (type, schema)
// combination. The write plan iterates the current schema's members with a
// reserved-then-patched size prefix each; the read plan follows the received
// schema, skipping vanished members by their prefix and leaving members the
// stream lacks untouched in the target. Plans are compiled once; the hot path
// runs direct invocations over the precomputed steps.
type schemaFormatter struct {
	typ       reflect.Type
	writePlan []writeStep
	readPlan  []readStep
}

// compileSchemaFormatter builds both plans from a schema. For the write side
// the schema is the type's current one; for the read side it is whatever was
// reconciled from the stream, so skip entries carry no member or formatter.
func (s *Serializer) compileSchemaFormatter(sch *Schema) (*schemaFormatter, error) {
	sf := &schemaFormatter{typ: sch.Type}
	for _, sm := range sch.Members {
		if sm.IsSkip {
			sf.readPlan = append(sf.readPlan, readStep{skip: true, name: sm.PersistentName})
			continue
		}
		f := sm.Member.explicit
		if f == nil {
			var err error
			f, err = s.formatterFor(sm.Member.typ)
			if err != nil {
				return nil, err
			}
		}
		sf.writePlan = append(sf.writePlan, writeStep{member: sm.Member, fmt: f})
		sf.readPlan = append(sf.readPlan, readStep{name: sm.PersistentName, member: sm.Member, fmt: f})
	}
	return sf, nil
}

func (sf *schemaFormatter) Write(st *state, b *Buffer, v reflect.Value) error {
	v = addressable(v)
	for _, step := range sf.writePlan {
		pos := b.Reserve(sizePrefixWidth)
		if err := step.fmt.Write(st, b, step.member.load(v)); err != nil {
			return err
		}
		size := b.N - pos - sizePrefixWidth
		if size > math.MaxInt16 {
			return errors.Wrapf(ErrSchemaMismatch,
				"member %q of %s encodes to %d bytes, above the 16-bit size prefix", step.member.persistentName, sf.typ, size)
		}
		b.PatchInt16(pos, int16(size))
	}
	return nil
}

func (sf *schemaFormatter) Read(st *state, r *Reader, v reflect.Value) error {
	for _, step := range sf.readPlan {
		size, err := r.ReadInt16()
		if err != nil {
			return err
		}
		if size < 0 {
			return errors.Wrapf(ErrMaliciousInput, "negative member size %d for %q", size, step.name)
		}
		if step.skip {
			if err := r.Skip(int(size)); err != nil {
				return err
			}
			continue
		}
		end := r.N + int(size)
		if err := step.member.store(st, r, step.fmt, v); err != nil {
			return err
		}
		if r.N != end {
			return errors.Wrapf(ErrSchemaMismatch,
				"member %q of %s consumed %d of %d bytes", step.name, sf.typ, r.N-(end-int(size)), size)
		}
	}
	return nil
}

// schemaWrapFormatter is the member-position formatter for version-tolerant
// struct types: the type token (carrying the schema on first appearance)
// followed by the schema payload. Write and read resolve the payload plan
// from the invocation state so an out-of-date stream drives the read side.
type schemaWrapFormatter struct {
	typ reflect.Type
}

func (f *schemaWrapFormatter) Write(st *state, b *Buffer, v reflect.Value) error {
	if err := st.s.writeTypeAndSchema(st, b, f.typ); err != nil {
		return err
	}
	sf, err := st.s.writePayloadFor(f.typ)
	if err != nil {
		return err
	}
	return sf.Write(st, b, v)
}

func (f *schemaWrapFormatter) Read(st *state, r *Reader, v reflect.Value) error {
	t, err := st.s.readTypeAndSchema(st, r)
	if err != nil {
		return err
	}
	if t != f.typ {
		return errors.Wrapf(ErrSchemaMismatch, "stream carries %v where %s was declared", t, f.typ)
	}
	sf, err := st.s.readPayloadFor(st, t)
	if err != nil {
		return err
	}
	return sf.Read(st, r, v)
}

// objectFormatter is the generic reflective formatter for structs outside
// version-tolerant mode: members back to back in schema order, no prefixes,
// no names.
type objectFormatter struct {
	typ   reflect.Type
	steps []writeStep
}

func (s *Serializer) compileObjectFormatter(t reflect.Type) (*objectFormatter, error) {
	sch, err := s.currentSchema(t)
	if err != nil {
		return nil, err
	}
	of := &objectFormatter{typ: t}
	for _, sm := range sch.Members {
		f := sm.Member.explicit
		if f == nil {
			f, err = s.formatterFor(sm.Member.typ)
			if err != nil {
				return nil, err
			}
		}
		of.steps = append(of.steps, writeStep{member: sm.Member, fmt: f})
	}
	return of, nil
}

func (of *objectFormatter) Write(st *state, b *Buffer, v reflect.Value) error {
	v = addressable(v)
	for _, step := range of.steps {
		if err := step.fmt.Write(st, b, step.member.load(v)); err != nil {
			return err
		}
	}
	return nil
}

func (of *objectFormatter) Read(st *state, r *Reader, v reflect.Value) error {
	for _, step := range of.steps {
		if err := step.member.store(st, r, step.fmt, v); err != nil {
			return err
		}
	}
	return nil
}
