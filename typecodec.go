package seria

import (
	"reflect"

	"github.com/cockroachdb/errors"
)

// Type token values. Non-negative tokens index the combined table: the
// KnownTypes prefix first, then types cached in order of first appearance.
const (
	tokenNil     = -1
	tokenNewType = -2
)

// typeTable is the per-invocation (or, with PersistTypeCache, per-serializer)
// bidirectional type-id table. The KnownTypes prefix is stable; dynamic
// entries append in order of first appearance on both ends, which keeps the
// tables in lockstep.
type typeTable struct {
	byType map[reflect.Type]int
	types  []reflect.Type
}

func newTypeTable(known []reflect.Type) *typeTable {
	t := &typeTable{byType: make(map[reflect.Type]int, len(known))}
	for _, kt := range known {
		t.add(kt)
	}
	return t
}

func (t *typeTable) add(typ reflect.Type) int {
	id := len(t.types)
	t.types = append(t.types, typ)
	t.byType[typ] = id
	return id
}

func (t *typeTable) reset(known []reflect.Type) {
	t.types = t.types[:0]
	clear(t.byType)
	for _, kt := range known {
		t.add(kt)
	}
}

// writeType encodes a type identity: an index for table hits, or a new-type
// marker plus the binder's persistent name. Reports whether the type was new
// to the stream.
func (s *Serializer) writeType(st *state, b *Buffer, t reflect.Type) (isNew bool, err error) {
	if id, ok := st.wtypes.byType[t]; ok {
		b.WriteVarInt(int64(id))
		return false, nil
	}
	if s.sealedTypes {
		return false, errors.Wrapf(ErrUnknownType, "type %s is not in KnownTypes", t)
	}
	name, err := s.binder.NameFor(t)
	if err != nil {
		return false, err
	}
	b.WriteVarInt(tokenNewType)
	b.WriteLenString(name)
	st.wtypes.add(t)
	return true, nil
}

// readType decodes a type identity and mirrors the writer's table growth.
func (s *Serializer) readType(st *state, r *Reader) (t reflect.Type, isNew bool, err error) {
	tok, err := r.ReadVarInt()
	if err != nil {
		return nil, false, err
	}
	switch {
	case tok == tokenNil:
		return nil, false, nil
	case tok >= 0:
		if tok >= int64(len(st.rtypes.types)) {
			return nil, false, errors.Wrapf(ErrUnknownType, "type id %d outside table of %d", tok, len(st.rtypes.types))
		}
		return st.rtypes.types[tok], false, nil
	case tok == tokenNewType:
		if s.sealedTypes {
			return nil, false, errors.Wrap(ErrUnknownType, "named type in sealed-types stream")
		}
		name, err := r.ReadLenString()
		if err != nil {
			return nil, false, err
		}
		t, err := s.binder.TypeFor(name)
		if err != nil {
			return nil, false, err
		}
		st.rtypes.add(t)
		return t, true, nil
	default:
		return nil, false, errors.Wrapf(ErrMaliciousInput, "type token %d", tok)
	}
}

// writeTypeAndSchema writes the type token and, for version-tolerant struct
// types, the schema member names right after the type's first appearance in
// the stream. Emission is keyed by the written-schemata set rather than by
// token newness: a KnownTypes index is never "new" yet its schema must still
// travel once. With PersistTypeCache the set survives invocations together
// with the type table, and the schema is emitted once per endpoint pairing.
func (s *Serializer) writeTypeAndSchema(st *state, b *Buffer, t reflect.Type) error {
	if _, err := s.writeType(st, b, t); err != nil {
		return err
	}
	if s.versioned(t) && !st.schemaWritten[t] {
		sch, err := s.currentSchema(t)
		if err != nil {
			return err
		}
		writeSchemaMembers(b, sch)
		st.schemaWritten[t] = true
	}
	return nil
}

// readTypeAndSchema mirrors writeTypeAndSchema: the first occurrence of a
// version-tolerant struct type is followed by its schema, which is reconciled
// against the local type and cached for the rest of the invocation.
func (s *Serializer) readTypeAndSchema(st *state, r *Reader) (reflect.Type, error) {
	t, _, err := s.readType(st, r)
	if err != nil || t == nil {
		return t, err
	}
	if s.versioned(t) && st.schemaRead[t] == nil {
		names, err := readSchemaMembers(r)
		if err != nil {
			return nil, err
		}
		sch, err := reconcileSchema(s.typeConfigs.usageLookup(t), names)
		if err != nil {
			return nil, err
		}
		s.logSchemaReconciled(t, sch)
		st.schemaRead[t] = sch
	}
	return t, nil
}

// versioned reports whether values of t carry embedded schemata and
// per-member size prefixes. Self-marshaling structs stay opaque blobs even in
// version-tolerant mode; their evolution story is their own.
func (s *Serializer) versioned(t reflect.Type) bool {
	if s.cfg.VersionTolerance != VersionToleranceEmbedded || t.Kind() != reflect.Struct {
		return false
	}
	return !(t.Implements(binaryMarshalerType) && reflect.PointerTo(t).Implements(binaryUnmarshalerType))
}
