package seria

import (
	"reflect"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
)

// SchemaMember is one position in a schema: the persistent name, and either
// the resolved member it binds to or a skip marker when the name resolves to
// nothing on the current type. A writer never emits skip members; they only
// arise from read-side reconciliation.
type SchemaMember struct {
	PersistentName string
	IsSkip         bool
	Member         *memberInfo
}

// Schema is the target type plus the ordered persistent names of its
// serialized members, exactly as persisted in a stream. Immutable once
// published to a schema formatter; the member order defines the wire order.
type Schema struct {
	Type    reflect.Type
	Members []SchemaMember

	key string
}

// Key is the structural identity used to cache compiled formatters: same
// type, same ordered persistent names, same skip flags.
func (s *Schema) Key() string {
	if s.key == "" {
		var b strings.Builder
		b.WriteString(s.Type.String())
		for _, m := range s.Members {
			b.WriteByte('|')
			b.WriteString(m.PersistentName)
			if m.IsSkip {
				b.WriteByte('!')
			}
		}
		s.key = b.String()
	}
	return s.key
}

// PersistentNames lists the schema's member names in wire order.
func (s *Schema) PersistentNames() []string {
	return lo.Map(s.Members, func(m SchemaMember, _ int) string { return m.PersistentName })
}

// currentSchemaOf builds the write-side schema for a type from its sealed
// configuration: every selected member, in declaration order, none skipped.
func currentSchemaOf(tc *TypeConfig) (*Schema, error) {
	if err := tc.seal(); err != nil {
		return nil, err
	}
	sch := &Schema{Type: tc.typ}
	sch.Members = lo.Map(tc.members, func(m *memberInfo, _ int) SchemaMember {
		return SchemaMember{PersistentName: m.persistentName, Member: m}
	})
	return sch, nil
}

// reconcileSchema binds an ordered list of persisted names against the
// current type: names matching a member's current, persistent or alternative
// name bind to it, the rest become skip entries whose bytes the read plan
// discards via the per-member size prefix.
func reconcileSchema(tc *TypeConfig, names []string) (*Schema, error) {
	if err := tc.seal(); err != nil {
		return nil, err
	}
	sch := &Schema{Type: tc.typ, Members: make([]SchemaMember, 0, len(names))}
	for _, name := range names {
		bound := SchemaMember{PersistentName: name, IsSkip: true}
		for _, m := range tc.members {
			if m.matches(name) {
				bound = SchemaMember{PersistentName: name, Member: m}
				break
			}
		}
		sch.Members = append(sch.Members, bound)
	}
	return sch, nil
}

// writeSchemaMembers emits the member-name section of a schema: the count as
// a varuint followed by each persistent name, length-prefixed. The type
// itself is carried by the type token that precedes it.
func writeSchemaMembers(b *Buffer, sch *Schema) {
	b.WriteVarUint(uint64(len(sch.Members)))
	for _, m := range sch.Members {
		b.WriteLenString(m.PersistentName)
	}
}

// readSchemaMembers consumes the member-name section. The count is bounded by
// MaxCollectionSize; each name by MaxStringLength.
func readSchemaMembers(r *Reader) ([]string, error) {
	n, err := r.ReadVarUint()
	if err != nil {
		return nil, err
	}
	if n > uint64(r.Limits.MaxCollectionSize) {
		return nil, errors.Wrapf(ErrMaliciousInput, "schema member count %d exceeds limit %d", n, r.Limits.MaxCollectionSize)
	}
	if n > uint64(r.Remaining()) {
		return nil, errors.Wrapf(ErrEndOfStream, "schema member count %d exceeds remaining %d", n, r.Remaining())
	}
	names := make([]string, 0, n)
	for i := uint64(0); i < n; i++ {
		name, err := r.ReadLenString()
		if err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, nil
}
