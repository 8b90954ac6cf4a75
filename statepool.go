package seria

import (
	"reflect"
	"sync"
)

// state is the per-invocation scratch: the reference table, the object table,
// the type-id tables and the schemata exchanged so far. Pooled so repeated
// invocations reuse the maps instead of reallocating them.
type state struct {
	s *Serializer

	refs    map[refKey]int
	nextRef int
	objs    []reflect.Value

	wtypes *typeTable
	rtypes *typeTable

	schemaWritten map[reflect.Type]bool
	schemaRead    map[reflect.Type]*Schema

	// own* are this state's private tables, swapped out for the serializer's
	// persistent ones while PersistTypeCache is active.
	ownW             *typeTable
	ownR             *typeTable
	ownSchemaWritten map[reflect.Type]bool
	ownSchemaRead    map[reflect.Type]*Schema
}

// statePool reuses invocation state across calls. The per-call cost is a
// handful of map clears instead of six allocations.
var statePool = sync.Pool{
	New: func() any {
		return &state{
			refs:             map[refKey]int{},
			ownW:             newTypeTable(nil),
			ownR:             newTypeTable(nil),
			ownSchemaWritten: map[reflect.Type]bool{},
			ownSchemaRead:    map[reflect.Type]*Schema{},
		}
	},
}

func (s *Serializer) acquireState() *state {
	st := statePool.Get().(*state)
	st.s = s
	clear(st.refs)
	st.nextRef = 0
	st.objs = st.objs[:0]

	if s.cfg.PersistTypeCache {
		st.wtypes = s.persistWrite
		st.rtypes = s.persistRead
		st.schemaWritten = s.persistSchemaWritten
		st.schemaRead = s.persistSchemaRead
		return st
	}
	st.ownW.reset(s.cfg.KnownTypes)
	st.ownR.reset(s.cfg.KnownTypes)
	clear(st.ownSchemaWritten)
	clear(st.ownSchemaRead)
	st.wtypes = st.ownW
	st.rtypes = st.ownR
	st.schemaWritten = st.ownSchemaWritten
	st.schemaRead = st.ownSchemaRead
	return st
}

func (s *Serializer) releaseState(st *state) {
	st.s = nil
	st.wtypes, st.rtypes = nil, nil
	st.schemaWritten, st.schemaRead = nil, nil
	statePool.Put(st)
}
