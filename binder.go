package seria

import (
	"reflect"

	"github.com/cockroachdb/errors"
	"github.com/puzpuzpuz/xsync/v4"
)

// TypeBinder maps a runtime type to the persistent string name stored in
// streams, and back. The format stores names only; producing a local type for
// a name is entirely the binder's concern.
type TypeBinder interface {
	NameFor(t reflect.Type) (string, error)
	TypeFor(name string) (reflect.Type, error)
}

// RegistryBinder is the default binder. Names can be registered explicitly;
// unregistered types fall back to their reflect string form, which is also
// recorded so that same-binder round trips resolve without registration.
// A binder may be shared between serializers, so the maps are concurrent.
type RegistryBinder struct {
	names *xsync.Map[reflect.Type, string]
	types *xsync.Map[string, reflect.Type]
}

var _ TypeBinder = (*RegistryBinder)(nil)

func NewRegistryBinder() *RegistryBinder {
	return &RegistryBinder{
		names: xsync.NewMap[reflect.Type, string](),
		types: xsync.NewMap[string, reflect.Type](),
	}
}

// Register binds a persistent name to a local type. Rebinding a name to a
// different type fails with ErrConfigurationConflict.
func (b *RegistryBinder) Register(name string, t reflect.Type) error {
	if prev, loaded := b.types.LoadOrStore(name, t); loaded && prev != t {
		return errors.Wrapf(ErrConfigurationConflict, "name %q already bound to %s", name, prev)
	}
	b.names.Store(t, name)
	return nil
}

func (b *RegistryBinder) NameFor(t reflect.Type) (string, error) {
	if name, ok := b.names.Load(t); ok {
		return name, nil
	}
	name := t.String()
	b.names.Store(t, name)
	b.types.LoadOrStore(name, t)
	return name, nil
}

func (b *RegistryBinder) TypeFor(name string) (reflect.Type, error) {
	if t, ok := b.types.Load(name); ok {
		return t, nil
	}
	return nil, errors.Wrapf(ErrUnknownType, "no type bound to name %q", name)
}
