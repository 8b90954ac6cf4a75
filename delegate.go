package seria

import (
	"reflect"

	"github.com/cockroachdb/errors"
)

// delegateRegistry maps persistent names to registered func values and back.
// Funcs travel by name only; the reader side must hold the same
// registrations. Bound entries (closures, method values) are gated behind
// DelegatesAllowInstance.
type delegateRegistry struct {
	byName map[string]registeredDelegate
	byCode map[uintptr]registeredDelegate
}

type registeredDelegate struct {
	name  string
	fn    reflect.Value
	bound bool
}

func newDelegateRegistry() *delegateRegistry {
	return &delegateRegistry{
		byName: map[string]registeredDelegate{},
		byCode: map[uintptr]registeredDelegate{},
	}
}

func (d *delegateRegistry) register(name string, fn any, bound bool) error {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return errors.Wrapf(ErrDelegateNotAllowed, "%q is not a func", name)
	}
	if prev, ok := d.byName[name]; ok && prev.fn.Pointer() != v.Pointer() {
		return errors.Wrapf(ErrConfigurationConflict, "delegate name %q already registered", name)
	}
	reg := registeredDelegate{name: name, fn: v, bound: bound}
	d.byName[name] = reg
	d.byCode[v.Pointer()] = reg
	return nil
}

// delegateFormatter encodes func members by registered name.
type delegateFormatter struct {
	mode DelegateSerialization
	reg  *delegateRegistry
}

func (f *delegateFormatter) Write(_ *state, b *Buffer, v reflect.Value) error {
	if v.IsNil() {
		b.WriteByte(0)
		return nil
	}
	reg, ok := f.reg.byCode[v.Pointer()]
	if !ok {
		return errors.Wrapf(ErrDelegateNotAllowed, "func %s is not registered", v.Type())
	}
	if reg.bound && f.mode != DelegatesAllowInstance {
		return errors.Wrapf(ErrDelegateNotAllowed, "bound delegate %q requires DelegatesAllowInstance", reg.name)
	}
	b.WriteLenString(reg.name)
	return nil
}

func (f *delegateFormatter) Read(_ *state, r *Reader, v reflect.Value) error {
	first, err := r.ReadByte()
	if err != nil {
		return err
	}
	if first == 0 {
		v.SetZero()
		return nil
	}
	r.N-- // the prefix was a real length, reread it as one
	name, err := r.ReadLenString()
	if err != nil {
		return err
	}
	reg, ok := f.reg.byName[name]
	if !ok {
		return errors.Wrapf(ErrUnknownType, "delegate name %q is not registered", name)
	}
	if reg.bound && f.mode != DelegatesAllowInstance {
		return errors.Wrapf(ErrDelegateNotAllowed, "bound delegate %q requires DelegatesAllowInstance", name)
	}
	if !reg.fn.Type().AssignableTo(v.Type()) {
		return errors.Wrapf(ErrSchemaMismatch, "delegate %q is %s, want %s", name, reg.fn.Type(), v.Type())
	}
	v.Set(reg.fn)
	return nil
}
