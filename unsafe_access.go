package seria

import (
	"reflect"
	"unsafe"
)

// exposeField lifts the read/write restrictions from an addressable
// unexported field by re-deriving the value from its address. Exported,
// settable values pass through untouched.
func exposeField(v reflect.Value) reflect.Value {
	if v.CanSet() {
		return v
	}
	return reflect.NewAt(v.Type(), unsafe.Pointer(v.UnsafeAddr())).Elem()
}

// addressable returns v itself when addressable, otherwise a fresh
// addressable copy. Write paths need addressability for unexported member
// access and the reinterpret byte view.
func addressable(v reflect.Value) reflect.Value {
	if v.CanAddr() {
		return v
	}
	c := reflect.New(v.Type()).Elem()
	c.Set(v)
	return c
}

// rawBytes views the memory of an addressable value as a byte slice of the
// type's size. Only used by the reinterpret formatter on pointer-free types.
func rawBytes(v reflect.Value) []byte {
	size := int(v.Type().Size())
	if size == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(v.Addr().UnsafePointer()), size)
}
