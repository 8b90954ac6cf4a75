package seria

import "reflect"

// TypeOf is a convenience for the reflect.Type of a compile-time type,
// useful for KnownTypes lists and binder registration.
func TypeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// Marshal encodes v through s into a fresh buffer.
func Marshal[T any](s *Serializer, v T) ([]byte, error) {
	return s.Marshal(v)
}

// Unmarshal decodes a whole buffer into a fresh T.
func Unmarshal[T any](s *Serializer, data []byte) (T, error) {
	var out T
	err := s.Unmarshal(data, &out)
	return out, err
}

// ConfigTypeOf is the generic form of Serializer.ConfigType.
func ConfigTypeOf[T any](s *Serializer) *TypeConfig {
	return s.ConfigType(TypeOf[T]())
}
