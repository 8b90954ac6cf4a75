package seria

import (
	"reflect"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// formatterFor resolves the member-position formatter for a declared type,
// memoized per serializer. Construction is two-phase: a forwarder is
// published under the type first, then the real formatter is built and
// swapped in, so a type whose members transitively contain the type itself
// resolves to the forwarder instead of recursing forever.
func (s *Serializer) formatterFor(t reflect.Type) (Formatter, error) {
	if f, ok := s.formatters[t]; ok {
		return f, nil
	}
	fwd := &forwardFormatter{}
	s.formatters[t] = fwd
	f, err := s.resolveFormatter(t)
	if err != nil {
		delete(s.formatters, t)
		return nil, err
	}
	fwd.target = f
	s.formatters[t] = f
	return f, nil
}

// resolveFormatter runs the documented resolution order: user resolvers in
// insertion order, then built-ins by shape, then the generic reflective
// object formatter.
func (s *Serializer) resolveFormatter(t reflect.Type) (Formatter, error) {
	for _, resolve := range s.cfg.OnResolveFormatter {
		if f := resolve(s, t); f != nil {
			return f, nil
		}
	}

	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return &primitiveFormatter{kind: t.Kind()}, nil

	case reflect.String:
		return stringFormatter{}, nil

	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return byteSliceFormatter{}, nil
		}
		elemFmt, err := s.formatterFor(t.Elem())
		if err != nil {
			return nil, err
		}
		return &sliceFormatter{elemFmt: elemFmt, elemSize: t.Elem().Size()}, nil

	case reflect.Array:
		if s.cfg.UseReinterpretFormatter && canReinterpret(t) {
			return newReinterpretFormatter(t), nil
		}
		elemFmt, err := s.formatterFor(t.Elem())
		if err != nil {
			return nil, err
		}
		return &arrayFormatter{elemFmt: elemFmt}, nil

	case reflect.Map:
		keyFmt, err := s.formatterFor(t.Key())
		if err != nil {
			return nil, err
		}
		elemFmt, err := s.formatterFor(t.Elem())
		if err != nil {
			return nil, err
		}
		return &mapFormatter{keyFmt: keyFmt, elemFmt: elemFmt}, nil

	case reflect.Pointer:
		elemFmt, err := s.formatterFor(t.Elem())
		if err != nil {
			return nil, err
		}
		if s.cfg.PreserveReferences {
			return &referenceFormatter{elem: t.Elem(), elemFmt: elemFmt}, nil
		}
		return &pointerFormatter{elem: t.Elem(), elemFmt: elemFmt}, nil

	case reflect.Interface:
		return interfaceFormatter{}, nil

	case reflect.Func:
		if s.cfg.DelegateSerialization == DelegatesOff {
			return nil, errors.Wrapf(ErrDelegateNotAllowed, "func type %s with delegate serialization off", t)
		}
		return &delegateFormatter{mode: s.cfg.DelegateSerialization, reg: s.cfg.delegateRegistry()}, nil

	case reflect.Struct:
		s.typeConfigs.usageLookup(t)
		if reflect.PointerTo(t).Implements(binaryUnmarshalerType) && t.Implements(binaryMarshalerType) {
			return binaryMarshalerFormatter{}, nil
		}
		if s.versioned(t) {
			// Version tolerance takes the schema path even for pointer-free
			// structs; the reinterpret layout cannot evolve.
			return &schemaWrapFormatter{typ: t}, nil
		}
		if s.cfg.UseReinterpretFormatter && canReinterpret(t) {
			return newReinterpretFormatter(t), nil
		}
		return s.payloadFormatterFor(t)

	default:
		return nil, errors.Wrapf(ErrUnknownType, "no formatter for kind %s", t.Kind())
	}
}

// payloadFormatterFor resolves the token-less payload formatter used behind a
// type token (roots, interface values, schema wrappers). For everything but
// version-tolerant structs it coincides with the member-position formatter.
func (s *Serializer) payloadFormatterFor(t reflect.Type) (Formatter, error) {
	if f, ok := s.payloads[t]; ok {
		return f, nil
	}
	fwd := &forwardFormatter{}
	s.payloads[t] = fwd
	if t.Kind() == reflect.Struct {
		// First touch of the type, even when the payload ends up opaque.
		s.typeConfigs.usageLookup(t)
	}
	var f Formatter
	var err error
	if t.Kind() == reflect.Struct && !s.structOpaque(t) {
		f, err = s.compileObjectFormatter(t)
	} else {
		f, err = s.formatterFor(t)
	}
	if err != nil {
		delete(s.payloads, t)
		return nil, err
	}
	fwd.target = f
	s.payloads[t] = f
	return f, nil
}

// structOpaque reports struct types that do not decompose into members:
// self-marshaling types and reinterpret-eligible ones outside version
// tolerance.
func (s *Serializer) structOpaque(t reflect.Type) bool {
	if reflect.PointerTo(t).Implements(binaryUnmarshalerType) && t.Implements(binaryMarshalerType) {
		return true
	}
	return !s.versioned(t) && s.cfg.UseReinterpretFormatter && canReinterpret(t)
}

// writePayloadFor selects the payload plan for writing a value of type t:
// the compiled formatter for the type's current schema when versioned,
// otherwise the plain payload formatter.
func (s *Serializer) writePayloadFor(t reflect.Type) (Formatter, error) {
	if !s.versioned(t) {
		return s.payloadFormatterFor(t)
	}
	sch, err := s.currentSchema(t)
	if err != nil {
		return nil, err
	}
	return s.schemaFormatterFor(sch)
}

// readPayloadFor selects the payload plan for reading a value of type t,
// driven by the schema captured from the stream this invocation.
func (s *Serializer) readPayloadFor(st *state, t reflect.Type) (Formatter, error) {
	if !s.versioned(t) {
		return s.payloadFormatterFor(t)
	}
	sch, ok := st.schemaRead[t]
	if !ok {
		return nil, errors.Wrapf(ErrSchemaMismatch, "no schema received for %s", t)
	}
	return s.schemaFormatterFor(sch)
}

// schemaFormatterFor compiles (or reuses) the plan pair for one structural
// schema identity.
func (s *Serializer) schemaFormatterFor(sch *Schema) (Formatter, error) {
	if sf, ok := s.schemaFmts[sch.Key()]; ok {
		return sf, nil
	}
	sf, err := s.compileSchemaFormatter(sch)
	if err != nil {
		return nil, err
	}
	s.log.Debug("compiled schema formatter",
		zap.Stringer("type", sch.Type),
		zap.Int("members", len(sch.Members)),
		zap.Int("writable", len(sf.writePlan)))
	s.schemaFmts[sch.Key()] = sf
	return sf, nil
}

// currentSchema returns the write-side schema for a type, sealing its
// configuration on first use.
func (s *Serializer) currentSchema(t reflect.Type) (*Schema, error) {
	if sch, ok := s.currentSchemas[t]; ok {
		return sch, nil
	}
	sch, err := currentSchemaOf(s.typeConfigs.usageLookup(t))
	if err != nil {
		return nil, err
	}
	s.currentSchemas[t] = sch
	return sch, nil
}
