package seria

import (
	"reflect"

	"github.com/cockroachdb/errors"
	"github.com/puzpuzpuz/xsync/v4"
)

// reinterpretCache records which types qualify for the byte-copy fast path.
// Eligibility is a pure property of the type, so the cache is process-wide
// and concurrent.
var reinterpretCache = xsync.NewMap[reflect.Type, bool]()

// canReinterpret reports whether values of t may be copied byte for byte:
// composite value types containing no pointers, slices, maps, strings,
// interfaces, channels or funcs. The copy observes native endianness.
func canReinterpret(t reflect.Type) bool {
	if ok, hit := reinterpretCache.Load(t); hit {
		return ok
	}
	ok := reinterpretEligible(t)
	reinterpretCache.Store(t, ok)
	return ok
}

func reinterpretEligible(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64, reflect.Int,
		reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uint,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return true
	case reflect.Array:
		return reinterpretEligible(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if !reinterpretEligible(t.Field(i).Type) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// reinterpretFormatter copies a value's memory verbatim. The fastest path the
// engine has, and the only one that does not normalize endianness; using it
// across heterogeneous architectures is the caller's responsibility.
type reinterpretFormatter struct {
	size int
}

func newReinterpretFormatter(t reflect.Type) *reinterpretFormatter {
	return &reinterpretFormatter{size: int(t.Size())}
}

func (f *reinterpretFormatter) Write(_ *state, b *Buffer, v reflect.Value) error {
	if f.size == 0 {
		return nil
	}
	b.WriteBytes(rawBytes(addressable(v)))
	return nil
}

func (f *reinterpretFormatter) Read(_ *state, r *Reader, v reflect.Value) error {
	if f.size == 0 {
		return nil
	}
	if !v.CanAddr() {
		return errors.Wrapf(ErrSchemaMismatch, "reinterpret target %s is not addressable", v.Type())
	}
	return r.ReadInto(rawBytes(v))
}
