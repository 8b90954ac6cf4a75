package seria

import "github.com/cockroachdb/errors"

var (
	// ErrConfigurationConflict indicates a double-assignment of a
	// single-assignment hook such as OnConfigNewType.
	ErrConfigurationConflict = errors.New("seria: configuration hook is already assigned")

	// ErrConfigurationLocked indicates that a TypeConfig was mutated after
	// the serializer sealed it or first ran. SerializerConfig setters are not
	// checked.
	ErrConfigurationLocked = errors.New("seria: configuration is locked after first use")

	// ErrUnknownType indicates a runtime type outside the KnownTypes set while
	// sealed-type mode is active, or a persisted type name the TypeBinder
	// cannot resolve.
	ErrUnknownType = errors.New("seria: unknown type")

	// ErrMaliciousInput indicates a declared length that exceeds its
	// configured size limit, or a negative length read from the stream.
	// The check runs before any allocation proportional to the declared size.
	ErrMaliciousInput = errors.New("seria: declared size exceeds configured limit")

	// ErrSchemaMismatch indicates a member whose persisted bytes cannot be
	// decoded against the current type.
	ErrSchemaMismatch = errors.New("seria: schema mismatch")

	// ErrDelegateNotAllowed indicates a func value encountered while the
	// active DelegateSerialization mode forbids it.
	ErrDelegateNotAllowed = errors.New("seria: delegate serialization not allowed")

	// ErrChecksumMismatch indicates that EmbedChecksum is enabled and the
	// stream prefix does not match the local protocol fingerprint.
	ErrChecksumMismatch = errors.New("seria: protocol checksum mismatch")

	// ErrEndOfStream indicates a read past the end of the provided buffer.
	ErrEndOfStream = errors.New("seria: unexpected end of stream")
)
