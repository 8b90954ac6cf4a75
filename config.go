package seria

import (
	"math"
	"reflect"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// VersionTolerance selects whether payloads carry per-member size prefixes
// and embedded schemata so that differently-shaped readers can still parse
// the stream.
type VersionTolerance int

const (
	VersionToleranceDisabled VersionTolerance = iota
	VersionToleranceEmbedded
)

// MemberTargets selects which members of a struct participate by default.
type MemberTargets int

const (
	// TargetExportedFields serializes exported struct fields. The default.
	TargetExportedFields MemberTargets = iota
	// TargetAccessors serializes getter/setter method pairs (X() T / SetX(T)).
	TargetAccessors
	// TargetExportedFieldsAndAccessors serializes both.
	TargetExportedFieldsAndAccessors
	// TargetAll additionally serializes unexported fields, subject to the
	// readonly handling policy.
	TargetAll
)

// ReadonlyFieldHandling decides what happens to unexported fields.
type ReadonlyFieldHandling int

const (
	// ReadonlyExclude drops unexported fields from serialization.
	ReadonlyExclude ReadonlyFieldHandling = iota
	// ReadonlyMembersOnly decodes into the existing value in place without
	// replacing its identity.
	ReadonlyMembersOnly
	// ReadonlyForcedOverwrite overwrites unexported fields outright.
	ReadonlyForcedOverwrite
)

// DelegateSerialization decides whether func values may be serialized.
type DelegateSerialization int

const (
	DelegatesOff DelegateSerialization = iota
	DelegatesAllowStatic
	DelegatesAllowInstance
)

// SizeLimits are hard policy bounds enforced on read, before any allocation
// proportional to a declared size.
type SizeLimits struct {
	MaxStringLength   uint32
	MaxArraySize      uint32
	MaxByteArraySize  uint32
	MaxCollectionSize uint32
}

// NoLimits allows the full 32-bit range everywhere.
func NoLimits() SizeLimits {
	return SizeLimits{
		MaxStringLength:   math.MaxUint32,
		MaxArraySize:      math.MaxUint32,
		MaxByteArraySize:  math.MaxUint32,
		MaxCollectionSize: math.MaxUint32,
	}
}

// FormatterResolver is a user-supplied resolution callback. Returning nil
// passes resolution on to the next resolver and then to the built-ins.
type FormatterResolver func(s *Serializer, t reflect.Type) Formatter

// SerializerConfig carries every policy knob the engine consumes. A config
// and its serializer must not be shared across concurrent invocations; a
// caller wanting parallelism instantiates one serializer per worker.
type SerializerConfig struct {
	// KnownTypes is an ordered, closed list of types encoded by index rather
	// than by name. Read-only from the moment serialization begins; new types
	// may only be appended across compatible versions.
	KnownTypes []reflect.Type

	// PreserveReferences keeps reference identity (and cycles) across a
	// graph of pointers.
	PreserveReferences bool

	// RespectNonSerializedAttribute honors the `seria:"-"` struct tag.
	RespectNonSerializedAttribute bool

	VersionTolerance VersionTolerance
	DefaultTargets   MemberTargets
	ReadonlyHandling ReadonlyFieldHandling

	// EmbedChecksum prefixes every stream with a fingerprint of the protocol
	// settings, rejected on read when the ends disagree.
	EmbedChecksum bool

	// PersistTypeCache retains the type-id table (and read-side schemata)
	// across invocations. Only safe for paired stateful endpoints.
	PersistTypeCache bool

	// SealTypesWhenUsingKnownTypes rejects types outside KnownTypes at
	// runtime when KnownTypes is non-empty.
	SealTypesWhenUsingKnownTypes bool

	// SkipCompilerGeneratedFields discards blank (padding) fields.
	SkipCompilerGeneratedFields bool

	DelegateSerialization DelegateSerialization

	// UseReinterpretFormatter enables the byte-copy fast path for structs and
	// arrays free of pointers. Honors native endianness.
	UseReinterpretFormatter bool

	Limits SizeLimits

	// Logger receives debug diagnostics for type configuration and schema
	// compilation. Nil means no logging.
	Logger *zap.Logger

	// OnResolveFormatter callbacks are consulted in insertion order before
	// any built-in formatter.
	OnResolveFormatter []FormatterResolver

	// ExternalObjectResolver, OnExternalObject and DiscardObjectMethod hook
	// identity-based externalization and object pooling. The engine carries
	// them for the outer layers; it does not implement their behavior.
	ExternalObjectResolver func(id int, t reflect.Type) (any, error)
	OnExternalObject       func(obj any)
	DiscardObjectMethod    func(obj any)

	// TypeBinder maps runtime types to persistent names and back. Nil means
	// a fresh RegistryBinder.
	TypeBinder TypeBinder

	onConfigNewType func(*TypeConfig)
	delegates       *delegateRegistry
}

// DefaultConfig mirrors the documented defaults.
func DefaultConfig() *SerializerConfig {
	return &SerializerConfig{
		PreserveReferences:            true,
		RespectNonSerializedAttribute: true,
		VersionTolerance:              VersionToleranceDisabled,
		DefaultTargets:                TargetExportedFields,
		ReadonlyHandling:              ReadonlyExclude,
		SealTypesWhenUsingKnownTypes:  true,
		SkipCompilerGeneratedFields:   true,
		DelegateSerialization:         DelegatesOff,
		UseReinterpretFormatter:       true,
		Limits:                        NoLimits(),
	}
}

// SetOnConfigNewType installs the first-touch callback fired exactly once per
// type when the engine encounters it without prior configuration. The slot is
// single-assignment: once a callback is installed, any further call fails
// with ErrConfigurationConflict, even one passing the same func.
func (c *SerializerConfig) SetOnConfigNewType(fn func(*TypeConfig)) error {
	if c.onConfigNewType != nil {
		return errors.Wrap(ErrConfigurationConflict, "OnConfigNewType")
	}
	c.onConfigNewType = fn
	return nil
}

// RegisterDelegate registers a top-level func under a persistent name so that
// func-typed members can be encoded by name. Serialization of registered
// plain funcs requires DelegatesAllowStatic or above.
func (c *SerializerConfig) RegisterDelegate(name string, fn any) error {
	return c.delegateRegistry().register(name, fn, false)
}

// RegisterBoundDelegate registers a closure or bound method. Serializing it
// requires DelegatesAllowInstance.
func (c *SerializerConfig) RegisterBoundDelegate(name string, fn any) error {
	return c.delegateRegistry().register(name, fn, true)
}

func (c *SerializerConfig) delegateRegistry() *delegateRegistry {
	if c.delegates == nil {
		c.delegates = newDelegateRegistry()
	}
	return c.delegates
}

func (c *SerializerConfig) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}
