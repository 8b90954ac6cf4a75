package seria

import (
	"hash/crc32"
	"reflect"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// Serializer converts object graphs to compact binary buffers and back. One
// serializer serves one goroutine; the per-invocation state (reference table,
// written schemata, type cache) is not shareable. A caller wanting
// parallelism instantiates one serializer per worker.
type Serializer struct {
	cfg    *SerializerConfig
	log    *zap.Logger
	binder TypeBinder

	typeConfigs    *typeConfigRegistry
	formatters     map[reflect.Type]Formatter
	payloads       map[reflect.Type]Formatter
	schemaFmts     map[string]*schemaFormatter
	currentSchemas map[reflect.Type]*Schema

	persistWrite         *typeTable
	persistRead          *typeTable
	persistSchemaWritten map[reflect.Type]bool
	persistSchemaRead    map[reflect.Type]*Schema

	sealedTypes bool
	checksum    uint32
}

// New builds a serializer over the given config. A nil config means
// DefaultConfig. The config is adopted, not copied; it must not be mutated
// once the first Serialize or Deserialize runs.
func New(cfg *SerializerConfig) (*Serializer, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	for i, t := range cfg.KnownTypes {
		if t == nil {
			return nil, errors.Wrapf(ErrUnknownType, "KnownTypes[%d] is nil", i)
		}
	}
	binder := cfg.TypeBinder
	if binder == nil {
		binder = NewRegistryBinder()
	}
	s := &Serializer{
		cfg:            cfg,
		log:            cfg.logger(),
		binder:         binder,
		typeConfigs:    newTypeConfigRegistry(cfg),
		formatters:     map[reflect.Type]Formatter{},
		payloads:       map[reflect.Type]Formatter{},
		schemaFmts:     map[string]*schemaFormatter{},
		currentSchemas: map[reflect.Type]*Schema{},
		sealedTypes:    len(cfg.KnownTypes) > 0 && cfg.SealTypesWhenUsingKnownTypes,
	}
	if cfg.PersistTypeCache {
		s.persistWrite = newTypeTable(cfg.KnownTypes)
		s.persistRead = newTypeTable(cfg.KnownTypes)
		s.persistSchemaWritten = map[reflect.Type]bool{}
		s.persistSchemaRead = map[reflect.Type]*Schema{}
	}
	if cfg.EmbedChecksum {
		s.checksum = s.protocolChecksum()
	}
	return s, nil
}

// ConfigType returns the mutable configuration for a type without firing the
// first-touch callback. Mutations after the engine compiled against the
// config latch ErrConfigurationLocked.
func (s *Serializer) ConfigType(t reflect.Type) *TypeConfig {
	return s.typeConfigs.configLookup(t)
}

// Serialize encodes value into *buf at *offset, growing the buffer in place
// as needed and advancing the offset by the encoded length. On failure the
// offset is undefined and the buffer may hold partial output.
func (s *Serializer) Serialize(value any, buf *[]byte, offset *int) error {
	if buf == nil || offset == nil {
		return errors.New("seria: Serialize requires non-nil buffer and offset")
	}
	s.seal()
	st := s.acquireState()
	defer s.releaseState(st)

	b := NewBuffer(*buf, *offset)
	if s.cfg.EmbedChecksum {
		b.WriteUint32(s.checksum)
	}
	err := s.writeRoot(st, b, value)
	*buf = b.B
	*offset = b.N
	return err
}

// Deserialize decodes from buf at *offset into target, which must be a
// non-nil pointer. The pointee is overwritten in place, enabling object reuse
// and the members-only readonly mode. The offset advances by the bytes
// consumed.
func (s *Serializer) Deserialize(buf []byte, offset *int, target any) error {
	if offset == nil {
		return errors.New("seria: Deserialize requires a non-nil offset")
	}
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return errors.Wrapf(ErrSchemaMismatch, "target must be a non-nil pointer, got %T", target)
	}
	s.seal()
	st := s.acquireState()
	defer s.releaseState(st)

	r := NewReader(buf, *offset, s.cfg.Limits)
	if s.cfg.EmbedChecksum {
		sum, err := r.ReadUint32()
		if err != nil {
			return err
		}
		if sum != s.checksum {
			return errors.Wrapf(ErrChecksumMismatch, "stream %08x, local %08x", sum, s.checksum)
		}
	}
	err := s.readRoot(st, r, rv.Elem())
	*offset = r.N
	return err
}

// Marshal is the allocating convenience form of Serialize.
func (s *Serializer) Marshal(value any) ([]byte, error) {
	var buf []byte
	var offset int
	if err := s.Serialize(value, &buf, &offset); err != nil {
		return nil, err
	}
	return buf[:offset], nil
}

// Unmarshal decodes a whole buffer into target.
func (s *Serializer) Unmarshal(data []byte, target any) error {
	var offset int
	return s.Deserialize(data, &offset, target)
}

func (s *Serializer) writeRoot(st *state, b *Buffer, value any) error {
	if value == nil {
		b.WriteVarInt(tokenNil)
		return nil
	}
	rv := addressable(reflect.ValueOf(value))
	t := rv.Type()
	if err := s.writeTypeAndSchema(st, b, t); err != nil {
		return err
	}
	f, err := s.writePayloadFor(t)
	if err != nil {
		return err
	}
	return f.Write(st, b, rv)
}

func (s *Serializer) readRoot(st *state, r *Reader, dst reflect.Value) error {
	t, err := s.readTypeAndSchema(st, r)
	if err != nil {
		return err
	}
	if t == nil {
		dst.SetZero()
		return nil
	}
	f, err := s.readPayloadFor(st, t)
	if err != nil {
		return err
	}
	if t == dst.Type() {
		return f.Read(st, r, dst)
	}
	if !t.AssignableTo(dst.Type()) {
		return errors.Wrapf(ErrSchemaMismatch, "stream carries %s, target is %s", t, dst.Type())
	}
	tmp := reflect.New(t).Elem()
	if err := f.Read(st, r, tmp); err != nil {
		return err
	}
	dst.Set(tmp)
	return nil
}

// seal locks the per-type configurations the first time the engine runs.
func (s *Serializer) seal() {
	if !s.typeConfigs.locked {
		s.typeConfigs.locked = true
	}
}

// protocolChecksum fingerprints the settings that shape the wire format so
// mismatched endpoints fail fast instead of misparsing.
func (s *Serializer) protocolChecksum() uint32 {
	b := NewBuffer(nil, 0)
	b.WriteByte(byte(s.cfg.VersionTolerance))
	b.WriteByte(byte(s.cfg.DefaultTargets))
	b.WriteByte(byte(s.cfg.ReadonlyHandling))
	b.WriteByte(byte(s.cfg.DelegateSerialization))
	b.WriteBool(s.cfg.PreserveReferences)
	b.WriteBool(s.cfg.SkipCompilerGeneratedFields)
	b.WriteBool(s.cfg.RespectNonSerializedAttribute)
	for _, t := range s.cfg.KnownTypes {
		name, err := s.binder.NameFor(t)
		if err != nil {
			name = t.String()
		}
		b.WriteLenString(name)
	}
	return crc32.ChecksumIEEE(b.Bytes())
}

func (s *Serializer) logSchemaReconciled(t reflect.Type, sch *Schema) {
	skipped := lo.FilterMap(sch.Members, func(m SchemaMember, _ int) (string, bool) {
		return m.PersistentName, m.IsSkip
	})
	s.log.Debug("reconciled received schema",
		zap.Stringer("type", t),
		zap.Int("members", len(sch.Members)),
		zap.Strings("skipped", skipped))
}
