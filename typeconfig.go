package seria

import (
	"reflect"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// Decision is the tri-state result of a ShouldSerialize hook.
type Decision int

const (
	// DecisionDefer passes the member on to the next selection step.
	DecisionDefer Decision = iota
	DecisionInclude
	DecisionExclude
)

// MemberTargeted is the type-level targeting attribute: a type implementing
// it overrides the configured DefaultTargets for its own members.
type MemberTargeted interface {
	MemberTargeting() MemberTargets
}

var memberTargetedType = reflect.TypeOf((*MemberTargeted)(nil)).Elem()

// TypeConfig is the per-type serialization policy: member selection,
// persistent-name overrides, readonly handling and explicit member
// formatters. Mutators chain; once the engine compiles a formatter against
// the config it is sealed, and the first violating mutation is latched and
// surfaced at the next compile.
type TypeConfig struct {
	typ      reflect.Type
	registry *typeConfigRegistry

	sealed bool
	err    error

	targets          *MemberTargets
	readonly         *ReadonlyFieldHandling
	skipGenerated    *bool
	shouldSerialize  func(reflect.StructField) Decision
	include          map[string]bool
	renames          map[string]string
	alts             map[string][]string
	memberFormatters map[string]Formatter

	members []*memberInfo // resolved on seal
}

// Type returns the configured type.
func (tc *TypeConfig) Type() reflect.Type { return tc.typ }

// Err returns the first configuration error latched on this config.
func (tc *TypeConfig) Err() error { return tc.err }

func (tc *TypeConfig) mutate() bool {
	if tc.sealed || tc.registry.locked {
		if tc.err == nil {
			tc.err = errors.Wrapf(ErrConfigurationLocked, "type %s", tc.typ)
		}
		return false
	}
	return true
}

// SetTargets overrides the default member targeting for this type.
func (tc *TypeConfig) SetTargets(t MemberTargets) *TypeConfig {
	if tc.mutate() {
		tc.targets = &t
	}
	return tc
}

// SetReadonlyHandling overrides the unexported-field policy for this type.
func (tc *TypeConfig) SetReadonlyHandling(h ReadonlyFieldHandling) *TypeConfig {
	if tc.mutate() {
		tc.readonly = &h
	}
	return tc
}

// SetSkipCompilerGeneratedFields overrides the blank-field policy.
func (tc *TypeConfig) SetSkipCompilerGeneratedFields(skip bool) *TypeConfig {
	if tc.mutate() {
		tc.skipGenerated = &skip
	}
	return tc
}

// SetShouldSerialize installs a per-member hook consulted after explicit
// overrides and before tags.
func (tc *TypeConfig) SetShouldSerialize(fn func(reflect.StructField) Decision) *TypeConfig {
	if tc.mutate() {
		tc.shouldSerialize = fn
	}
	return tc
}

// Include forces a member in regardless of tags and targeting.
func (tc *TypeConfig) Include(member string) *TypeConfig {
	if tc.mutate() {
		if tc.include == nil {
			tc.include = map[string]bool{}
		}
		tc.include[member] = true
	}
	return tc
}

// Exclude forces a member out regardless of tags and targeting.
func (tc *TypeConfig) Exclude(member string) *TypeConfig {
	if tc.mutate() {
		if tc.include == nil {
			tc.include = map[string]bool{}
		}
		tc.include[member] = false
	}
	return tc
}

// Rename sets the persistent name a member is stored under, with optional
// alternative names matched during read-side reconciliation.
func (tc *TypeConfig) Rename(member, persistent string, alternatives ...string) *TypeConfig {
	if tc.mutate() {
		if tc.renames == nil {
			tc.renames = map[string]string{}
		}
		tc.renames[member] = persistent
		if len(alternatives) > 0 {
			if tc.alts == nil {
				tc.alts = map[string][]string{}
			}
			tc.alts[member] = append(tc.alts[member], alternatives...)
		}
	}
	return tc
}

// UseFormatter binds an explicit formatter to a member's declared type,
// bypassing registry resolution for that member.
func (tc *TypeConfig) UseFormatter(member string, f Formatter) *TypeConfig {
	if tc.mutate() {
		if tc.memberFormatters == nil {
			tc.memberFormatters = map[string]Formatter{}
		}
		tc.memberFormatters[member] = f
	}
	return tc
}

func (tc *TypeConfig) effectiveTargets() MemberTargets {
	if tc.targets != nil {
		return *tc.targets
	}
	if reflect.PointerTo(tc.typ).Implements(memberTargetedType) {
		return reflect.New(tc.typ).Interface().(MemberTargeted).MemberTargeting()
	}
	return tc.registry.cfg.DefaultTargets
}

func (tc *TypeConfig) effectiveReadonly() ReadonlyFieldHandling {
	if tc.readonly != nil {
		return *tc.readonly
	}
	return tc.registry.cfg.ReadonlyHandling
}

func (tc *TypeConfig) effectiveSkipGenerated() bool {
	if tc.skipGenerated != nil {
		return *tc.skipGenerated
	}
	return tc.registry.cfg.SkipCompilerGeneratedFields
}

// seal freezes the config and resolves its member list. Idempotent.
func (tc *TypeConfig) seal() error {
	if tc.sealed {
		return tc.err
	}
	tc.sealed = true
	if tc.err != nil {
		return tc.err
	}
	members, err := tc.selectMembers()
	if err != nil {
		tc.err = err
		return err
	}
	tc.members = members
	return nil
}

// memberInfo captures one serialized member: its declared type, accessors and
// the names it appears under in streams.
type memberInfo struct {
	name           string
	persistentName string
	altNames       []string
	typ            reflect.Type

	index      []int // field index path; nil for accessor members
	getterName string
	setterName string
	unexported bool
	readonly   ReadonlyFieldHandling

	explicit Formatter // from TypeConfig.UseFormatter, may be nil
}

// matches reports whether the member answers to the given persistent name.
func (m *memberInfo) matches(name string) bool {
	if m.persistentName == name || m.name == name {
		return true
	}
	for _, alt := range m.altNames {
		if alt == name {
			return true
		}
	}
	return false
}

// load extracts the member's value for writing. v must be an addressable
// struct value so unexported fields and accessor getters are reachable.
func (m *memberInfo) load(v reflect.Value) reflect.Value {
	if m.index == nil {
		return v.Addr().MethodByName(m.getterName).Call(nil)[0]
	}
	fv := v.FieldByIndex(m.index)
	if m.unexported {
		fv = exposeField(fv)
	}
	return fv
}

// store decodes the member from r into the target struct, honoring the
// readonly policy for unexported fields.
func (m *memberInfo) store(st *state, r *Reader, f Formatter, v reflect.Value) error {
	if m.index == nil {
		tmp := reflect.New(m.typ).Elem()
		if err := f.Read(st, r, tmp); err != nil {
			return err
		}
		v.Addr().MethodByName(m.setterName).Call([]reflect.Value{tmp})
		return nil
	}
	fv := v.FieldByIndex(m.index)
	if !m.unexported {
		return f.Read(st, r, fv)
	}
	switch m.readonly {
	case ReadonlyForcedOverwrite:
		return f.Read(st, r, exposeField(fv))
	case ReadonlyMembersOnly:
		tmp := reflect.New(m.typ).Elem()
		if err := f.Read(st, r, tmp); err != nil {
			return err
		}
		mergeInPlace(exposeField(fv), tmp)
		return nil
	default:
		// Excluded members are never selected; consuming the bytes into a
		// throwaway value keeps the offsets balanced if one slips through.
		tmp := reflect.New(m.typ).Elem()
		return f.Read(st, r, tmp)
	}
}

// mergeInPlace copies decoded content into an existing value without
// replacing its identity. Scalars and nil destinations are left untouched.
func mergeInPlace(dst, src reflect.Value) {
	switch dst.Kind() {
	case reflect.Pointer:
		if !dst.IsNil() && !src.IsNil() {
			dst.Elem().Set(src.Elem())
		}
	case reflect.Slice:
		reflect.Copy(dst, src)
	case reflect.Map:
		if !dst.IsNil() {
			iter := src.MapRange()
			for iter.Next() {
				dst.SetMapIndex(iter.Key(), iter.Value())
			}
		}
	case reflect.Struct, reflect.Array:
		if dst.CanSet() {
			dst.Set(src)
		}
	}
}

// selectMembers runs the precedence chain over the type's fields and accessor
// pairs and resolves persistent names.
func (tc *TypeConfig) selectMembers() ([]*memberInfo, error) {
	if tc.typ.Kind() != reflect.Struct {
		return nil, nil
	}
	targets := tc.effectiveTargets()
	readonly := tc.effectiveReadonly()

	var members []*memberInfo
	seen := map[string]bool{}

	var walk func(t reflect.Type, prefix []int) error
	walk = func(t reflect.Type, prefix []int) error {
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			index := append(append([]int(nil), prefix...), i)

			if f.Anonymous && f.Type.Kind() == reflect.Struct {
				// Embedded members come before the embedder's own later
				// fields, mirroring base-before-derived ordering.
				if err := walk(f.Type, index); err != nil {
					return err
				}
				continue
			}

			m, ok := tc.decideField(f, index, targets, readonly)
			if !ok {
				continue
			}
			if seen[m.persistentName] {
				return errors.Wrapf(ErrConfigurationConflict,
					"type %s: duplicate persistent name %q", tc.typ, m.persistentName)
			}
			seen[m.persistentName] = true
			members = append(members, m)
		}
		return nil
	}
	if err := walk(tc.typ, nil); err != nil {
		return nil, err
	}

	if targets == TargetAccessors || targets == TargetExportedFieldsAndAccessors {
		acc := tc.accessorMembers(seen)
		members = append(members, acc...)
	}
	return members, nil
}

// decideField applies the selection precedence to one field.
func (tc *TypeConfig) decideField(f reflect.StructField, index []int, targets MemberTargets, readonly ReadonlyFieldHandling) (*memberInfo, bool) {
	unexported := f.PkgPath != ""

	// Blank padding fields are discarded before any other rule.
	if f.Name == "_" && tc.effectiveSkipGenerated() {
		return nil, false
	}

	tagName, tagAlts, tagExcluded, hasTag := parseMemberTag(f.Tag.Get("seria"))
	if tagExcluded && tc.registry.cfg.RespectNonSerializedAttribute {
		return nil, false
	}

	included := false
	switch {
	// 1. Explicit per-member override wins.
	case tc.include != nil && hasOverride(tc.include, f.Name):
		included = tc.include[f.Name]
	// 2. The ShouldSerialize hook decides next.
	case tc.shouldSerialize != nil && tc.shouldSerialize(f) != DecisionDefer:
		included = tc.shouldSerialize(f) == DecisionInclude
	// 3. A member-level tag decides.
	case hasTag && !tagExcluded:
		included = true
	// 4./5. The targeting rule decides.
	default:
		switch targets {
		case TargetExportedFields, TargetExportedFieldsAndAccessors:
			included = !unexported
		case TargetAccessors:
			included = false
		case TargetAll:
			included = true
		}
	}
	if !included {
		return nil, false
	}
	if unexported && readonly == ReadonlyExclude {
		return nil, false
	}

	m := &memberInfo{
		name:       f.Name,
		typ:        f.Type,
		index:      index,
		unexported: unexported,
		readonly:   readonly,
	}
	m.persistentName = f.Name
	if tagName != "" {
		m.persistentName = tagName
	}
	if alias, ok := tc.renames[f.Name]; ok {
		m.persistentName = alias
	}
	m.altNames = append(m.altNames, tagAlts...)
	m.altNames = append(m.altNames, tc.alts[f.Name]...)
	if tc.memberFormatters != nil {
		m.explicit = tc.memberFormatters[f.Name]
	}
	return m, true
}

// accessorMembers pairs X() T getters with SetX(T) setters on the pointer
// method set. Pairs shadowed by an already-selected member are skipped.
func (tc *TypeConfig) accessorMembers(seen map[string]bool) []*memberInfo {
	pt := reflect.PointerTo(tc.typ)
	var members []*memberInfo
	for i := 0; i < pt.NumMethod(); i++ {
		mm := pt.Method(i)
		if !strings.HasPrefix(mm.Name, "Set") || len(mm.Name) <= 3 {
			continue
		}
		name := mm.Name[3:]
		if mm.Type.NumIn() != 2 || mm.Type.NumOut() != 0 {
			continue
		}
		getter, ok := pt.MethodByName(name)
		if !ok || getter.Type.NumIn() != 1 || getter.Type.NumOut() != 1 {
			continue
		}
		if getter.Type.Out(0) != mm.Type.In(1) {
			continue
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		m := &memberInfo{
			name:           name,
			persistentName: name,
			typ:            getter.Type.Out(0),
			getterName:     name,
			setterName:     mm.Name,
		}
		if alias, ok := tc.renames[name]; ok {
			m.persistentName = alias
		}
		m.altNames = append(m.altNames, tc.alts[name]...)
		if tc.memberFormatters != nil {
			m.explicit = tc.memberFormatters[name]
		}
		members = append(members, m)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].name < members[j].name })
	return members
}

func hasOverride(m map[string]bool, key string) bool {
	_, ok := m[key]
	return ok
}

// parseMemberTag splits a `seria` struct tag. Forms:
//
//	seria:"-"                  excluded
//	seria:"wireName"           persistent name override
//	seria:"wireName,alt=a|b"   plus alternative names
//	seria:",alt=a|b"           alternatives without rename
func parseMemberTag(tag string) (name string, alts []string, excluded, ok bool) {
	if tag == "" {
		return "", nil, false, false
	}
	if tag == "-" {
		return "", nil, true, true
	}
	parts := strings.Split(tag, ",")
	name = parts[0]
	for _, opt := range parts[1:] {
		if v, found := strings.CutPrefix(opt, "alt="); found && v != "" {
			alts = append(alts, strings.Split(v, "|")...)
		}
	}
	return name, alts, false, true
}

// typeConfigRegistry owns the per-type configurations. Lookups are lazy: the
// configuration flavor never fires the first-touch callback, the usage flavor
// fires it exactly once before publication.
type typeConfigRegistry struct {
	cfg     *SerializerConfig
	log     *zap.Logger
	configs map[reflect.Type]*TypeConfig
	locked  bool
}

func newTypeConfigRegistry(cfg *SerializerConfig) *typeConfigRegistry {
	return &typeConfigRegistry{
		cfg:     cfg,
		log:     cfg.logger(),
		configs: map[reflect.Type]*TypeConfig{},
	}
}

// configLookup backs the public ConfigType API.
func (r *typeConfigRegistry) configLookup(t reflect.Type) *TypeConfig {
	if tc, ok := r.configs[t]; ok {
		return tc
	}
	tc := &TypeConfig{typ: t, registry: r}
	r.configs[t] = tc
	return tc
}

// usageLookup is the engine-side flavor: a type first encountered here is
// initialized from defaults with the first-touch callback fired before the
// config is published.
func (r *typeConfigRegistry) usageLookup(t reflect.Type) *TypeConfig {
	if tc, ok := r.configs[t]; ok {
		return tc
	}
	tc := &TypeConfig{typ: t, registry: r}
	if r.cfg.onConfigNewType != nil {
		r.cfg.onConfigNewType(tc)
	}
	r.log.Debug("configured new type", zap.Stringer("type", t))
	r.configs[t] = tc
	return tc
}
