package seria

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type tagged struct {
	Plain   string
	Renamed string `seria:"wire_name"`
	WithAlt int    `seria:"lvl,alt=level|Level_old"`
	Secret  string `seria:"-"`
	hidden  string
}

type TypeConfigTestSuite struct {
	suite.Suite
	s *Serializer
}

func (s *TypeConfigTestSuite) SetupTest() {
	ser, err := New(DefaultConfig())
	s.Require().NoError(err)
	s.s = ser
}

func (s *TypeConfigTestSuite) membersOf(t reflect.Type) []*memberInfo {
	tc := s.s.typeConfigs.usageLookup(t)
	s.Require().NoError(tc.seal())
	return tc.members
}

func (s *TypeConfigTestSuite) names(t reflect.Type) []string {
	var out []string
	for _, m := range s.membersOf(t) {
		out = append(out, m.persistentName)
	}
	return out
}

func (s *TypeConfigTestSuite) TestDefaultSelection() {
	names := s.names(TypeOf[tagged]())
	s.Assert().Equal([]string{"Plain", "wire_name", "lvl"}, names)
}

func (s *TypeConfigTestSuite) TestAlternativeNames() {
	for _, m := range s.membersOf(TypeOf[tagged]()) {
		if m.name == "WithAlt" {
			s.Assert().True(m.matches("lvl"))
			s.Assert().True(m.matches("level"))
			s.Assert().True(m.matches("Level_old"))
			s.Assert().True(m.matches("WithAlt"))
			s.Assert().False(m.matches("levels"))
		}
	}
}

func (s *TypeConfigTestSuite) TestNonSerializedIgnoredWhenDisabled() {
	cfg := DefaultConfig()
	cfg.RespectNonSerializedAttribute = false
	ser, err := New(cfg)
	s.Require().NoError(err)
	tc := ser.typeConfigs.usageLookup(TypeOf[tagged]())
	s.Require().NoError(tc.seal())

	var names []string
	for _, m := range tc.members {
		names = append(names, m.name)
	}
	s.Assert().Contains(names, "Secret")
}

func (s *TypeConfigTestSuite) TestExplicitOverridesWin() {
	ConfigTypeOf[tagged](s.s).
		Exclude("Plain").
		Include("hidden").
		SetReadonlyHandling(ReadonlyForcedOverwrite)

	names := s.names(TypeOf[tagged]())
	s.Assert().NotContains(names, "Plain")
	s.Assert().Contains(names, "hidden")
}

func (s *TypeConfigTestSuite) TestNonSerializedDiscardPrecedesOverrides() {
	// The non-serialized discard runs before explicit overrides, so an
	// Include cannot resurrect a `seria:"-"` member.
	ConfigTypeOf[tagged](s.s).Include("Secret")
	s.Assert().NotContains(s.names(TypeOf[tagged]()), "Secret")
}

func (s *TypeConfigTestSuite) TestShouldSerializeHook() {
	ConfigTypeOf[tagged](s.s).SetShouldSerialize(func(f reflect.StructField) Decision {
		if f.Name == "Plain" {
			return DecisionExclude
		}
		return DecisionDefer
	})
	s.Assert().NotContains(s.names(TypeOf[tagged]()), "Plain")
}

func (s *TypeConfigTestSuite) TestTargetAllSelectsUnexported() {
	ConfigTypeOf[tagged](s.s).
		SetTargets(TargetAll).
		SetReadonlyHandling(ReadonlyForcedOverwrite)
	names := s.names(TypeOf[tagged]())
	s.Assert().Contains(names, "hidden")
}

func (s *TypeConfigTestSuite) TestUnexportedDroppedUnderReadonlyExclude() {
	ConfigTypeOf[tagged](s.s).SetTargets(TargetAll)
	// Default readonly handling excludes unexported fields.
	s.Assert().NotContains(s.names(TypeOf[tagged]()), "hidden")
}

func (s *TypeConfigTestSuite) TestRenameViaConfig() {
	ConfigTypeOf[tagged](s.s).Rename("Plain", "plain_v2", "plain")
	for _, m := range s.membersOf(TypeOf[tagged]()) {
		if m.name == "Plain" {
			s.Assert().Equal("plain_v2", m.persistentName)
			s.Assert().True(m.matches("plain"))
		}
	}
}

func (s *TypeConfigTestSuite) TestMutationAfterSealLatches() {
	tc := ConfigTypeOf[tagged](s.s)
	s.Require().NoError(tc.seal())
	tc.Exclude("Plain")
	s.Assert().ErrorIs(tc.Err(), ErrConfigurationLocked)
}

func TestTypeConfig(t *testing.T) {
	suite.Run(t, new(TypeConfigTestSuite))
}

type embeddedBase struct {
	ID int
}

type embeddedDerived struct {
	embeddedBase
	Name string
}

func TestEmbeddedMembersComeFirst(t *testing.T) {
	s, err := New(DefaultConfig())
	require.NoError(t, err)
	tc := s.typeConfigs.usageLookup(TypeOf[embeddedDerived]())
	require.NoError(t, tc.seal())

	var names []string
	for _, m := range tc.members {
		names = append(names, m.persistentName)
	}
	assert.Equal(t, []string{"ID", "Name"}, names)
}

type accountWithAccessors struct {
	balance int64
}

func (a *accountWithAccessors) Balance() int64     { return a.balance }
func (a *accountWithAccessors) SetBalance(v int64) { a.balance = v }

func TestAccessorPairSelection(t *testing.T) {
	s, err := New(DefaultConfig())
	require.NoError(t, err)
	ConfigTypeOf[accountWithAccessors](s).SetTargets(TargetAccessors)

	tc := s.typeConfigs.usageLookup(TypeOf[accountWithAccessors]())
	require.NoError(t, tc.seal())
	require.Len(t, tc.members, 1)
	assert.Equal(t, "Balance", tc.members[0].persistentName)
	assert.Equal(t, TypeOf[int64](), tc.members[0].typ)
}

func TestOnConfigNewTypeFiresOncePerType(t *testing.T) {
	cfg := DefaultConfig()
	touched := map[string]int{}
	require.NoError(t, cfg.SetOnConfigNewType(func(tc *TypeConfig) {
		touched[tc.Type().String()]++
	}))
	s, err := New(cfg)
	require.NoError(t, err)

	type firstTouch struct{ A int }
	v := firstTouch{A: 1}
	_, err = s.Marshal(v)
	require.NoError(t, err)
	_, err = s.Marshal(v)
	require.NoError(t, err)

	assert.Equal(t, 1, touched[TypeOf[firstTouch]().String()])
}

func TestOnConfigNewTypeSkipsUserConfiguredTypes(t *testing.T) {
	cfg := DefaultConfig()
	fired := 0
	require.NoError(t, cfg.SetOnConfigNewType(func(*TypeConfig) { fired++ }))
	s, err := New(cfg)
	require.NoError(t, err)

	type preConfigured struct{ A int }
	ConfigTypeOf[preConfigured](s) // user-created before first use
	_, err = s.Marshal(preConfigured{A: 2})
	require.NoError(t, err)
	assert.Zero(t, fired)
}

func TestOnConfigNewTypeSingleAssignment(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.SetOnConfigNewType(func(*TypeConfig) {}))
	err := cfg.SetOnConfigNewType(func(*TypeConfig) {})
	assert.ErrorIs(t, err, ErrConfigurationConflict)
}

func TestConfigLockedAfterFirstUse(t *testing.T) {
	s, err := New(DefaultConfig())
	require.NoError(t, err)

	type locked struct{ A int }
	_, err = s.Marshal(locked{A: 1})
	require.NoError(t, err)

	tc := ConfigTypeOf[locked](s).Exclude("A")
	assert.ErrorIs(t, tc.Err(), ErrConfigurationLocked)
}
