package seria

import (
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type simple struct {
	A int
	B string
}

type nested struct {
	Name  string
	Inner simple
	Tags  []string
	Attrs map[string]int
}

type SerializerTestSuite struct {
	suite.Suite
	s *Serializer
}

func (s *SerializerTestSuite) SetupTest() {
	ser, err := New(DefaultConfig())
	s.Require().NoError(err)
	s.s = ser
}

func (s *SerializerTestSuite) roundTrip(in, out any) {
	data, err := s.s.Marshal(in)
	s.Require().NoError(err)
	s.Require().NoError(s.s.Unmarshal(data, out))
}

func (s *SerializerTestSuite) TestSimpleRoundTrip() {
	in := simple{A: 42, B: "hi"}
	var out simple
	s.roundTrip(in, &out)
	s.Assert().Equal(in, out)
}

func (s *SerializerTestSuite) TestOffsetBalance() {
	var buf []byte
	var offset int
	s.Require().NoError(s.s.Serialize(simple{A: 1, B: "one"}, &buf, &offset))
	written := offset

	var out simple
	readOffset := 0
	s.Require().NoError(s.s.Deserialize(buf, &readOffset, &out))
	s.Assert().Equal(written, readOffset, "deserialize must consume exactly the bytes serialize produced")
}

func (s *SerializerTestSuite) TestSequentialValuesShareBuffer() {
	var buf []byte
	var offset int
	s.Require().NoError(s.s.Serialize(simple{A: 1, B: "x"}, &buf, &offset))
	s.Require().NoError(s.s.Serialize(simple{A: 2, B: "y"}, &buf, &offset))

	var first, second simple
	readOffset := 0
	s.Require().NoError(s.s.Deserialize(buf, &readOffset, &first))
	s.Require().NoError(s.s.Deserialize(buf, &readOffset, &second))
	s.Assert().Equal(simple{A: 1, B: "x"}, first)
	s.Assert().Equal(simple{A: 2, B: "y"}, second)
	s.Assert().Equal(offset, readOffset)
}

func (s *SerializerTestSuite) TestNestedCollections() {
	in := nested{
		Name:  "root",
		Inner: simple{A: -3, B: "inner"},
		Tags:  []string{"a", "b", ""},
		Attrs: map[string]int{"one": 1, "two": 2},
	}
	var out nested
	s.roundTrip(in, &out)
	s.Assert().Equal(in, out)
}

func (s *SerializerTestSuite) TestNilAndEmptyCollections() {
	in := nested{Name: "bare"}
	var out nested
	out.Tags = []string{"stale"}
	out.Attrs = map[string]int{"stale": 1}
	s.roundTrip(in, &out)
	s.Assert().Nil(out.Tags)
	s.Assert().Nil(out.Attrs)
}

func (s *SerializerTestSuite) TestPointerSharingPreserved() {
	type leaf struct{ V int }
	type pair struct {
		L *leaf
		R *leaf
	}
	shared := &leaf{V: 9}
	var out pair
	s.roundTrip(pair{L: shared, R: shared}, &out)
	s.Require().NotNil(out.L)
	s.Assert().Same(out.L, out.R, "shared pointer must stay shared")
	s.Assert().Equal(9, out.L.V)
}

func (s *SerializerTestSuite) TestCyclicGraph() {
	type node struct {
		Next *node
	}
	a := &node{}
	b := &node{Next: a}
	a.Next = b

	var out *node
	s.roundTrip(a, &out)
	s.Require().NotNil(out)
	s.Require().NotNil(out.Next)
	s.Assert().Same(out, out.Next.Next, "cycle must close back on the result")
}

func (s *SerializerTestSuite) TestNilPointerMember() {
	type holder struct{ P *simple }
	var out holder
	s.roundTrip(holder{}, &out)
	s.Assert().Nil(out.P)
}

func (s *SerializerTestSuite) TestInterfaceMemberDynamicDispatch() {
	type box struct{ V any }
	var out box
	s.roundTrip(box{V: int64(7)}, &out)
	s.Assert().Equal(int64(7), out.V)

	var out2 box
	s.roundTrip(box{V: "seven"}, &out2)
	s.Assert().Equal("seven", out2.V)

	var out3 box
	s.roundTrip(box{}, &out3)
	s.Assert().Nil(out3.V)
}

func (s *SerializerTestSuite) TestNilRoot() {
	data, err := s.s.Marshal(nil)
	s.Require().NoError(err)
	out := &simple{A: 1}
	s.Require().NoError(s.s.Unmarshal(data, &out))
	s.Assert().Nil(out)
}

func (s *SerializerTestSuite) TestBinaryMarshalerTypes() {
	type stamped struct {
		At time.Time
	}
	in := stamped{At: time.Date(2024, 5, 17, 10, 30, 0, 0, time.UTC)}
	var out stamped
	s.roundTrip(in, &out)
	s.Assert().True(in.At.Equal(out.At))
}

func TestSerializer(t *testing.T) {
	suite.Run(t, new(SerializerTestSuite))
}

func TestPreserveReferencesOffDuplicates(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PreserveReferences = false
	s, err := New(cfg)
	require.NoError(t, err)

	type leaf struct{ V int }
	type pair struct {
		L *leaf
		R *leaf
	}
	shared := &leaf{V: 4}
	data, err := s.Marshal(pair{L: shared, R: shared})
	require.NoError(t, err)

	var out pair
	require.NoError(t, s.Unmarshal(data, &out))
	assert.Equal(t, 4, out.L.V)
	assert.Equal(t, 4, out.R.V)
	assert.NotSame(t, out.L, out.R, "naive pointer mode duplicates shared targets")
}

func TestKnownTypesSealedMode(t *testing.T) {
	type allowed struct{ A int }
	type forbidden struct{ B int }

	cfg := DefaultConfig()
	cfg.KnownTypes = []reflect.Type{TypeOf[allowed]()}
	s, err := New(cfg)
	require.NoError(t, err)

	var buf []byte
	var offset int
	err = s.Serialize(forbidden{B: 1}, &buf, &offset)
	require.ErrorIs(t, err, ErrUnknownType)
	assert.Zero(t, offset, "no bytes may be produced after the failure point")

	// The allowed type is encoded by index, no name on the wire.
	require.NoError(t, s.Serialize(allowed{A: 5}, &buf, &offset))
	var out allowed
	readOffset := 0
	require.NoError(t, s.Deserialize(buf[:offset], &readOffset, &out))
	assert.Equal(t, 5, out.A)
}

func TestChecksumMismatch(t *testing.T) {
	type payload struct{ A int }

	mk := func(vt VersionTolerance) *Serializer {
		cfg := DefaultConfig()
		cfg.EmbedChecksum = true
		cfg.VersionTolerance = vt
		s, err := New(cfg)
		require.NoError(t, err)
		return s
	}

	writer := mk(VersionToleranceDisabled)
	data, err := writer.Marshal(payload{A: 1})
	require.NoError(t, err)

	var out payload
	require.NoError(t, writer.Unmarshal(data, &out))

	reader := mk(VersionToleranceEmbedded)
	err = reader.Unmarshal(data, &out)
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestForcedOverwriteUnexported(t *testing.T) {
	type guarded struct {
		Name string
		id   int
	}
	cfg := DefaultConfig()
	cfg.DefaultTargets = TargetAll
	cfg.ReadonlyHandling = ReadonlyForcedOverwrite
	s, err := New(cfg)
	require.NoError(t, err)

	data, err := s.Marshal(guarded{Name: "n", id: 77})
	require.NoError(t, err)
	var out guarded
	require.NoError(t, s.Unmarshal(data, &out))
	assert.Equal(t, 77, out.id)
	assert.Equal(t, "n", out.Name)
}

func TestMembersOnlyPopulatesInPlace(t *testing.T) {
	type inplace struct {
		Name string
		buf  []int
	}
	cfg := DefaultConfig()
	cfg.DefaultTargets = TargetAll
	cfg.ReadonlyHandling = ReadonlyMembersOnly
	s, err := New(cfg)
	require.NoError(t, err)

	data, err := s.Marshal(inplace{Name: "x", buf: []int{1, 2, 3}})
	require.NoError(t, err)

	target := inplace{buf: make([]int, 3)}
	require.NoError(t, s.Unmarshal(data, &target))
	assert.Equal(t, "x", target.Name)
	assert.Equal(t, []int{1, 2, 3}, target.buf)
}

func TestAccessorRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	// accountWithAccessors is pointer-free; with the reinterpret fast path on,
	// its memory would be copied and the accessors never called.
	cfg.UseReinterpretFormatter = false
	s, err := New(cfg)
	require.NoError(t, err)
	ConfigTypeOf[accountWithAccessors](s).SetTargets(TargetAccessors)

	in := accountWithAccessors{}
	in.SetBalance(1234)
	data, err := s.Marshal(in)
	require.NoError(t, err)

	var out accountWithAccessors
	require.NoError(t, s.Unmarshal(data, &out))
	assert.EqualValues(t, 1234, out.Balance())
}

func TestDeserializeIntoInterfaceTarget(t *testing.T) {
	s, err := New(DefaultConfig())
	require.NoError(t, err)

	data, err := s.Marshal(simple{A: 8, B: "dyn"})
	require.NoError(t, err)

	var out any
	require.NoError(t, s.Unmarshal(data, &out))
	assert.Equal(t, simple{A: 8, B: "dyn"}, out)
}
