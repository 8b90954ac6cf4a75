package seria

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type vec3 struct {
	X, Y, Z float32
}

type withHeader struct {
	Magic [4]byte
	Count uint16
	Pos   vec3
}

func TestReinterpretEligibility(t *testing.T) {
	assert.True(t, canReinterpret(TypeOf[vec3]()))
	assert.True(t, canReinterpret(TypeOf[withHeader]()))
	assert.True(t, canReinterpret(TypeOf[[8]uint64]()))
	assert.False(t, canReinterpret(TypeOf[string]()))
	assert.False(t, canReinterpret(TypeOf[struct{ S string }]()))
	assert.False(t, canReinterpret(TypeOf[struct{ P *int }]()))
	assert.False(t, canReinterpret(TypeOf[struct{ B []byte }]()))
	assert.False(t, canReinterpret(TypeOf[map[int]int]()))
}

func TestReinterpretRoundTrip(t *testing.T) {
	s, err := New(DefaultConfig())
	require.NoError(t, err)

	in := withHeader{
		Magic: [4]byte{'s', 'e', 'r', 'a'},
		Count: 7,
		Pos:   vec3{X: 1.5, Y: -2.25, Z: 0.125},
	}
	data, err := s.Marshal(in)
	require.NoError(t, err)

	var out withHeader
	require.NoError(t, s.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func TestReinterpretDisabledStillRoundTrips(t *testing.T) {
	cfg := DefaultConfig()
	cfg.UseReinterpretFormatter = false
	s, err := New(cfg)
	require.NoError(t, err)

	in := vec3{X: 3, Y: 4, Z: 5}
	var out vec3
	data, err := s.Marshal(in)
	require.NoError(t, err)
	require.NoError(t, s.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func TestReinterpretPayloadIsRawSized(t *testing.T) {
	// The fast path must copy exactly the struct's memory, with no member
	// framing.
	on, err := New(DefaultConfig())
	require.NoError(t, err)
	dataOn, err := on.Marshal(vec3{X: 1})
	require.NoError(t, err)

	// Token (-2) + length-prefixed type name + 12 raw bytes.
	name := TypeOf[vec3]().String()
	expected := 1 + (1 + len(name)) + 12
	assert.Equal(t, expected, len(dataOn))
}
