package legdb

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValueAccessorsRejectWrongKind(t *testing.T) {
	v := StringValue("hi")
	_, ok := v.Int()
	require.False(t, ok)
	s, ok := v.String()
	require.True(t, ok)
	require.Equal(t, "hi", s)
}

func TestValueEqualAcrossKinds(t *testing.T) {
	require.True(t, IntValue(5).Equal(IntValue(5)))
	require.False(t, IntValue(5).Equal(IntValue(6)))
	require.False(t, IntValue(5).Equal(FloatValue(5)))
	require.True(t, Nil().Equal(Nil()))
	require.True(t, OIDValue(9).Equal(OIDValue(9)))
	require.True(t, BytesValue([]byte("ab")).Equal(BytesValue([]byte("ab"))))
}

func TestValueEqualMap(t *testing.T) {
	a := MapValue(map[string]Value{"x": IntValue(1), "y": StringValue("z")})
	b := MapValue(map[string]Value{"x": IntValue(1), "y": StringValue("z")})
	c := MapValue(map[string]Value{"x": IntValue(2), "y": StringValue("z")})
	require.True(t, a.Equal(b))
	require.False(t, a.Equal(c))
}

func TestValueCanonicalStringFormatting(t *testing.T) {
	require.Equal(t, "5", IntValue(5).CanonicalString())
	require.Equal(t, "-5", IntValue(-5).CanonicalString())
	require.Equal(t, "2.5", FloatValue(2.5).CanonicalString())
	require.Equal(t, "true", BoolValue(true).CanonicalString())
	require.Equal(t, "", Nil().CanonicalString())
	require.Equal(t, "abc", StringValue("abc").CanonicalString())
}

// TestValueCanonicalStringIsTextOrdering documents the fidelity tradeoff:
// index ordering follows string ordering of the rendered value, not
// numeric ordering, so "10" sorts before "2".
func TestValueCanonicalStringIsTextOrdering(t *testing.T) {
	ten := IntValue(10).CanonicalString()
	two := IntValue(2).CanonicalString()
	require.Less(t, ten, two)
}
