package legdb

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDocumentSetGetOverwrite(t *testing.T) {
	d := NewDocument()
	d.Set("name", StringValue("ada"))
	d.Set("age", IntValue(30))
	d.Set("name", StringValue("grace"))

	v, ok := d.Get("name")
	require.True(t, ok)
	s, _ := v.String()
	require.Equal(t, "grace", s)
	require.Equal(t, []string{"name", "age"}, d.Keys())
}

func TestDocumentGetPathNested(t *testing.T) {
	d := NewDocument()
	d.Set("meta", MapValue(map[string]Value{"region": StringValue("us-east")}))

	v, ok := d.GetPath("meta[region]")
	require.True(t, ok)
	s, _ := v.String()
	require.Equal(t, "us-east", s)

	_, ok = d.GetPath("meta[missing]")
	require.False(t, ok)
}

func TestDocumentMatches(t *testing.T) {
	d := NewDocument()
	d.Set("c", StringValue("a"))
	d.Set("ord_c_mod_2", IntValue(1))

	require.True(t, d.Matches(map[string]Value{"c": StringValue("a")}))
	require.True(t, d.Matches(map[string]Value{"c": StringValue("a"), "ord_c_mod_2": IntValue(1)}))
	require.False(t, d.Matches(map[string]Value{"c": StringValue("b")}))
	require.False(t, d.Matches(map[string]Value{"missing": IntValue(0)}))
}

func TestDocumentCloneIsIndependent(t *testing.T) {
	d := NewDocument()
	d.Set("c", StringValue("a"))
	d.OID = 7
	d.Bound = true

	clone := d.Clone()
	clone.Set("c", StringValue("z"))

	orig, _ := d.Get("c")
	cloned, _ := clone.Get("c")
	origS, _ := orig.String()
	clonedS, _ := cloned.String()
	require.Equal(t, "a", origS)
	require.Equal(t, "z", clonedS)
	require.Equal(t, uint64(7), clone.OID)
}

func TestDocumentWithoutKeys(t *testing.T) {
	d := NewDocument()
	d.Set("start_id", OIDValue(1))
	d.Set("end_id", OIDValue(2))
	d.Set("w", FloatValue(1.5))

	stripped := d.WithoutKeys("start_id", "end_id")
	require.Equal(t, []string{"w"}, stripped.Keys())
	_, ok := stripped.Get("start_id")
	require.False(t, ok)
}

func TestDocumentMarshalRoundTrip(t *testing.T) {
	d := NewDocument()
	d.Set("name", StringValue(""))
	d.Set("count", IntValue(-5))
	d.Set("ratio", FloatValue(2.5))
	d.Set("active", BoolValue(true))
	d.Set("blob", BytesValue([]byte{1, 2, 3}))
	d.Set("ref", OIDValue(42))
	d.Set("meta", MapValue(map[string]Value{"k": StringValue("v")}))

	raw, err := d.MarshalBinary()
	require.NoError(t, err)

	out := NewDocument()
	require.NoError(t, out.UnmarshalBinary(raw))

	for _, key := range d.Keys() {
		want, _ := d.Get(key)
		got, ok := out.Get(key)
		require.True(t, ok, key)
		require.True(t, want.Equal(got), key)
	}
}

