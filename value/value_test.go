package value

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZeroValueIsMissing(t *testing.T) {
	var v Value
	assert.True(t, v.IsMissing())
	assert.False(t, Equal(v, Null()))
	assert.Equal(t, "MISSING", v.String())

	b, err := v.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, "null", string(b))
}

func TestCollationOrder(t *testing.T) {
	ordered := []Value{
		Missing(),
		Null(),
		Bool(false),
		Bool(true),
		Number(-10.5),
		Int(0),
		Int(3),
		String(""),
		String("a"),
		String("ab"),
		String("b"),
		Array(),
		Array(Int(1)),
		Array(Int(1), Int(2)),
		Array(Int(2)),
		Object(map[string]Value{}),
		Object(map[string]Value{"a": Int(1)}),
		Object(map[string]Value{"a": Int(2)}),
		Object(map[string]Value{"b": Int(0)}),
	}
	for i := 0; i < len(ordered); i++ {
		for j := 0; j < len(ordered); j++ {
			want := compareInts(i, j)
			assert.Equal(t, want, Collate(ordered[i], ordered[j]), "Collate(%s, %s)", ordered[i], ordered[j])

			ki := AppendKey(nil, ordered[i])
			kj := AppendKey(nil, ordered[j])
			assert.Equal(t, want, bytes.Compare(ki, kj), "key order of %s vs %s", ordered[i], ordered[j])
		}
	}
}

func TestKeyEncodingIsPrefixFree(t *testing.T) {
	short := AppendKey(nil, String("ab"))
	long := AppendKey(nil, String("abc"))
	assert.False(t, bytes.HasPrefix(long, short))

	withNul := AppendKey(nil, String("a\x00b"))
	assert.Equal(t, -1, bytes.Compare(AppendKey(nil, String("a")), withNul))
}

func TestKindKeyBounds(t *testing.T) {
	lo, hi := KindKeyBounds(KindNumber)
	k := AppendKey(nil, Number(-1e300))
	assert.True(t, bytes.Compare(k, lo) >= 0 && bytes.Compare(k, hi) < 0)
	k = AppendKey(nil, String("x"))
	assert.True(t, bytes.Compare(k, hi) >= 0)
}

func TestParseJSON(t *testing.T) {
	v, err := ParseJSON([]byte(`{"name":{"first":"Ann"},"tags":[1,null,"x"],"ok":true}`))
	require.NoError(t, err)
	assert.Equal(t, KindObject, v.Kind())
	assert.Equal(t, "Ann", v.Get("name").Get("first").AsString())
	assert.True(t, v.Get("tags").Index(1).IsNull())
	assert.True(t, v.Get("tags").Index(3).IsMissing())
	assert.Equal(t, "x", v.Get("tags").Index(-1).AsString())
	assert.True(t, v.Get("nope").IsMissing())
	assert.True(t, v.Get("ok").Get("x").IsMissing())

	_, err = ParseJSON([]byte(`{} {}`))
	assert.Error(t, err)
}

func TestMarshalRoundTrip(t *testing.T) {
	in := `{"a":[1,2.5,"s",false,null],"b":{"c":{}}}`
	v, err := ParseJSON([]byte(in))
	require.NoError(t, err)
	out, err := v.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, in, string(out))
}

func TestNumberNormalization(t *testing.T) {
	assert.True(t, Number(0*-1).AsNumber() == 0)
	zero := 0.0
	assert.True(t, Number(1/zero).IsNull())
	assert.Equal(t, 0, Collate(Number(-0.0), Int(0)))
}

func TestTruthy(t *testing.T) {
	assert.False(t, Missing().Truthy())
	assert.False(t, Null().Truthy())
	assert.False(t, Int(0).Truthy())
	assert.True(t, Int(2).Truthy())
	assert.True(t, String("x").Truthy())
	assert.False(t, Array().Truthy())
}
