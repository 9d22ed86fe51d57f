package index

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kartikbazzad/bunbase/bunquery/internal/query"
	"github.com/kartikbazzad/bunbase/bunquery/value"
)

func doc(t *testing.T, id, body string) *query.Document {
	t.Helper()
	v, err := value.ParseJSON([]byte(body))
	require.NoError(t, err)
	return &query.Document{ID: id, Body: v}
}

func put(t *testing.T, ix *Index, id, body string) {
	t.Helper()
	ch, err := ix.Extract(id, doc(t, id, body))
	require.NoError(t, err)
	ix.Apply(ch)
}

func key(v value.Value) []byte { return value.AppendKey(nil, v) }

func TestValueIndexScan(t *testing.T) {
	ix, err := New(Definition{Name: "len", Expressions: json.RawMessage(`[["length()", [".name"]], [".age"]]`)})
	require.NoError(t, err)

	put(t, ix, "a", `{"name":"Ann","age":30}`)
	put(t, ix, "b", `{"name":"Bob","age":20}`)
	put(t, ix, "c", `{"name":"Carol","age":40}`)
	put(t, ix, "d", `{"age":50}`) // leading expression MISSING: not indexed
	put(t, ix, "e", `{"name":"Eve"}`)
	assert.Equal(t, 4, ix.Len())

	// Second expression breaks ties: b (20) < a (30) < e (MISSING sorts first).
	assert.Equal(t, []string{"e", "b", "a"}, ix.Values().Scan(Exact(key(value.Int(3)))))
	assert.Equal(t, []string{"c"}, ix.Values().Scan(Range{Low: key(value.Int(3)), LowInclusive: false}))

	lo, hi := value.KindKeyBounds(value.KindNumber)
	assert.Len(t, ix.Values().Scan(Range{Low: lo, High: hi, LowInclusive: true}), 4)
	assert.Equal(t, []string{"e", "b", "a"}, ix.Values().Scan(Range{High: key(value.Int(5)), HighInclusive: false}))
	assert.Empty(t, ix.Values().Scan(Exact(key(value.String("3")))))

	// Update moves the entry; deletion removes it.
	put(t, ix, "a", `{"name":"Annabel","age":30}`)
	assert.Equal(t, []string{"e", "b"}, ix.Values().Scan(Exact(key(value.Int(3)))))
	ch, err := ix.Extract("b", nil)
	require.NoError(t, err)
	ix.Apply(ch)
	assert.Equal(t, []string{"e"}, ix.Values().Scan(Exact(key(value.Int(3)))))
	assert.Equal(t, 3, ix.Len())
}

func TestFullTextIndex(t *testing.T) {
	ix, err := New(Definition{Name: "street", Kind: KindFullText, Expressions: json.RawMessage(`[[".contact.address.street"]]`)})
	require.NoError(t, err)
	require.NotNil(t, ix.Text())
	require.Nil(t, ix.Values())

	put(t, ix, "1", `{"contact":{"address":{"street":"4532 Main Hwy"}}}`)
	put(t, ix, "2", `{"contact":{"address":{"street":42}}}`)
	put(t, ix, "3", `{"contact":{"address":{"street":"1 Hwy 9"}}}`)
	assert.Equal(t, 2, ix.Len())

	ids, err := ix.Text().Search("Hwy")
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "3"}, ids)

	put(t, ix, "3", `{"contact":{}}`)
	ids, err = ix.Text().Search("Hwy")
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, ids)
}

func TestNewRejectsBadDefinitions(t *testing.T) {
	_, err := New(Definition{Name: "p", Expressions: json.RawMessage(`[["$", 1]]`)})
	var ce *query.CompileError
	assert.True(t, errors.As(err, &ce))

	_, err = New(Definition{Name: "n", Kind: KindFullText, Expressions: json.RawMessage(`[["length()", [".name"]]]`)})
	assert.ErrorIs(t, err, ErrUnsupportedExpression)
}

func TestKindJSON(t *testing.T) {
	b, err := json.Marshal(Definition{Name: "x", Kind: KindFullText, Expressions: json.RawMessage(`[".a"]`)})
	require.NoError(t, err)
	var def Definition
	require.NoError(t, json.Unmarshal(b, &def))
	assert.Equal(t, KindFullText, def.Kind)

	_, err = ParseKind("btree")
	assert.Error(t, err)
}
