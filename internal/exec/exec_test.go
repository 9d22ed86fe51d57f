package exec

import (
	"encoding/json"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kartikbazzad/bunbase/bunquery/internal/index"
	"github.com/kartikbazzad/bunbase/bunquery/internal/query"
	"github.com/kartikbazzad/bunbase/bunquery/storage"
	"github.com/kartikbazzad/bunbase/bunquery/value"
)

type memSource struct {
	docs map[string]*storage.Document
	ids  []string
}

func (m *memSource) IDs() []string { return m.ids }

func (m *memSource) Get(id string) (*storage.Document, error) {
	d, ok := m.docs[id]
	if !ok {
		return nil, storage.ErrDocNotFound
	}
	return d, nil
}

var corpus = map[string]string{
	"a": `{"n":1,"name":"ann","city":"Oslo","text":"red fox jumps"}`,
	"b": `{"n":5,"name":"bob","city":"Rome","text":"lazy dog"}`,
	"c": `{"n":3,"name":"cy","city":"Oslo","text":"quick red fox"}`,
	"d": `{"name":"dee","city":"Rome"}`,
	"e": `{"n":"7","name":"eve","city":"Paris"}`,
}

func newSource(t *testing.T) *memSource {
	t.Helper()
	src := &memSource{docs: make(map[string]*storage.Document)}
	for id, js := range corpus {
		body, err := value.ParseJSON([]byte(js))
		require.NoError(t, err)
		src.docs[id] = &storage.Document{ID: id, Body: body, Sequence: 1}
		src.ids = append(src.ids, id)
	}
	// A stale id the snapshot no longer sees.
	src.ids = append(src.ids, "zz")
	sort.Strings(src.ids)
	return src
}

func newIndex(t *testing.T, src *memSource, name string, kind index.Kind, exprs string) *index.Index {
	t.Helper()
	ix, err := index.New(index.Definition{Name: name, Kind: kind, Expressions: json.RawMessage(exprs)})
	require.NoError(t, err)
	for id, d := range src.docs {
		ch, err := ix.Extract(id, &query.Document{ID: id, Body: d.Body})
		require.NoError(t, err)
		ix.Apply(ch)
	}
	return ix
}

func run(t *testing.T, src *memSource, indexes []*index.Index, q string, params map[string]value.Value, skip, limit int) [][]value.Value {
	t.Helper()
	cq, err := query.Compile([]byte(q))
	require.NoError(t, err)
	s, err := Analyze(cq, indexes)
	require.NoError(t, err)
	p, err := s.Bind(params)
	require.NoError(t, err)
	it := p.Open(src, skip, limit)
	defer it.Close()
	var rows [][]value.Value
	for it.Next() {
		rows = append(rows, it.Row().Values)
	}
	require.NoError(t, it.Err())
	return rows
}

func ids(rows [][]value.Value) []string {
	out := []string{}
	for _, r := range rows {
		out = append(out, r[0].AsString())
	}
	return out
}

func TestScanAndIndexAgree(t *testing.T) {
	src := newSource(t)
	byN := newIndex(t, src, "byN", index.KindValue, `[[".n"]]`)

	cases := []struct {
		where string
		want  []string
	}{
		{`["<", [".n"], 4]`, []string{"a", "c"}},
		{`[">=", [".n"], 3]`, []string{"b", "c"}},
		{`[">", 4, [".n"]]`, []string{"a", "c"}},
		{`["=", [".n"], "7"]`, []string{"e"}},
		{`["BETWEEN", [".n"], 2, 5]`, []string{"b", "c"}},
		{`["IN", [".n"], ["[]", 1, 5, "7"]]`, []string{"a", "b", "e"}},
		{`["=", [".n"], null]`, []string{}},
		{`["AND", ["<", [".n"], 10], ["=", [".city"], "Oslo"]]`, []string{"a", "c"}},
	}
	for _, tc := range cases {
		t.Run(tc.where, func(t *testing.T) {
			q := `{"WHERE": ` + tc.where + `}`
			assert.Equal(t, tc.want, ids(run(t, src, nil, q, nil, 0, -1)), "scan")
			assert.Equal(t, tc.want, ids(run(t, src, []*index.Index{byN}, q, nil, 0, -1)), "index")
		})
	}
}

func TestExplain(t *testing.T) {
	src := newSource(t)
	byN := newIndex(t, src, "byN", index.KindValue, `[[".n"]]`)
	cq, err := query.Compile([]byte(`{"WHERE": ["=", [".n"], 1], "ORDER_BY": [[".name", "DESC"]]}`))
	require.NoError(t, err)

	s, err := Analyze(cq, []*index.Index{byN})
	require.NoError(t, err)
	assert.Contains(t, s.Explain(), "INDEX byN")
	assert.Contains(t, s.Explain(), "SORT")
	assert.Equal(t, []string{"byN"}, s.IndexesUsed())

	s, err = Analyze(cq, nil)
	require.NoError(t, err)
	assert.Contains(t, s.Explain(), "SCAN all documents")
}

func TestMatch(t *testing.T) {
	src := newSource(t)
	text := newIndex(t, src, "text", index.KindFullText, `[[".text"]]`)

	rows := run(t, src, []*index.Index{text}, `["MATCH", "text", "red fox"]`, nil, 0, -1)
	assert.Equal(t, []string{"a", "c"}, ids(rows))

	rows = run(t, src, []*index.Index{text}, `["AND", ["MATCH", [".text"], "fox"], ["=", [".name"], "cy"]]`, nil, 0, -1)
	assert.Equal(t, []string{"c"}, ids(rows))

	rows = run(t, src, []*index.Index{text}, `["MATCH", "text", ["$", "q"]]`,
		map[string]value.Value{"q": value.String("dog")}, 0, -1)
	assert.Equal(t, []string{"b"}, ids(rows))

	cq, err := query.Compile([]byte(`["MATCH", "text", "fox"]`))
	require.NoError(t, err)
	_, err = Analyze(cq, nil)
	assert.ErrorIs(t, err, ErrNoIndex)
}

func TestGroupBy(t *testing.T) {
	src := newSource(t)
	rows := run(t, src, nil, `{"WHAT": [".city", ["count()"], ["min()", [".name"]], ["max()", [".name"]]],
		"GROUP_BY": [".city"]}`, nil, 0, -1)
	require.Len(t, rows, 3)
	assert.Equal(t, `["Oslo",2,"ann","cy"]`, value.Array(rows[0]...).String())
	assert.Equal(t, `["Paris",1,"eve","eve"]`, value.Array(rows[1]...).String())
	assert.Equal(t, `["Rome",2,"bob","dee"]`, value.Array(rows[2]...).String())

	rows = run(t, src, nil, `{"WHAT": [".city"], "GROUP_BY": [".city"], "HAVING": [">", ["count()"], 1]}`, nil, 0, -1)
	assert.Equal(t, []string{"Oslo", "Rome"}, ids(rows))
}

func TestAggregateOverNoRows(t *testing.T) {
	src := newSource(t)
	rows := run(t, src, nil, `{"WHAT": [["count()"], ["sum()", [".n"]], ["min()", [".n"]]], "WHERE": [">", [".n"], 100]}`, nil, 0, -1)
	require.Len(t, rows, 1)
	assert.Equal(t, `[0,0,null]`, value.Array(rows[0]...).String())
}

func TestSortSkipLimit(t *testing.T) {
	src := newSource(t)
	q := `{"WHAT": [["._id"]], "ORDER_BY": [[".n", "DESC"]]}`
	assert.Equal(t, []string{"e", "b", "c", "a", "d"}, ids(run(t, src, nil, q, nil, 0, -1)))
	assert.Equal(t, []string{"b", "c"}, ids(run(t, src, nil, q, nil, 1, 2)))
	assert.Equal(t, []string{}, ids(run(t, src, nil, q, nil, 10, -1)))

	q = `{"WHAT": [["._id"]], "ORDER_BY": [".n"]}`
	assert.Equal(t, []string{"d", "a", "c", "b", "e"}, ids(run(t, src, nil, q, nil, 0, -1)))
}

func TestDistinct(t *testing.T) {
	src := newSource(t)
	rows := run(t, src, nil, `{"WHAT": [".city"], "DISTINCT": true}`, nil, 0, -1)
	assert.Equal(t, []string{"Oslo", "Rome", "Paris"}, ids(rows))
}

func TestUnboundParameter(t *testing.T) {
	src := newSource(t)
	cq, err := query.Compile([]byte(`["=", [".city"], ["$", "city"]]`))
	require.NoError(t, err)
	s, err := Analyze(cq, nil)
	require.NoError(t, err)
	p, err := s.Bind(nil)
	require.NoError(t, err)
	it := p.Open(src, 0, -1)
	assert.False(t, it.Next())
	assert.ErrorIs(t, it.Err(), query.ErrUnboundParameter)
}
