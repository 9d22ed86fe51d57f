package query

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kartikbazzad/bunbase/bunquery/value"
)

func mustRelax(t *testing.T, s string) []byte {
	t.Helper()
	out, err := Relax(s)
	require.NoError(t, err)
	return []byte(out)
}

func compileWhere(t *testing.T, relaxed string) Node {
	t.Helper()
	q, err := Compile(mustRelax(t, relaxed))
	require.NoError(t, err)
	return q.Where
}

func evalOn(t *testing.T, n Node, body string, params map[string]value.Value) value.Value {
	t.Helper()
	doc, err := value.ParseJSON([]byte(body))
	require.NoError(t, err)
	v, err := Eval(n, &Env{Doc: &Document{ID: "0000001", Sequence: 7, Body: doc}, Params: params})
	require.NoError(t, err)
	return v
}

func TestRelax(t *testing.T) {
	out, err := Relax(`{WHAT: ['.name', "x'y"], WHERE: ['=', ['.state'], 'it\'s "CA"']}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"WHAT": [".name", "x'y"], "WHERE": ["=", [".state"], "it's \"CA\""]}`, out)

	_, err = Relax(`['unterminated]`)
	assert.Error(t, err)
}

func TestCompileRejectsInvalidQueries(t *testing.T) {
	bad := []string{
		`['=']`,
		`['=', 1]`,
		`['frobnicate', 1, 2]`,
		`['nosuch()', 1]`,
		`['length()']`,
		`[17, 1]`,
		`[]`,
		`['AND', ['=', 1, 1]]`,
		`['ANY', 'x', ['.a']]`,
		`['ANY', 'not valid', ['.a'], true]`,
		`['=', ['?x'], 1]`,
		`['ANY', 'x', ['.a'], ['=', ['?y'], 1]]`,
		`['NOT', ['MATCH', 'idx', 'foo']]`,
		`['OR', ['MATCH', 'idx', 'foo'], true]`,
		`['=', ['min()', ['.a']], 1]`,
		`{WHAT: ['.a'], WHERE: ['=', ['.a'], 1], BOGUS: 1}`,
		`{WHAT: []}`,
		`{WHAT: ['.a'], HAVING: ['=', 1, 1]}`,
		`{ORDER_BY: [[['.a'], 'SIDEWAYS']]}`,
		`{WHAT: [['max()', ['max()', ['.a']]]]}`,
		`['.a..b']`,
		`['$', 0]`,
		`"just a string"`,
	}
	for _, src := range bad {
		q, err := Compile(mustRelax(t, src))
		assert.Nil(t, q, src)
		var ce *CompileError
		assert.True(t, errors.As(err, &ce), "%s: %v", src, err)
	}
}

func TestCompileErrorPosition(t *testing.T) {
	_, err := Compile(mustRelax(t, `{WHERE: ['AND', ['=', 1, 1], ['>', 2]]}`))
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "WHERE[2]", ce.Pos)
}

func TestCompileQueryObject(t *testing.T) {
	q, err := Compile(mustRelax(t, `{
		WHAT: ['.name.first', ['AS', ['length()', ['.name.first']], 'len'], ['._id'], '.name.first'],
		WHERE: ['AND', ['=', ['.contact.address.state'], ['$', 1]], ['=', ['$state'], 'CA']],
		ORDER_BY: [['DESC', ['.name.last']], ['.name.first'], [['.age'], 'DESC']]
	}`))
	require.NoError(t, err)

	titles := make([]string, len(q.What))
	for i, c := range q.What {
		titles[i] = c.Title
	}
	assert.Equal(t, []string{"first", "len", "_id", "first #2"}, titles)
	assert.Equal(t, []string{"1", "state"}, q.Params)
	require.Len(t, q.OrderBy, 3)
	assert.True(t, q.OrderBy[0].Desc)
	assert.False(t, q.OrderBy[1].Desc)
	assert.True(t, q.OrderBy[2].Desc)
	assert.False(t, q.IsAggregate())
}

func TestCompileDefaultsToDocumentID(t *testing.T) {
	q, err := Compile(mustRelax(t, `['=', ['.a'], 1]`))
	require.NoError(t, err)
	require.Len(t, q.What, 1)
	assert.Equal(t, &Meta{Field: MetaID}, q.What[0].Expr)
}

func TestCompileAggregates(t *testing.T) {
	q, err := Compile(mustRelax(t, `{
		WHAT: ['.state', ['min()', ['.name.last']], ['max()', ['.name.last']], ['count()']],
		GROUP_BY: ['.state'],
		HAVING: ['>', ['count()'], 1]
	}`))
	require.NoError(t, err)
	assert.True(t, q.IsAggregate())
	require.Len(t, q.Aggregates, 4)
	for i, a := range q.Aggregates {
		assert.Equal(t, i, a.Slot)
	}
	assert.Nil(t, q.Aggregates[2].Arg)
}

func TestConstantFolding(t *testing.T) {
	where := compileWhere(t, `['=', ['.a'], ['+', 1, ['*', 2, 3]]]`)
	bin := where.(*Binary)
	lit, ok := bin.Right.(*Literal)
	require.True(t, ok)
	assert.Equal(t, 7.0, lit.Value.AsNumber())
}

func TestCanonicalIgnoresSpelling(t *testing.T) {
	a := compileWhere(t, `['=', ['.', 'name', 'first'], 'x']`)
	b := compileWhere(t, `['==', ['.name.first'], 'x']`)
	assert.Equal(t, Canonical(a), Canonical(b))

	nodes, err := CompileIndexExpressions(mustRelax(t, `['.name.first', ['length()', ['.name.first']]]`))
	require.NoError(t, err)
	assert.Equal(t, Canonical(a.(*Binary).Left), Canonical(nodes[0]))
	assert.Equal(t, `["length()",[".name.first"]]`, Canonical(nodes[1]))
}

func TestIndexExpressionsRejectParameters(t *testing.T) {
	_, err := CompileIndexExpressions(mustRelax(t, `[['.a'], ['$', 1]]`))
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	_, err = CompileIndexExpressions(mustRelax(t, `[['count()', ['.a']]]`))
	require.ErrorAs(t, err, &ce)
	_, err = CompileIndexExpressions(mustRelax(t, `[]`))
	require.ErrorAs(t, err, &ce)
}

func TestMissingVersusNull(t *testing.T) {
	body := `{"contact":{"phone":["555"],"fax":null}}`
	tests := []struct {
		expr string
		want bool
	}{
		{`['IS', ['.contact.phone[1]'], ['MISSING']]`, true},
		{`['IS', ['.contact.phone[1]'], null]`, false},
		{`['IS', ['.contact.fax'], null]`, true},
		{`['IS', ['.contact.fax'], ['MISSING']]`, false},
		{`['IS NOT', ['.contact.phone[0]'], ['MISSING']]`, true},
		{`['IS', ['MISSING'], ['MISSING']]`, true},
	}
	for _, tt := range tests {
		v := evalOn(t, compileWhere(t, tt.expr), body, nil)
		assert.Equal(t, value.Bool(tt.want), v, tt.expr)
	}

	assert.True(t, evalOn(t, compileWhere(t, `['=', ['.nope'], null]`), body, nil).IsMissing())
	assert.True(t, evalOn(t, compileWhere(t, `['=', ['.contact.fax'], 1]`), body, nil).IsNull())
}

func TestComparisonTypeMismatch(t *testing.T) {
	body := `{"n": 5, "s": "5"}`
	assert.Equal(t, value.Bool(false), evalOn(t, compileWhere(t, `['=', ['.n'], ['.s']]`), body, nil))
	assert.Equal(t, value.Bool(false), evalOn(t, compileWhere(t, `['<', ['.n'], ['.s']]`), body, nil))
	assert.Equal(t, value.Bool(true), evalOn(t, compileWhere(t, `['!=', ['.n'], ['.s']]`), body, nil))
	assert.Equal(t, value.Bool(true), evalOn(t, compileWhere(t, `['<', ['.n'], 6]`), body, nil))
	assert.True(t, evalOn(t, compileWhere(t, `['+', ['.n'], ['.s']]`), body, nil).IsNull())
}

func TestQuantifiers(t *testing.T) {
	tests := []struct {
		kind  string
		likes string
		want  bool
	}{
		{"ANY", `["climbing","biking"]`, true},
		{"ANY", `["swimming"]`, false},
		{"ANY", `[]`, false},
		{"EVERY", `["climbing","climbing"]`, true},
		{"EVERY", `["climbing","biking"]`, false},
		{"EVERY", `[]`, true},
		{"ANY AND EVERY", `["climbing"]`, true},
		{"ANY AND EVERY", `["climbing","biking"]`, false},
		{"ANY AND EVERY", `[]`, false},
	}
	for _, tt := range tests {
		n := compileWhere(t, `['`+tt.kind+`', 'like', ['.likes'], ['=', ['?like'], 'climbing']]`)
		v := evalOn(t, n, `{"likes":`+tt.likes+`}`, nil)
		assert.Equal(t, value.Bool(tt.want), v, "%s over %s", tt.kind, tt.likes)
	}

	// A missing or non-array source is an empty sequence.
	every := compileWhere(t, `['EVERY', 'x', ['.nope'], false]`)
	assert.Equal(t, value.Bool(true), evalOn(t, every, `{}`, nil))
	anyEvery := compileWhere(t, `['ANY AND EVERY', 'x', ['.s'], true]`)
	assert.Equal(t, value.Bool(false), evalOn(t, anyEvery, `{"s":"abc"}`, nil))
}

func TestNestedQuantifierScopes(t *testing.T) {
	n := compileWhere(t, `['ANY', 'row', ['.rows'],
		['ANY', 'cell', ['?row.cells'], ['AND', ['=', ['?cell'], ['?row.want']], ['>', ['?cell'], 1]]]]`)
	assert.Equal(t, value.Bool(true), evalOn(t, n, `{"rows":[{"cells":[1,2],"want":1},{"cells":[3,4],"want":4}]}`, nil))
	assert.Equal(t, value.Bool(false), evalOn(t, n, `{"rows":[{"cells":[1,2],"want":1}]}`, nil))
}

func TestLikeAndFunctions(t *testing.T) {
	body := `{"name":{"first":"Claude","last":"Müller"},"tags":[1,null,3],"n":-2.5}`
	cases := map[string]value.Value{
		`['LIKE', ['.name.first'], '%l%']`:            value.Bool(true),
		`['LIKE', ['.name.first'], 'C_aude']`:         value.Bool(true),
		`['LIKE', ['.name.first'], 'c%']`:             value.Bool(false),
		`['NOT LIKE', ['.name.first'], 'X%']`:         value.Bool(true),
		`['length()', ['.name.last']]`:                value.Int(6),
		`['array_count()', ['.tags']]`:                value.Int(2),
		`['array_length()', ['.tags']]`:               value.Int(3),
		`['array_sum()', ['.tags']]`:                  value.Int(4),
		`['array_contains()', ['.tags'], 3]`:          value.Bool(true),
		`['upper()', ['.name.first']]`:                value.String("CLAUDE"),
		`['abs()', ['.n']]`:                           value.Number(2.5),
		`['round()', 3.14159, 2]`:                     value.Number(3.14),
		`['type()', ['.nope']]`:                       value.String("missing"),
		`['ifmissing()', ['.nope'], 'dflt']`:          value.String("dflt"),
		`['-', ['.n']]`:                               value.Number(2.5),
		`['BETWEEN', ['.n'], -3, 0]`:                  value.Bool(true),
		`['IN', ['.name.first'], ['[]', 'Ann', 'Claude']]`: value.Bool(true),
		`['NOT IN', 2, ['.tags']]`:                    value.Bool(true),
		`['/', 1, 0]`:                                 value.Null(),
		`['_.', {'a': {'b': 9}}, 'a.b']`:              value.Int(9),
	}
	for src, want := range cases {
		assert.Equal(t, want, evalOn(t, compileWhere(t, src), body, nil), src)
	}
	assert.True(t, evalOn(t, compileWhere(t, `['length()', ['.nope']]`), body, nil).IsMissing())
	assert.True(t, evalOn(t, compileWhere(t, `['length()', ['.tags']]`), body, nil).IsNull())
}

func TestThreeValuedLogic(t *testing.T) {
	body := `{"t": true, "f": false, "z": null}`
	assert.Equal(t, value.Bool(false), evalOn(t, compileWhere(t, `['AND', ['.nope'], ['.f']]`), body, nil))
	assert.True(t, evalOn(t, compileWhere(t, `['AND', ['.nope'], ['.t']]`), body, nil).IsMissing())
	assert.True(t, evalOn(t, compileWhere(t, `['AND', ['.z'], ['.t']]`), body, nil).IsNull())
	assert.Equal(t, value.Bool(true), evalOn(t, compileWhere(t, `['OR', ['.nope'], ['.t']]`), body, nil))
	assert.True(t, evalOn(t, compileWhere(t, `['NOT', ['.nope']]`), body, nil).IsMissing())
	assert.Equal(t, value.Bool(true), evalOn(t, compileWhere(t, `['NOT', ['.f']]`), body, nil))
}

func TestParameters(t *testing.T) {
	n := compileWhere(t, `['=', ['.state'], ['$', 1]]`)
	v := evalOn(t, n, `{"state":"CA"}`, map[string]value.Value{"1": value.String("CA")})
	assert.Equal(t, value.Bool(true), v)

	doc, _ := value.ParseJSON([]byte(`{"state":"CA"}`))
	_, err := Eval(n, &Env{Doc: &Document{Body: doc}})
	assert.ErrorIs(t, err, ErrUnboundParameter)
}

func TestMetaProperties(t *testing.T) {
	assert.Equal(t, value.String("0000001"), evalOn(t, compileWhere(t, `['._id']`), `{}`, nil))
	assert.Equal(t, value.Int(7), evalOn(t, compileWhere(t, `['.', '_sequence']`), `{}`, nil))
}

func TestMatchWithoutMatcher(t *testing.T) {
	q, err := Compile(mustRelax(t, `['AND', ['MATCH', 'street', 'Hwy'], ['=', 1, 1]]`))
	require.NoError(t, err)
	require.Len(t, q.Matches, 1)
	doc, _ := value.ParseJSON([]byte(`{}`))
	_, err = Eval(q.Where, &Env{Doc: &Document{Body: doc}})
	assert.ErrorIs(t, err, ErrNoMatcher)
}

func TestAccumulator(t *testing.T) {
	empty := map[AggFunc]value.Value{
		AggCount: value.Int(0),
		AggSum:   value.Int(0),
		AggAvg:   value.Null(),
		AggMin:   value.Null(),
		AggMax:   value.Null(),
	}
	for fn, want := range empty {
		assert.Equal(t, want, NewAccumulator(fn).Result(), fn.String())
	}

	inputs := []value.Value{value.String("b"), value.Null(), value.String("a"), value.Missing(), value.String("c")}
	lo, hi, count := NewAccumulator(AggMin), NewAccumulator(AggMax), NewAccumulator(AggCount)
	for _, v := range inputs {
		lo.Add(v)
		hi.Add(v)
		count.Add(v)
	}
	assert.Equal(t, value.String("a"), lo.Result())
	assert.Equal(t, value.String("c"), hi.Result())
	assert.Equal(t, value.Int(3), count.Result())

	avg := NewAccumulator(AggAvg)
	for _, n := range []int{1, 2, 6} {
		avg.Add(value.Int(n))
	}
	assert.Equal(t, value.Int(3), avg.Result())
}

func TestStaticKind(t *testing.T) {
	nodes, err := CompileIndexExpressions(mustRelax(t, `['.a', ['lower()', ['.a']], ['length()', ['.a']]]`))
	require.NoError(t, err)
	assert.Equal(t, value.KindMissing, StaticKind(nodes[0]))
	assert.Equal(t, value.KindString, StaticKind(nodes[1]))
	assert.Equal(t, value.KindNumber, StaticKind(nodes[2]))
}
