// Package exec plans and runs compiled queries.
//
// Planning happens in two steps. Analyze looks at the WHERE clause and the
// available indexes and decides which conjuncts an index can answer; it
// needs no bindings. Bind evaluates the probe operands with the run's
// bindings and turns them into a candidate document set. Open then builds
// a pull-based iterator pipeline over a Source.
package exec

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/exp/slices"

	"github.com/kartikbazzad/bunbase/bunquery/internal/index"
	"github.com/kartikbazzad/bunbase/bunquery/internal/query"
	"github.com/kartikbazzad/bunbase/bunquery/value"
)

// ErrNoIndex is returned when a MATCH predicate has no full-text index to
// answer it.
var ErrNoIndex = errors.New("no full-text index for MATCH")

type probeKind int

const (
	probeCompare probeKind = iota
	probeBetween
	probeIn
)

// probe is a conjunct of WHERE that a value index can narrow. The indexed
// expression is always on the left of Op.
type probe struct {
	ix    *index.Index
	kind  probeKind
	op    query.Op
	args  []query.Node
	canon string
}

// Strategy is the binding-independent part of a plan.
type Strategy struct {
	q      *query.Query
	probes []probe
	texts  []*index.Index // by Match.Slot
}

// Analyze chooses the indexes for q. It fails with ErrNoIndex if a MATCH
// predicate names no existing full-text index.
func Analyze(q *query.Query, indexes []*index.Index) (*Strategy, error) {
	s := &Strategy{q: q, texts: make([]*index.Index, len(q.Matches))}
	for _, m := range q.Matches {
		ix := findTextIndex(m, indexes)
		if ix == nil {
			return nil, fmt.Errorf("%w: %s", ErrNoIndex, query.Canonical(m.Target))
		}
		s.texts[m.Slot] = ix
	}
	for _, c := range conjuncts(q.Where) {
		if p, ok := probeFor(c, indexes); ok {
			s.probes = append(s.probes, p)
		}
	}
	return s, nil
}

func findTextIndex(m *query.Match, indexes []*index.Index) *index.Index {
	if lit, ok := m.Target.(*query.Literal); ok && lit.Value.Kind() == value.KindString {
		for _, ix := range indexes {
			if ix.Def.Kind == index.KindFullText && ix.Def.Name == lit.Value.AsString() {
				return ix
			}
		}
		return nil
	}
	canon := query.Canonical(m.Target)
	for _, ix := range indexes {
		if ix.Def.Kind == index.KindFullText && slices.Contains(ix.Canonical, canon) {
			return ix
		}
	}
	return nil
}

// conjuncts flattens nested top-level ANDs.
func conjuncts(n query.Node) []query.Node {
	if l, ok := n.(*query.Logical); ok && l.Op == query.OpAnd {
		var out []query.Node
		for _, a := range l.Args {
			out = append(out, conjuncts(a)...)
		}
		return out
	}
	if n == nil {
		return nil
	}
	return []query.Node{n}
}

var flipped = map[query.Op]query.Op{
	query.OpEq: query.OpEq,
	query.OpLt: query.OpGt,
	query.OpLe: query.OpGe,
	query.OpGt: query.OpLt,
	query.OpGe: query.OpLe,
}

func probeFor(c query.Node, indexes []*index.Index) (probe, bool) {
	switch t := c.(type) {
	case *query.Binary:
		if _, ok := flipped[t.Op]; !ok {
			return probe{}, false
		}
		if ix := valueIndexOn(t.Left, indexes); ix != nil && independent(t.Right) {
			return probe{ix: ix, kind: probeCompare, op: t.Op, args: []query.Node{t.Right}, canon: query.Canonical(c)}, true
		}
		if ix := valueIndexOn(t.Right, indexes); ix != nil && independent(t.Left) {
			return probe{ix: ix, kind: probeCompare, op: flipped[t.Op], args: []query.Node{t.Left}, canon: query.Canonical(c)}, true
		}
	case *query.Between:
		if t.Not || !independent(t.Low) || !independent(t.High) {
			return probe{}, false
		}
		if ix := valueIndexOn(t.Arg, indexes); ix != nil {
			return probe{ix: ix, kind: probeBetween, args: []query.Node{t.Low, t.High}, canon: query.Canonical(c)}, true
		}
	case *query.In:
		if t.Not || !independent(t.List) {
			return probe{}, false
		}
		if ix := valueIndexOn(t.Arg, indexes); ix != nil {
			return probe{ix: ix, kind: probeIn, args: []query.Node{t.List}, canon: query.Canonical(c)}, true
		}
	}
	return probe{}, false
}

// valueIndexOn returns a value index whose first expression is e.
func valueIndexOn(e query.Node, indexes []*index.Index) *index.Index {
	canon := query.Canonical(e)
	for _, ix := range indexes {
		if ix.Def.Kind == index.KindValue && ix.Canonical[0] == canon {
			return ix
		}
	}
	return nil
}

// independent reports whether n can be evaluated without a document.
func independent(n query.Node) bool {
	return !query.Contains(n, func(x query.Node) bool {
		switch x.(type) {
		case *query.Property, *query.PropertyOf, *query.Meta, *query.Variable,
			*query.Match, *query.Aggregate, *query.Quantifier:
			return true
		}
		return false
	})
}

// Explain describes the strategy, one step per line.
func (s *Strategy) Explain() string {
	q := s.q
	var lines []string
	if len(s.probes) == 0 && len(s.texts) == 0 {
		lines = append(lines, "SCAN all documents")
	}
	for _, p := range s.probes {
		lines = append(lines, fmt.Sprintf("INDEX %s ON %s FOR %s", p.ix.Def.Name, p.ix.Canonical[0], p.canon))
	}
	for _, ix := range s.texts {
		lines = append(lines, fmt.Sprintf("FULL-TEXT %s ON %s", ix.Def.Name, strings.Join(ix.Canonical, ", ")))
	}
	if q.Where != nil {
		lines = append(lines, "FILTER "+query.Canonical(q.Where))
	}
	if len(q.GroupBy) > 0 {
		lines = append(lines, "GROUP BY "+canonList(q.GroupBy))
	} else if q.IsAggregate() {
		lines = append(lines, "AGGREGATE all rows")
	}
	if q.Having != nil {
		lines = append(lines, "HAVING "+query.Canonical(q.Having))
	}
	cols := make([]query.Node, len(q.What))
	for i, c := range q.What {
		cols[i] = c.Expr
	}
	lines = append(lines, "PROJECT "+canonList(cols))
	if q.Distinct {
		lines = append(lines, "DISTINCT")
	}
	if len(q.OrderBy) > 0 {
		keys := make([]string, len(q.OrderBy))
		for i, o := range q.OrderBy {
			keys[i] = query.Canonical(o.Expr)
			if o.Desc {
				keys[i] += " DESC"
			}
		}
		lines = append(lines, "SORT "+strings.Join(keys, ", "))
	}
	return strings.Join(lines, "\n")
}

func canonList(ns []query.Node) string {
	parts := make([]string, len(ns))
	for i, n := range ns {
		parts[i] = query.Canonical(n)
	}
	return strings.Join(parts, ", ")
}

// Plan is a strategy bound to a set of parameter values.
type Plan struct {
	Strategy *Strategy
	Params   map[string]value.Value
	// Candidates restricts the scan to these ids, in ascending order. nil
	// scans every document.
	Candidates []string
	matches    []map[string]struct{}
}

// Bind evaluates the index probes and MATCH queries with params. It must
// run while the indexes agree with the snapshot the plan will be opened on.
func (s *Strategy) Bind(params map[string]value.Value) (*Plan, error) {
	p := &Plan{Strategy: s, Params: params, matches: make([]map[string]struct{}, len(s.texts))}
	env := &query.Env{Params: params}

	var sets [][]string
	for slot, ix := range s.texts {
		qv, err := query.Eval(s.q.Matches[slot].Query, env)
		if err != nil {
			return nil, err
		}
		var ids []string
		if qv.Kind() == value.KindString {
			if ids, err = ix.Text().Search(qv.AsString()); err != nil {
				return nil, err
			}
		}
		set := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			set[id] = struct{}{}
		}
		p.matches[slot] = set
		sets = append(sets, ids)
	}

	for _, pr := range s.probes {
		ids, err := pr.scan(env)
		if err != nil {
			return nil, err
		}
		slices.Sort(ids)
		sets = append(sets, slices.Compact(ids))
	}

	for i, ids := range sets {
		if i == 0 {
			p.Candidates = ids
			if p.Candidates == nil {
				p.Candidates = []string{}
			}
			continue
		}
		p.Candidates = intersect(p.Candidates, ids)
	}
	return p, nil
}

func (pr probe) scan(env *query.Env) ([]string, error) {
	vals := make([]value.Value, len(pr.args))
	for i, a := range pr.args {
		v, err := query.Eval(a, env)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	vi := pr.ix.Values()
	switch pr.kind {
	case probeCompare:
		r, ok := compareRange(pr.op, vals[0])
		if !ok {
			return nil, nil
		}
		return vi.Scan(r), nil
	case probeBetween:
		lo, hi := vals[0], vals[1]
		if !matchable(lo) || lo.Kind() != hi.Kind() {
			return nil, nil
		}
		return vi.Scan(index.Range{
			Low: value.AppendKey(nil, lo), LowInclusive: true,
			High: value.AppendKey(nil, hi), HighInclusive: true,
		}), nil
	default:
		var ids []string
		for _, item := range vals[0].Items() {
			if matchable(item) {
				ids = append(ids, vi.Scan(index.Exact(value.AppendKey(nil, item)))...)
			}
		}
		return ids, nil
	}
}

// matchable reports whether a comparison against v can ever be true.
func matchable(v value.Value) bool {
	return !v.IsMissing() && !v.IsNull()
}

// compareRange returns the key range of values x for which "x op v" is
// true. Values of another kind never compare true, so open ends stop at
// the bounds of v's kind.
func compareRange(op query.Op, v value.Value) (index.Range, bool) {
	if !matchable(v) {
		return index.Range{}, false
	}
	key := value.AppendKey(nil, v)
	lo, hi := value.KindKeyBounds(v.Kind())
	switch op {
	case query.OpEq:
		return index.Exact(key), true
	case query.OpLt:
		return index.Range{Low: lo, LowInclusive: true, High: key}, true
	case query.OpLe:
		return index.Range{Low: lo, LowInclusive: true, High: key, HighInclusive: true}, true
	case query.OpGt:
		return index.Range{Low: key, High: hi}, true
	default:
		return index.Range{Low: key, LowInclusive: true, High: hi}, true
	}
}

// intersect merges two ascending id lists.
func intersect(a, b []string) []string {
	out := []string{}
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			i++
		case a[i] > b[j]:
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	return out
}

// IndexesUsed returns the names of the indexes the plan reads.
func (s *Strategy) IndexesUsed() []string {
	var names []string
	for _, p := range s.probes {
		names = append(names, p.ix.Def.Name)
	}
	for _, ix := range s.texts {
		names = append(names, ix.Def.Name)
	}
	slices.Sort(names)
	return slices.Compact(names)
}
