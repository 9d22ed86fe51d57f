package exec

import (
	"bytes"
	"errors"
	"sort"

	"golang.org/x/exp/slices"

	"github.com/kartikbazzad/bunbase/bunquery/internal/query"
	"github.com/kartikbazzad/bunbase/bunquery/storage"
	"github.com/kartikbazzad/bunbase/bunquery/value"
)

// Source is the read view a plan runs against.
type Source interface {
	// IDs returns candidate document ids in ascending order; ids of
	// deleted or not yet visible documents may be included.
	IDs() []string
	Get(id string) (*storage.Document, error)
}

// Row is one row flowing through the pipeline.
type Row struct {
	// Doc is the document the row came from. For a group it is the first
	// document of the group, and nil for the single group of an empty
	// aggregate.
	Doc *query.Document
	// Aggs holds aggregate results by Aggregate.Slot.
	Aggs []value.Value
	// Values holds the projected columns.
	Values []value.Value

	keys []value.Value
}

// Iterator is a forward-only cursor over rows. It follows the cursor
// pattern: Next advances, Row returns the current row.
type Iterator interface {
	Next() bool
	Row() *Row
	// Err returns the error that stopped iteration, if any.
	Err() error
	Close() error
}

// Open builds the iterator pipeline for the plan over src. skip rows are
// dropped first, then at most limit rows are produced; a negative limit is
// unbounded.
func (p *Plan) Open(src Source, skip, limit int) Iterator {
	q := p.Strategy.q
	newEnv := func() *query.Env {
		return &query.Env{Params: p.Params, Matcher: p.match}
	}

	ids := p.Candidates
	if ids == nil {
		ids = src.IDs()
	}
	var it Iterator = &scanIterator{src: src, ids: ids}
	if q.Where != nil {
		it = &filterIterator{source: it, pred: q.Where, env: newEnv()}
	}
	if q.IsAggregate() {
		it = &groupIterator{source: it, q: q, env: newEnv()}
		if q.Having != nil {
			it = &filterIterator{source: it, pred: q.Having, env: newEnv()}
		}
	}
	it = &projectIterator{source: it, q: q, env: newEnv()}
	if q.Distinct {
		it = &distinctIterator{source: it, seen: make(map[string]struct{})}
	}
	if len(q.OrderBy) > 0 {
		it = &sortIterator{source: it, orders: q.OrderBy}
	}
	if skip > 0 {
		it = &skipIterator{source: it, skip: skip}
	}
	if limit >= 0 {
		it = &limitIterator{source: it, limit: limit}
	}
	return it
}

func (p *Plan) match(m *query.Match, docID string) (bool, error) {
	set := p.matches[m.Slot]
	if set == nil {
		return false, ErrNoIndex
	}
	_, ok := set[docID]
	return ok, nil
}

// rowEnv points env at row.
func rowEnv(env *query.Env, row *Row) *query.Env {
	env.Doc = row.Doc
	env.Aggregates = row.Aggs
	return env
}

// scanIterator reads documents by id from the source.
type scanIterator struct {
	src Source
	ids []string
	pos int
	cur *Row
	err error
}

func (it *scanIterator) Next() bool {
	for it.err == nil && it.pos < len(it.ids) {
		id := it.ids[it.pos]
		it.pos++
		doc, err := it.src.Get(id)
		if errors.Is(err, storage.ErrDocNotFound) {
			continue
		}
		if err != nil {
			it.err = err
			return false
		}
		it.cur = &Row{Doc: &query.Document{ID: doc.ID, Sequence: doc.Sequence, RevID: doc.RevID, Body: doc.Body}}
		return true
	}
	return false
}

func (it *scanIterator) Row() *Row    { return it.cur }
func (it *scanIterator) Err() error   { return it.err }
func (it *scanIterator) Close() error { return nil }

// filterIterator keeps rows for which pred is truthy.
type filterIterator struct {
	source Iterator
	pred   query.Node
	env    *query.Env
	err    error
}

func (it *filterIterator) Next() bool {
	for it.err == nil && it.source.Next() {
		v, err := query.Eval(it.pred, rowEnv(it.env, it.source.Row()))
		if err != nil {
			it.err = err
			return false
		}
		if v.Truthy() {
			return true
		}
	}
	return false
}

func (it *filterIterator) Row() *Row    { return it.source.Row() }
func (it *filterIterator) Close() error { return it.source.Close() }

func (it *filterIterator) Err() error {
	if it.err != nil {
		return it.err
	}
	return it.source.Err()
}

type group struct {
	key  []byte
	doc  *query.Document
	accs []*query.Accumulator
}

// groupIterator drains its source on the first Next and emits one row per
// distinct GROUP_BY key tuple, in ascending key order. Without GROUP_BY it
// emits exactly one row.
type groupIterator struct {
	source Iterator
	q      *query.Query
	env    *query.Env
	rows   []*Row
	pos    int
	done   bool
	err    error
}

func (it *groupIterator) newGroup(key []byte, doc *query.Document) *group {
	g := &group{key: key, doc: doc, accs: make([]*query.Accumulator, len(it.q.Aggregates))}
	for i, a := range it.q.Aggregates {
		g.accs[i] = query.NewAccumulator(a.Fn)
	}
	return g
}

func (it *groupIterator) build() error {
	groups := make(map[string]*group)
	var order []*group
	for it.source.Next() {
		row := it.source.Row()
		env := rowEnv(it.env, row)
		var key []byte
		for _, e := range it.q.GroupBy {
			v, err := query.Eval(e, env)
			if err != nil {
				return err
			}
			key = value.AppendKey(key, v)
		}
		g, ok := groups[string(key)]
		if !ok {
			g = it.newGroup(key, row.Doc)
			groups[string(key)] = g
			order = append(order, g)
		}
		for i, a := range it.q.Aggregates {
			v := value.Bool(true)
			if a.Arg != nil {
				var err error
				if v, err = query.Eval(a.Arg, env); err != nil {
					return err
				}
			}
			g.accs[i].Add(v)
		}
	}
	if err := it.source.Err(); err != nil {
		return err
	}
	if len(order) == 0 && len(it.q.GroupBy) == 0 {
		order = append(order, it.newGroup(nil, nil))
	}
	slices.SortFunc(order, func(a, b *group) int { return bytes.Compare(a.key, b.key) })

	it.rows = make([]*Row, len(order))
	for i, g := range order {
		aggs := make([]value.Value, len(g.accs))
		for j, acc := range g.accs {
			aggs[j] = acc.Result()
		}
		it.rows[i] = &Row{Doc: g.doc, Aggs: aggs}
	}
	return nil
}

func (it *groupIterator) Next() bool {
	if !it.done {
		it.done = true
		if it.err = it.build(); it.err != nil {
			return false
		}
	}
	if it.pos >= len(it.rows) {
		return false
	}
	it.pos++
	return true
}

func (it *groupIterator) Row() *Row    { return it.rows[it.pos-1] }
func (it *groupIterator) Err() error   { return it.err }
func (it *groupIterator) Close() error { return it.source.Close() }

// projectIterator evaluates the WHAT columns and ORDER_BY keys of each row.
type projectIterator struct {
	source Iterator
	q      *query.Query
	env    *query.Env
	err    error
}

func (it *projectIterator) Next() bool {
	if it.err != nil || !it.source.Next() {
		return false
	}
	row := it.source.Row()
	env := rowEnv(it.env, row)
	row.Values = make([]value.Value, len(it.q.What))
	for i, c := range it.q.What {
		v, err := query.Eval(c.Expr, env)
		if err != nil {
			it.err = err
			return false
		}
		row.Values[i] = v
	}
	if len(it.q.OrderBy) > 0 {
		row.keys = make([]value.Value, len(it.q.OrderBy))
		for i, o := range it.q.OrderBy {
			v, err := query.Eval(o.Expr, env)
			if err != nil {
				it.err = err
				return false
			}
			row.keys[i] = v
		}
	}
	return true
}

func (it *projectIterator) Row() *Row    { return it.source.Row() }
func (it *projectIterator) Close() error { return it.source.Close() }

func (it *projectIterator) Err() error {
	if it.err != nil {
		return it.err
	}
	return it.source.Err()
}

// distinctIterator drops rows whose columns equal an earlier row's.
type distinctIterator struct {
	source Iterator
	seen   map[string]struct{}
}

func (it *distinctIterator) Next() bool {
	for it.source.Next() {
		var key []byte
		for _, v := range it.source.Row().Values {
			key = value.AppendKey(key, v)
		}
		if _, dup := it.seen[string(key)]; !dup {
			it.seen[string(key)] = struct{}{}
			return true
		}
	}
	return false
}

func (it *distinctIterator) Row() *Row    { return it.source.Row() }
func (it *distinctIterator) Err() error   { return it.source.Err() }
func (it *distinctIterator) Close() error { return it.source.Close() }

// sortIterator materializes its source and sorts it stably by the
// ORDER_BY keys. MISSING and null sort below every other value.
type sortIterator struct {
	source Iterator
	orders []query.Order
	rows   []*Row
	pos    int
	done   bool
}

func (it *sortIterator) Next() bool {
	if !it.done {
		it.done = true
		for it.source.Next() {
			it.rows = append(it.rows, it.source.Row())
		}
		if it.source.Err() != nil {
			return false
		}
		sort.SliceStable(it.rows, func(i, j int) bool {
			a, b := it.rows[i].keys, it.rows[j].keys
			for k, o := range it.orders {
				c := value.Collate(a[k], b[k])
				if o.Desc {
					c = -c
				}
				if c != 0 {
					return c < 0
				}
			}
			return false
		})
	}
	if it.pos >= len(it.rows) {
		return false
	}
	it.pos++
	return true
}

func (it *sortIterator) Row() *Row    { return it.rows[it.pos-1] }
func (it *sortIterator) Err() error   { return it.source.Err() }
func (it *sortIterator) Close() error { return it.source.Close() }

// skipIterator skips the first N results
type skipIterator struct {
	source  Iterator
	skip    int
	skipped bool
}

func (it *skipIterator) Next() bool {
	if !it.skipped {
		it.skipped = true
		for i := 0; i < it.skip; i++ {
			if !it.source.Next() {
				return false
			}
		}
	}
	return it.source.Next()
}

func (it *skipIterator) Row() *Row    { return it.source.Row() }
func (it *skipIterator) Err() error   { return it.source.Err() }
func (it *skipIterator) Close() error { return it.source.Close() }

// limitIterator limits the number of results
type limitIterator struct {
	source Iterator
	limit  int
	count  int
}

func (it *limitIterator) Next() bool {
	if it.count >= it.limit {
		return false
	}
	if it.source.Next() {
		it.count++
		return true
	}
	return false
}

func (it *limitIterator) Row() *Row    { return it.source.Row() }
func (it *limitIterator) Err() error   { return it.source.Err() }
func (it *limitIterator) Close() error { return it.source.Close() }
