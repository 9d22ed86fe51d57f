package bunquery

import (
	"errors"
	"sync"
	"time"

	"github.com/kartikbazzad/bunbase/bunquery/internal/exec"
	"github.com/kartikbazzad/bunbase/bunquery/internal/metrics"
	"github.com/kartikbazzad/bunbase/bunquery/internal/query"
	"github.com/kartikbazzad/bunbase/bunquery/storage"
	"github.com/kartikbazzad/bunbase/bunquery/value"
)

// Query is a compiled query. It is immutable and can be run any number of
// times, concurrently, with different bindings. Freeing it invalidates the
// enumerators it produced.
type Query struct {
	db *Database
	q  *query.Query

	mu    sync.Mutex
	freed bool
	enums map[*Enumerator]struct{}
}

// Compile compiles a JSON query: an object with WHAT, WHERE, GROUP_BY,
// HAVING, ORDER_BY and DISTINCT keys, or a bare WHERE expression. A MATCH
// predicate must be answerable by an existing full-text index.
func (db *Database) Compile(queryJSON []byte) (*Query, error) {
	if err := db.checkOpen(); err != nil {
		return nil, err
	}
	q, err := query.Compile(queryJSON)
	if err == nil {
		_, err = exec.Analyze(q, db.indexes.list())
		if errors.Is(err, exec.ErrNoIndex) {
			err = &Error{Domain: QueryDomain, Code: ErrInvalidQuery, Message: err.Error()}
		}
	}
	if err != nil {
		metrics.CompilesTotal.WithLabelValues("error").Inc()
		db.log.Debug("query compile failed", "error", err)
		return nil, wrapError(err)
	}
	metrics.CompilesTotal.WithLabelValues("ok").Inc()
	return &Query{db: db, q: q, enums: make(map[*Enumerator]struct{})}, nil
}

func (q *Query) checkUsable() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.freed {
		return newError(ErrNotUsable, "query has been freed")
	}
	return nil
}

// Run executes the query over a snapshot of the current documents.
// bindingsJSON is a JSON object mapping parameter names, or positions as
// strings ("1"), to values; it may be empty when the query has no
// parameters.
func (q *Query) Run(opts *RunOptions, bindingsJSON []byte) (*Enumerator, error) {
	if err := q.checkUsable(); err != nil {
		return nil, err
	}
	params, err := parseBindings(bindingsJSON)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	var plan *exec.Plan
	sn, err := q.db.store.Pin(func(*storage.Snapshot) error {
		strategy, err := exec.Analyze(q.q, q.db.indexes.list())
		if err != nil {
			return err
		}
		plan, err = strategy.Bind(params)
		return err
	})
	if err != nil {
		metrics.QueriesTotal.WithLabelValues("none", "error").Inc()
		return nil, wrapError(err)
	}

	skip, limit := 0, -1
	if opts != nil {
		skip = opts.Skip
		if opts.Limit > 0 {
			limit = opts.Limit
		}
	}
	label := "scan"
	if len(plan.Strategy.IndexesUsed()) > 0 {
		label = "index"
	}
	e := &Enumerator{
		query:   q,
		snap:    sn,
		it:      plan.Open(sn, skip, limit),
		columns: len(q.q.What),
		plan:    label,
		start:   start,
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.freed {
		e.release()
		return nil, newError(ErrNotUsable, "query has been freed")
	}
	q.enums[e] = struct{}{}
	return e, nil
}

func parseBindings(data []byte) (map[string]value.Value, error) {
	params := map[string]value.Value{}
	if len(data) == 0 {
		return params, nil
	}
	v, err := value.ParseJSON(data)
	if err != nil {
		return nil, &Error{Domain: QueryDomain, Code: ErrBinding, Message: "bindings are not valid JSON", Err: err}
	}
	switch v.Kind() {
	case value.KindNull:
		return params, nil
	case value.KindObject:
		for k, x := range v.Fields() {
			params[k] = x
		}
		return params, nil
	}
	return nil, newError(ErrBinding, "bindings must be a JSON object, not %s", v.Kind())
}

// Explain describes how the query would run with the current indexes.
func (q *Query) Explain() (string, error) {
	if err := q.checkUsable(); err != nil {
		return "", err
	}
	strategy, err := exec.Analyze(q.q, q.db.indexes.list())
	if err != nil {
		return "", wrapError(err)
	}
	return strategy.Explain(), nil
}

// ColumnCount returns the number of result columns.
func (q *Query) ColumnCount() int { return len(q.q.What) }

// ColumnTitle returns the title of column i: the last property name of a
// property column, otherwise "$1", "$2", ...
func (q *Query) ColumnTitle(i int) (string, error) {
	if i < 0 || i >= len(q.q.What) {
		return "", newError(ErrColumnOutOfRange, "column %d of %d", i, len(q.q.What))
	}
	return q.q.What[i].Title, nil
}

// Parameters returns the names of the parameters the query references,
// sorted. Positional parameters appear as "1", "2", ...
func (q *Query) Parameters() []string {
	return append([]string(nil), q.q.Params...)
}

// Free releases the query and every enumerator it produced. It is safe to
// call more than once.
func (q *Query) Free() {
	q.mu.Lock()
	if q.freed {
		q.mu.Unlock()
		return
	}
	q.freed = true
	enums := q.enums
	q.enums = nil
	q.mu.Unlock()

	for e := range enums {
		e.Free()
	}
}

func (q *Query) forget(e *Enumerator) {
	q.mu.Lock()
	delete(q.enums, e)
	q.mu.Unlock()
}
