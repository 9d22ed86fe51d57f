package bunquery

import (
	"sync"
	"time"

	"github.com/kartikbazzad/bunbase/bunquery/internal/exec"
	"github.com/kartikbazzad/bunbase/bunquery/internal/metrics"
	"github.com/kartikbazzad/bunbase/bunquery/storage"
	"github.com/kartikbazzad/bunbase/bunquery/value"
)

// Enumerator is a forward-only cursor over the rows of one query run. It
// reads a single snapshot for its whole life: commits made after Run are
// never observed. An Enumerator must be freed.
//
//	e, err := q.Run(nil, nil)
//	...
//	defer e.Free()
//	for e.Next() {
//		v, _ := e.Column(0)
//	}
//	if err := e.Err(); err != nil { ... }
type Enumerator struct {
	query   *Query
	columns int
	plan    string
	start   time.Time

	mu       sync.Mutex
	snap     *storage.Snapshot
	it       exec.Iterator
	row      *exec.Row
	rows     int
	done     bool
	freed    bool
	released bool
	err      error
}

// Next advances to the next row. It returns false when the rows are
// exhausted or an error occurred (see Err). Calling Next again after it
// returned false, or after Free, is an error.
func (e *Enumerator) Next() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return false
	}
	switch {
	case e.freed:
		e.err = newError(ErrNotUsable, "enumerator has been freed")
		return false
	case e.done:
		e.err = newError(ErrNotUsable, "enumerator is exhausted")
		return false
	}
	if !e.it.Next() {
		if err := e.it.Err(); err != nil {
			e.err = wrapError(err)
		}
		e.done = true
		e.row = nil
		e.release()
		return false
	}
	e.row = e.it.Row()
	e.rows++
	return true
}

// Err returns the error that stopped the enumerator, if any. Errors are
// sticky: once set, Next always returns false.
func (e *Enumerator) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

func (e *Enumerator) current() (*exec.Row, error) {
	if e.freed {
		return nil, newError(ErrNotUsable, "enumerator has been freed")
	}
	if e.row == nil {
		return nil, newError(ErrNotUsable, "no current row")
	}
	return e.row, nil
}

// Column returns column i of the current row. A column whose expression
// evaluated to MISSING returns the MISSING value.
func (e *Enumerator) Column(i int) (value.Value, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if i < 0 || i >= e.columns {
		return value.Missing(), newError(ErrColumnOutOfRange, "column %d of %d", i, e.columns)
	}
	row, err := e.current()
	if err != nil {
		return value.Missing(), err
	}
	return row.Values[i], nil
}

// Columns returns every column of the current row.
func (e *Enumerator) Columns() ([]value.Value, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	row, err := e.current()
	if err != nil {
		return nil, err
	}
	return append([]value.Value(nil), row.Values...), nil
}

// DocID returns the id of the document the current row came from. For a
// grouped row it is the first document of the group; it is empty for the
// aggregate row of an empty result.
func (e *Enumerator) DocID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.row == nil || e.row.Doc == nil {
		return ""
	}
	return e.row.Doc.ID
}

// Sequence returns the sequence of the document the current row came from.
func (e *Enumerator) Sequence() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.row == nil || e.row.Doc == nil {
		return 0
	}
	return e.row.Doc.Sequence
}

// Free releases the snapshot and iterator. It is safe to call more than
// once, and after the owning Query was freed.
func (e *Enumerator) Free() {
	e.mu.Lock()
	if e.freed {
		e.mu.Unlock()
		return
	}
	e.freed = true
	e.row = nil
	e.release()
	e.mu.Unlock()
	e.query.forget(e)
}

// release returns the enumerator's resources once; e.mu is held or e is
// not yet shared.
func (e *Enumerator) release() {
	if e.released {
		return
	}
	e.released = true
	e.it.Close()
	e.snap.Release()
	status := "ok"
	if e.err != nil {
		status = "error"
	}
	metrics.QueriesTotal.WithLabelValues(e.plan, status).Inc()
	metrics.QueryDuration.Observe(time.Since(e.start).Seconds())
}
