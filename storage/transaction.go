package storage

import (
	"errors"
	"fmt"

	"github.com/kartikbazzad/bunbase/bunquery/value"
)

type write struct {
	body    value.Value
	deleted bool
}

// Transaction buffers writes on top of a snapshot. It is not safe for
// concurrent use. Commit fails with ErrConflict if another transaction
// committed a write to the same document after this one began.
type Transaction struct {
	store  *Store
	snap   *Snapshot
	writes map[string]*write
	order  []string
	done   bool
}

// Sequence returns the sequence of the snapshot the transaction reads.
func (t *Transaction) Sequence() uint64 { return t.snap.Sequence() }

// Get reads a document, seeing the transaction's own writes.
func (t *Transaction) Get(id string) (*Document, error) {
	if t.done {
		return nil, ErrTxnNotActive
	}
	if w, ok := t.writes[id]; ok {
		if w.deleted {
			return nil, ErrDocNotFound
		}
		return &Document{ID: id, Body: w.body}, nil
	}
	return t.snap.Get(id)
}

// Put creates or replaces a document. The body must be a JSON object.
func (t *Transaction) Put(id string, body value.Value) error {
	if t.done {
		return ErrTxnNotActive
	}
	if id == "" {
		return fmt.Errorf("%w: empty document id", ErrInvalidDocument)
	}
	if body.Kind() != value.KindObject {
		return fmt.Errorf("%w: body of %q is %s, not object", ErrInvalidDocument, id, body.Kind())
	}
	t.record(id, &write{body: body})
	return nil
}

// Delete soft-deletes a document, leaving a tombstone revision.
func (t *Transaction) Delete(id string) error {
	if _, err := t.Get(id); err != nil {
		return err
	}
	t.record(id, &write{deleted: true})
	return nil
}

func (t *Transaction) record(id string, w *write) {
	if _, ok := t.writes[id]; !ok {
		t.order = append(t.order, id)
	}
	t.writes[id] = w
}

// Len returns the number of documents written so far.
func (t *Transaction) Len() int { return len(t.order) }

// Commit makes the writes visible and durable, returning the commit
// sequence. A transaction without writes commits as a no-op with
// sequence 0.
func (t *Transaction) Commit() (uint64, error) {
	if t.done {
		return 0, ErrTxnNotActive
	}
	t.done = true
	defer t.snap.Release()
	if len(t.order) == 0 {
		return 0, nil
	}
	return t.store.commit(t)
}

// Rollback discards the writes. Rolling back a finished transaction is a
// no-op.
func (t *Transaction) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	t.snap.Release()
	return nil
}

// IsConflict reports whether err is a write-write conflict.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }
