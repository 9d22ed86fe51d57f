// Package storage is the document store the query engine reads from.
//
// Documents are JSON objects addressed by id. Every committed transaction
// gets the next sequence number and adds one revision per written document
// to that document's version chain; deletions add a tombstone revision.
// Readers work against snapshots pinned at a sequence, so a commit never
// becomes visible half way through a scan.
package storage

import (
	"errors"

	"github.com/kartikbazzad/bunbase/bunquery/value"
)

var (
	ErrDocNotFound     = errors.New("document not found")
	ErrConflict        = errors.New("document was modified by a concurrent transaction")
	ErrTxnNotActive    = errors.New("transaction is not active")
	ErrClosed          = errors.New("store is closed")
	ErrInvalidDocument = errors.New("invalid document")
)

// Document is one revision of a stored document as seen by a snapshot.
type Document struct {
	ID       string
	RevID    string
	Sequence uint64
	Body     value.Value
}

// Change describes one document written by a committing transaction.
type Change struct {
	DocID    string
	RevID    string
	Sequence uint64
	Body     value.Value // MISSING when Deleted
	Deleted  bool
}

// CommitObserver takes part in every commit. PrepareCommit runs before
// the commit is logged and may veto it by returning an error; the returned
// apply func runs together with the document writes, before any reader
// can see them.
type CommitObserver interface {
	PrepareCommit(changes []Change) (apply func(), err error)
}
