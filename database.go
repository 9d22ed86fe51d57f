// Package bunquery is an embedded JSON document database with a
// declarative query engine.
//
// Queries are JSON expressions compiled once into an immutable Query and
// run any number of times with different bindings. Each run yields an
// Enumerator reading one consistent snapshot of the documents; value and
// full-text indexes are maintained atomically with every commit.
package bunquery

import (
	"encoding/json"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/kartikbazzad/bunbase/bunquery/internal/logger"
	"github.com/kartikbazzad/bunbase/bunquery/internal/metrics"
	"github.com/kartikbazzad/bunbase/bunquery/storage"
	"github.com/kartikbazzad/bunbase/bunquery/value"
)

// Document is a stored document as returned by Get.
type Document struct {
	ID       string
	RevID    string
	Sequence uint64
	Body     value.Value
}

// MarshalJSON renders the body.
func (d *Document) MarshalJSON() ([]byte, error) { return json.Marshal(d.Body) }

// Database is the main database instance
type Database struct {
	opts    *Options
	log     *slog.Logger
	store   *storage.Store
	indexes *indexManager

	mu     sync.RWMutex
	closed bool
}

// Open opens or creates a database. With an empty Options.Path the
// database lives in memory.
func Open(opts *Options) (*Database, error) {
	if opts == nil {
		opts = DefaultOptions("")
	}
	log := opts.Logger
	if log == nil {
		log = logger.Get()
	}

	store, err := storage.Open(storage.Options{
		Dir:          opts.Path,
		SyncOnCommit: opts.SyncOnCommit,
		Logger:       log,
	})
	if err != nil {
		return nil, wrapError(err)
	}

	catalogPath := ""
	if opts.Path != "" {
		catalogPath = filepath.Join(opts.Path, "system_catalog.json")
	}
	catalog, err := newCatalogManager(catalogPath)
	if err != nil {
		store.Close()
		return nil, wrapError(err)
	}

	db := &Database{opts: opts, log: log, store: store}
	db.indexes = newIndexManager(log, store, catalog, opts.IndexWorkers)
	if err := db.indexes.load(); err != nil {
		store.Close()
		return nil, wrapError(err)
	}
	store.AddObserver(db.indexes)

	log.Info("database opened", "path", opts.Path, "documents", store.DocumentCount(),
		"indexes", len(db.indexes.infos()))
	return db, nil
}

// Close closes the database. Open enumerators must be freed first; reads
// after Close fail with ErrNotUsable.
func (db *Database) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil
	}
	db.closed = true
	if err := db.store.Close(); err != nil {
		return wrapError(err)
	}
	db.log.Info("database closed", "path", db.opts.Path)
	return nil
}

func (db *Database) checkOpen() error {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.closed {
		return newError(ErrNotUsable, "database is closed")
	}
	return nil
}

// Transaction groups writes that commit atomically together with their
// index updates.
type Transaction struct {
	db  *Database
	txn *storage.Transaction
}

// BeginTransaction starts a transaction reading the latest committed state.
func (db *Database) BeginTransaction() (*Transaction, error) {
	if err := db.checkOpen(); err != nil {
		return nil, err
	}
	txn, err := db.store.Begin()
	if err != nil {
		return nil, wrapError(err)
	}
	return &Transaction{db: db, txn: txn}, nil
}

// CommitTransaction commits txn and returns its sequence (0 when it wrote
// nothing).
func (db *Database) CommitTransaction(txn *Transaction) (uint64, error) {
	seq, err := txn.txn.Commit()
	if err != nil {
		metrics.CommitsTotal.WithLabelValues(commitStatus(err)).Inc()
		if !errors.Is(err, storage.ErrConflict) {
			db.log.Error("commit failed", "error", err)
		}
		return 0, wrapError(err)
	}
	metrics.CommitsTotal.WithLabelValues("ok").Inc()
	return seq, nil
}

// RollbackTransaction discards txn.
func (db *Database) RollbackTransaction(txn *Transaction) error {
	return wrapError(txn.txn.Rollback())
}

// InTransaction runs fn in a transaction, committing when it returns nil
// and rolling back otherwise.
func (db *Database) InTransaction(fn func(txn *Transaction) error) (uint64, error) {
	txn, err := db.BeginTransaction()
	if err != nil {
		return 0, err
	}
	if err := fn(txn); err != nil {
		txn.txn.Rollback()
		return 0, err
	}
	return db.CommitTransaction(txn)
}

func commitStatus(err error) string {
	if errors.Is(err, storage.ErrConflict) {
		return "conflict"
	}
	return "error"
}

// Put stores a JSON object under id.
func (t *Transaction) Put(id string, body []byte) error {
	v, err := value.ParseJSON(body)
	if err != nil {
		return &Error{Domain: StorageDomain, Code: ErrStorage, Message: "document body is not valid JSON", Err: err}
	}
	return t.PutValue(id, v)
}

// PutValue stores an object value under id.
func (t *Transaction) PutValue(id string, body value.Value) error {
	return wrapError(t.txn.Put(id, body))
}

// Delete soft-deletes id. Deleted documents are invisible to queries and
// removed from every index.
func (t *Transaction) Delete(id string) error {
	return wrapError(t.txn.Delete(id))
}

// Get reads id, seeing the transaction's own writes.
func (t *Transaction) Get(id string) (*Document, error) {
	doc, err := t.txn.Get(id)
	if err != nil {
		return nil, wrapError(err)
	}
	return &Document{ID: doc.ID, RevID: doc.RevID, Sequence: doc.Sequence, Body: doc.Body}, nil
}

// Put stores a single document in its own transaction.
func (db *Database) Put(id string, body []byte) (uint64, error) {
	return db.InTransaction(func(txn *Transaction) error { return txn.Put(id, body) })
}

// Delete soft-deletes a single document in its own transaction.
func (db *Database) Delete(id string) (uint64, error) {
	return db.InTransaction(func(txn *Transaction) error { return txn.Delete(id) })
}

// Get reads the latest committed revision of id.
func (db *Database) Get(id string) (*Document, error) {
	if err := db.checkOpen(); err != nil {
		return nil, err
	}
	sn, err := db.store.Snapshot()
	if err != nil {
		return nil, wrapError(err)
	}
	defer sn.Release()
	doc, err := sn.Get(id)
	if err != nil {
		return nil, wrapError(err)
	}
	return &Document{ID: doc.ID, RevID: doc.RevID, Sequence: doc.Sequence, Body: doc.Body}, nil
}

// DocumentCount returns the number of live documents.
func (db *Database) DocumentCount() int { return db.store.DocumentCount() }

// LastSequence returns the sequence of the last commit.
func (db *Database) LastSequence() uint64 { return db.store.LastSequence() }

// CreateIndex creates an index over a JSON array of expressions and builds
// it from the existing documents. Recreating an identical index is a
// no-op; a different index with the same name fails with ErrIndexExists
// unless overwrite is set. It returns the index name.
func (db *Database) CreateIndex(expressions []byte, kind IndexKind, opts *IndexOptions, overwrite bool) (string, error) {
	if err := db.checkOpen(); err != nil {
		return "", err
	}
	def := indexDefinition(expressions, kind, opts)
	return db.indexes.create(def, overwrite)
}

// DropIndex removes an index. Dropping a missing index is not an error.
func (db *Database) DropIndex(name string) error {
	if err := db.checkOpen(); err != nil {
		return err
	}
	return db.indexes.drop(name)
}

// Indexes lists the indexes ordered by name.
func (db *Database) Indexes() []IndexInfo { return db.indexes.infos() }
