package storage

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/kartikbazzad/bunbase/bunquery/internal/wal"
	"github.com/kartikbazzad/bunbase/bunquery/mvcc"
	"github.com/kartikbazzad/bunbase/bunquery/value"
)

// Options configures a Store.
type Options struct {
	// Dir holds the write-ahead log. Empty keeps the store in memory.
	Dir string
	// SyncOnCommit fsyncs the log on every commit.
	SyncOnCommit bool
	// SegmentSize caps the size of a log segment (default 64MB).
	SegmentSize int64
	Logger      *slog.Logger
}

// Store is an MVCC document store.
type Store struct {
	opts  Options
	log   *slog.Logger
	wal   *wal.WAL
	clock *mvcc.Clock
	snaps *mvcc.SnapshotManager

	// commitMu orders commits and anything that must not interleave with
	// one (see Pin).
	commitMu  sync.Mutex
	observers []CommitObserver

	// mu guards the version chains and the id list.
	mu     sync.RWMutex
	docs   map[string]*mvcc.Version
	ids    []string // sorted ids of docs; replaced, never modified in place
	dirty  map[string]struct{}
	live   int
	closed bool
}

// Open opens a store, replaying its log when Dir is set.
func Open(opts Options) (*Store, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	s := &Store{
		opts:  opts,
		log:   log,
		clock: mvcc.NewClock(0),
		docs:  make(map[string]*mvcc.Version),
		dirty: make(map[string]struct{}),
	}
	s.snaps = mvcc.NewSnapshotManager(s.clock)

	if opts.Dir == "" {
		return s, nil
	}
	w, txns, err := wal.Open(filepath.Join(opts.Dir, "wal"), wal.Options{
		SegmentSize:  opts.SegmentSize,
		SyncOnCommit: opts.SyncOnCommit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open WAL: %w", err)
	}
	s.wal = w
	if err := s.replay(txns); err != nil {
		w.Close()
		return nil, err
	}
	log.Info("store recovered", "dir", opts.Dir, "transactions", len(txns),
		"documents", s.live, "sequence", s.clock.Current())
	return s, nil
}

func (s *Store) replay(txns []wal.Txn) error {
	var added []string
	last := mvcc.Sequence(0)
	for _, txn := range txns {
		seq := mvcc.Sequence(txn.Sequence)
		for _, r := range txn.Records {
			v := &mvcc.Version{Sequence: seq, RevID: string(r.RevID)}
			if r.Type == wal.RecordTypeDelete {
				v.Deleted = true
			} else {
				body, err := value.ParseJSON(r.Body)
				if err != nil {
					return fmt.Errorf("%w: record %d: %v", wal.ErrWALCorrupt, r.LSN, err)
				}
				v.Body = body
			}
			if s.install(string(r.DocID), v) {
				added = append(added, string(r.DocID))
			}
		}
		if seq > last {
			last = seq
		}
	}
	s.clock = mvcc.NewClock(last)
	s.snaps = mvcc.NewSnapshotManager(s.clock)
	s.mergeIDs(added)
	s.collectLocked()
	return nil
}

// install pushes v onto id's chain and reports whether the id is new.
// Callers hold mu.
func (s *Store) install(id string, v *mvcc.Version) bool {
	head := s.docs[id]
	if head != nil && !head.Deleted {
		s.live--
	}
	if !v.Deleted {
		s.live++
	}
	s.docs[id] = mvcc.AddVersion(head, v)
	if head != nil || v.Deleted {
		s.dirty[id] = struct{}{}
	}
	return head == nil
}

// mergeIDs adds new ids to the sorted id list. Callers hold mu.
func (s *Store) mergeIDs(added []string) {
	if len(added) == 0 {
		return
	}
	sort.Strings(added)
	merged := make([]string, 0, len(s.ids)+len(added))
	i, j := 0, 0
	for i < len(s.ids) && j < len(added) {
		if s.ids[i] < added[j] {
			merged = append(merged, s.ids[i])
			i++
		} else {
			merged = append(merged, added[j])
			j++
		}
	}
	merged = append(merged, s.ids[i:]...)
	merged = append(merged, added[j:]...)
	s.ids = merged
}

// collectLocked trims version chains no active snapshot can see. Callers
// hold mu.
func (s *Store) collectLocked() {
	if len(s.dirty) == 0 {
		return
	}
	oldest := s.snaps.Oldest()
	removed := false
	for id := range s.dirty {
		head := mvcc.GarbageCollect(s.docs[id], oldest)
		switch {
		case head == nil:
			delete(s.docs, id)
			delete(s.dirty, id)
			removed = true
		case head.Next == nil && !head.Deleted:
			delete(s.dirty, id)
		}
	}
	if removed {
		ids := make([]string, 0, len(s.docs))
		for _, id := range s.ids {
			if _, ok := s.docs[id]; ok {
				ids = append(ids, id)
			}
		}
		s.ids = ids
	}
}

// AddObserver registers an observer for all later commits.
func (s *Store) AddObserver(o CommitObserver) {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()
	s.observers = append(s.observers, o)
}

// Snapshot pins a read view at the last committed sequence. The caller
// must Release it.
func (s *Store) Snapshot() (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	return &Snapshot{store: s, snap: s.snaps.Begin(), ids: s.ids}, nil
}

// Pin takes a snapshot and runs fn with no commit in between, so anything
// fn reads from commit observers (indexes) matches the snapshot exactly.
// If fn fails the snapshot is released.
func (s *Store) Pin(fn func(sn *Snapshot) error) (*Snapshot, error) {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()
	sn, err := s.Snapshot()
	if err != nil {
		return nil, err
	}
	if err := fn(sn); err != nil {
		sn.Release()
		return nil, err
	}
	return sn, nil
}

// Begin starts a transaction reading from a fresh snapshot.
func (s *Store) Begin() (*Transaction, error) {
	sn, err := s.Snapshot()
	if err != nil {
		return nil, err
	}
	return &Transaction{store: s, snap: sn, writes: make(map[string]*write)}, nil
}

// commit is the unit of work: observers prepare, the log is written, then
// versions and observer deltas are applied under one lock.
func (s *Store) commit(t *Transaction) (uint64, error) {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	s.mu.RLock()
	closed := s.closed
	for _, id := range t.order {
		if head := s.docs[id]; head != nil && head.Sequence > t.snap.snap.Sequence {
			s.mu.RUnlock()
			return 0, fmt.Errorf("%w: %q", ErrConflict, id)
		}
	}
	s.mu.RUnlock()
	if closed {
		return 0, ErrClosed
	}

	seq := uint64(s.clock.Current()) + 1
	changes := make([]Change, 0, len(t.order))
	for _, id := range t.order {
		w := t.writes[id]
		ch := Change{DocID: id, RevID: uuid.NewString(), Sequence: seq, Deleted: w.deleted}
		if !w.deleted {
			ch.Body = w.body
		}
		changes = append(changes, ch)
	}

	applies := make([]func(), 0, len(s.observers))
	for _, o := range s.observers {
		apply, err := o.PrepareCommit(changes)
		if err != nil {
			return 0, err
		}
		if apply != nil {
			applies = append(applies, apply)
		}
	}

	if s.wal != nil {
		records := make([]*wal.Record, 0, len(changes))
		for _, ch := range changes {
			r := &wal.Record{Type: wal.RecordTypePut, DocID: []byte(ch.DocID), RevID: []byte(ch.RevID)}
			if ch.Deleted {
				r.Type = wal.RecordTypeDelete
			} else {
				body, err := ch.Body.MarshalJSON()
				if err != nil {
					return 0, err
				}
				r.Body = body
			}
			records = append(records, r)
		}
		if err := s.wal.AppendTxn(seq, records); err != nil {
			s.log.Error("commit failed", "sequence", seq, "error", err)
			return 0, fmt.Errorf("failed to write WAL: %w", err)
		}
	}

	s.mu.Lock()
	var added []string
	for _, ch := range changes {
		v := &mvcc.Version{Sequence: mvcc.Sequence(seq), RevID: ch.RevID, Body: ch.Body, Deleted: ch.Deleted}
		if s.install(ch.DocID, v) {
			added = append(added, ch.DocID)
		}
	}
	s.mergeIDs(added)
	for _, apply := range applies {
		apply()
	}
	s.clock.Next()
	s.collectLocked()
	s.mu.Unlock()
	return seq, nil
}

func (s *Store) release(sn *Snapshot) {
	s.snaps.Release(sn.snap)
	s.mu.Lock()
	s.collectLocked()
	s.mu.Unlock()
}

// LastSequence returns the sequence of the last commit.
func (s *Store) LastSequence() uint64 { return uint64(s.clock.Current()) }

// DocumentCount returns the number of live (not deleted) documents.
func (s *Store) DocumentCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.live
}

// VersionCount returns the number of retained revisions across all
// documents, tombstones included.
func (s *Store) VersionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, head := range s.docs {
		n += mvcc.CountVersions(head)
	}
	return n
}

// ActiveSnapshots returns the number of unreleased snapshots.
func (s *Store) ActiveSnapshots() int { return s.snaps.Active() }

// Close closes the log. Open snapshots stay readable.
func (s *Store) Close() error {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	if s.wal != nil {
		return s.wal.Close()
	}
	return nil
}
