// Package wal implements write-ahead logging of committed document
// changes.
//
// Every transaction is appended as its document records followed by a
// commit marker, in one write. On open the log is replayed and only
// transactions whose commit marker reached disk are returned.
package wal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

var (
	ErrDiskWriteFailed = errors.New("WAL write failed")
	ErrWALCorrupt      = errors.New("WAL is corrupt")
	ErrClosed          = errors.New("WAL is closed")
)

// Options configures a WAL.
type Options struct {
	SegmentSize  int64
	SyncOnCommit bool
}

// WAL is the write-ahead log manager. It owns a directory of segments and
// appends to the newest one.
type WAL struct {
	dir     string
	opts    Options
	mu      sync.Mutex
	current *Segment
	lastLSN LSN
	closed  bool
}

// Open opens the log in dir, creating it if needed, and returns the
// committed transactions already in it, oldest first.
func Open(dir string, opts Options) (*WAL, []Txn, error) {
	if opts.SegmentSize <= 0 {
		opts.SegmentSize = DefaultSegmentSize
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create WAL directory: %w", err)
	}

	ids, err := listSegments(dir)
	if err != nil {
		return nil, nil, err
	}
	var records []*Record
	for _, id := range ids {
		recs, err := readSegment(segmentPath(dir, id))
		if err != nil {
			return nil, nil, err
		}
		records = append(records, recs...)
	}

	w := &WAL{dir: dir, opts: opts}
	for _, r := range records {
		if r.LSN > w.lastLSN {
			w.lastLSN = r.LSN
		}
	}

	// Always start a fresh segment so a torn tail in the previous one is
	// never followed by new records.
	next := SegmentID(0)
	if len(ids) > 0 {
		next = ids[len(ids)-1] + 1
	}
	seg, err := openSegment(dir, next, opts.SegmentSize)
	if err != nil {
		return nil, nil, err
	}
	w.current = seg
	return w, committed(records), nil
}

func listSegments(dir string) ([]SegmentID, error) {
	files, err := filepath.Glob(filepath.Join(dir, "wal-*.log"))
	if err != nil {
		return nil, fmt.Errorf("failed to list WAL files: %w", err)
	}
	ids := make([]SegmentID, 0, len(files))
	for _, f := range files {
		var id uint64
		if _, err := fmt.Sscanf(filepath.Base(f), "wal-%016x.log", &id); err != nil {
			continue
		}
		ids = append(ids, SegmentID(id))
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// AppendTxn writes the records of one transaction followed by its commit
// marker, and syncs if configured. LSNs are assigned here.
func (w *WAL) AppendTxn(seq uint64, records []*Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}

	now := time.Now().UnixNano()
	batch := make([]*Record, 0, len(records)+1)
	batch = append(batch, records...)
	batch = append(batch, &Record{Type: RecordTypeCommit})
	lsn := w.lastLSN
	for _, r := range batch {
		lsn++
		r.LSN = lsn
		r.Sequence = seq
		r.Timestamp = now
	}

	if w.current.full() {
		if err := w.rotate(); err != nil {
			return err
		}
	}
	if err := w.current.write(batch); err != nil {
		return err
	}
	w.lastLSN = lsn
	if w.opts.SyncOnCommit {
		return w.current.sync()
	}
	return nil
}

func (w *WAL) rotate() error {
	if err := w.current.close(); err != nil {
		return err
	}
	seg, err := openSegment(w.dir, w.current.ID+1, w.opts.SegmentSize)
	if err != nil {
		return err
	}
	w.current = seg
	return nil
}

// Sync forces the current segment to disk.
func (w *WAL) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	return w.current.sync()
}

// LastLSN returns the LSN of the last record written.
func (w *WAL) LastLSN() LSN {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastLSN
}

// Close syncs and closes the log.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.current.close()
}
