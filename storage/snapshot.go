package storage

import (
	"sync/atomic"

	"github.com/kartikbazzad/bunbase/bunquery/mvcc"
)

// Snapshot is a consistent read view of the store.
type Snapshot struct {
	store    *Store
	snap     *mvcc.Snapshot
	ids      []string
	released atomic.Bool
}

// Sequence returns the commit sequence the snapshot is pinned at.
func (sn *Snapshot) Sequence() uint64 { return uint64(sn.snap.Sequence) }

func (sn *Snapshot) visible(id string) *mvcc.Version {
	sn.store.mu.RLock()
	defer sn.store.mu.RUnlock()
	return mvcc.FindVersion(sn.store.docs[id], sn.snap)
}

// Get returns the document visible to the snapshot.
func (sn *Snapshot) Get(id string) (*Document, error) {
	v := sn.visible(id)
	if v == nil || v.Deleted {
		return nil, ErrDocNotFound
	}
	return &Document{ID: id, RevID: v.RevID, Sequence: uint64(v.Sequence), Body: v.Body}, nil
}

// IDs returns the ids known when the snapshot was taken, ascending. Some
// may be deleted as of the snapshot; Get filters them.
func (sn *Snapshot) IDs() []string { return sn.ids }

// Scan calls fn for each live document in ascending id order until fn
// returns false.
func (sn *Snapshot) Scan(fn func(doc *Document) bool) {
	for _, id := range sn.ids {
		v := sn.visible(id)
		if v == nil || v.Deleted {
			continue
		}
		if !fn(&Document{ID: id, RevID: v.RevID, Sequence: uint64(v.Sequence), Body: v.Body}) {
			return
		}
	}
}

// Release unpins the snapshot. It is safe to call more than once.
func (sn *Snapshot) Release() {
	if sn.released.Swap(true) {
		return
	}
	sn.store.release(sn)
}
