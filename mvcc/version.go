// Package mvcc implements multi-version concurrency control for the
// document store.
//
// It provides:
// - Version chains: newest-first linked lists of document revisions.
// - Snapshots: read views pinned at a commit sequence.
// - Garbage collection: trimming versions no active snapshot can see.
package mvcc

import (
	"sync/atomic"

	"github.com/kartikbazzad/bunbase/bunquery/value"
)

// Sequence is the commit sequence number. Every committed transaction gets
// the next sequence; every version records the sequence that created it.
type Sequence uint64

// Version is one revision of a document. Versions are linked newest first.
type Version struct {
	Sequence Sequence
	RevID    string
	Body     value.Value
	Deleted  bool
	Next     *Version
}

// Clock hands out commit sequences.
type Clock struct {
	current atomic.Uint64
}

// NewClock returns a clock whose last issued sequence is start.
func NewClock(start Sequence) *Clock {
	c := &Clock{}
	c.current.Store(uint64(start))
	return c
}

// Next issues the next sequence.
func (c *Clock) Next() Sequence { return Sequence(c.current.Add(1)) }

// Current returns the last issued sequence.
func (c *Clock) Current() Sequence { return Sequence(c.current.Load()) }

// AddVersion pushes v onto the front of the chain starting at head.
func AddVersion(head, v *Version) *Version {
	v.Next = head
	return v
}

// FindVersion returns the newest version visible to the snapshot, or nil.
func FindVersion(head *Version, snap *Snapshot) *Version {
	for cur := head; cur != nil; cur = cur.Next {
		if snap.IsVisible(cur) {
			return cur
		}
	}
	return nil
}

// GarbageCollect drops versions that no snapshot at or after oldest can
// see: everything older than the newest version with Sequence <= oldest.
// It returns the new head, which is nil when the only surviving version is
// a tombstone visible to everyone.
func GarbageCollect(head *Version, oldest Sequence) *Version {
	for cur := head; cur != nil; cur = cur.Next {
		if cur.Sequence <= oldest {
			cur.Next = nil
			if cur == head && cur.Deleted {
				return nil
			}
			break
		}
	}
	return head
}

// CountVersions counts the versions in a chain.
func CountVersions(head *Version) int {
	n := 0
	for cur := head; cur != nil; cur = cur.Next {
		n++
	}
	return n
}
