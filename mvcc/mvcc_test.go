package mvcc

import (
	"testing"

	"github.com/kartikbazzad/bunbase/bunquery/value"
)

func chain(seqs ...Sequence) *Version {
	var head *Version
	for _, s := range seqs {
		head = AddVersion(head, &Version{Sequence: s, Body: value.Int(int(s))})
	}
	return head
}

func TestClock(t *testing.T) {
	c := NewClock(10)
	if got := c.Next(); got != 11 {
		t.Errorf("Next() = %d, want 11", got)
	}
	if got := c.Current(); got != 11 {
		t.Errorf("Current() = %d, want 11", got)
	}
}

func TestFindVersion(t *testing.T) {
	clock := NewClock(0)
	sm := NewSnapshotManager(clock)

	clock.Next() // 1
	head := chain(1)
	early := sm.Begin()

	clock.Next() // 2
	clock.Next() // 3
	head = AddVersion(head, &Version{Sequence: 3, Body: value.Int(3)})
	late := sm.Begin()

	if v := FindVersion(head, early); v == nil || v.Sequence != 1 {
		t.Fatalf("early snapshot should see version 1, got %+v", v)
	}
	if v := FindVersion(head, late); v == nil || v.Sequence != 3 {
		t.Fatalf("late snapshot should see version 3, got %+v", v)
	}

	future := chain(5)
	if v := FindVersion(future, late); v != nil {
		t.Errorf("version from the future must be invisible, got %+v", v)
	}
}

func TestGarbageCollect(t *testing.T) {
	head := chain(1, 4, 7, 9)
	head = GarbageCollect(head, 8)
	if n := CountVersions(head); n != 2 {
		t.Fatalf("expected versions 9 and 7 to survive, got %d versions", n)
	}
	if head.Next.Sequence != 7 {
		t.Errorf("expected second version 7, got %d", head.Next.Sequence)
	}

	// All snapshots are past the tombstone: the whole chain goes.
	tomb := AddVersion(chain(1), &Version{Sequence: 2, Deleted: true})
	if got := GarbageCollect(tomb, 5); got != nil {
		t.Errorf("expected tombstone chain to be collected, got %+v", got)
	}

	// A tombstone still newer than some snapshot is kept with its predecessor.
	tomb = AddVersion(chain(1), &Version{Sequence: 6, Deleted: true})
	if n := CountVersions(GarbageCollect(tomb, 5)); n != 2 {
		t.Errorf("expected 2 versions, got %d", n)
	}
}

func TestSnapshotTracking(t *testing.T) {
	clock := NewClock(3)
	sm := NewSnapshotManager(clock)
	a := sm.Begin()
	clock.Next()
	b := sm.Begin()

	if got := sm.Oldest(); got != 3 {
		t.Errorf("Oldest() = %d, want 3", got)
	}
	sm.Release(a)
	sm.Release(a)
	if got := sm.Oldest(); got != 4 {
		t.Errorf("Oldest() = %d, want 4", got)
	}
	if !a.Released() || b.Released() {
		t.Error("release flags are wrong")
	}
	sm.Release(b)
	if sm.Active() != 0 {
		t.Errorf("expected no active snapshots, got %d", sm.Active())
	}
}
