package mvcc

import (
	"sync"
	"sync/atomic"
)

// Snapshot is a read view of every version committed at or before
// Sequence.
type Snapshot struct {
	Sequence Sequence
	id       uint64
	released atomic.Bool
}

// IsVisible reports whether v was committed at or before the snapshot.
func (s *Snapshot) IsVisible(v *Version) bool {
	return v.Sequence <= s.Sequence
}

// Released reports whether the snapshot has been released.
func (s *Snapshot) Released() bool { return s.released.Load() }

// SnapshotManager tracks active snapshots so garbage collection keeps the
// versions they can see.
type SnapshotManager struct {
	clock  *Clock
	mu     sync.Mutex
	active map[uint64]*Snapshot
	nextID uint64
}

func NewSnapshotManager(clock *Clock) *SnapshotManager {
	return &SnapshotManager{clock: clock, active: make(map[uint64]*Snapshot)}
}

// Begin pins a snapshot at the clock's current sequence. Callers that need
// the snapshot to line up with other state must hold whatever lock orders
// commits.
func (sm *SnapshotManager) Begin() *Snapshot {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.nextID++
	s := &Snapshot{Sequence: sm.clock.Current(), id: sm.nextID}
	sm.active[s.id] = s
	return s
}

// Release unpins a snapshot. Releasing twice is harmless.
func (sm *SnapshotManager) Release(s *Snapshot) {
	if s == nil || s.released.Swap(true) {
		return
	}
	sm.mu.Lock()
	delete(sm.active, s.id)
	sm.mu.Unlock()
}

// Oldest returns the sequence of the oldest active snapshot, or the
// current sequence when none is active.
func (sm *SnapshotManager) Oldest() Sequence {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	oldest := sm.clock.Current()
	for _, s := range sm.active {
		if s.Sequence < oldest {
			oldest = s.Sequence
		}
	}
	return oldest
}

// Active returns the number of unreleased snapshots.
func (sm *SnapshotManager) Active() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.active)
}
