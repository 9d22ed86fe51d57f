package storage

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kartikbazzad/bunbase/bunquery/value"
)

func doc(t *testing.T, js string) value.Value {
	t.Helper()
	v, err := value.ParseJSON([]byte(js))
	require.NoError(t, err)
	return v
}

func put(t *testing.T, s *Store, id, js string) uint64 {
	t.Helper()
	txn, err := s.Begin()
	require.NoError(t, err)
	require.NoError(t, txn.Put(id, doc(t, js)))
	seq, err := txn.Commit()
	require.NoError(t, err)
	return seq
}

func del(t *testing.T, s *Store, id string) {
	t.Helper()
	txn, err := s.Begin()
	require.NoError(t, err)
	require.NoError(t, txn.Delete(id))
	_, err = txn.Commit()
	require.NoError(t, err)
}

func scanIDs(sn *Snapshot) []string {
	var ids []string
	sn.Scan(func(d *Document) bool {
		ids = append(ids, d.ID)
		return true
	})
	return ids
}

func TestPutGetDelete(t *testing.T) {
	s, err := Open(Options{})
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, uint64(1), put(t, s, "b", `{"n":1}`))
	assert.Equal(t, uint64(2), put(t, s, "a", `{"n":2}`))
	assert.Equal(t, 2, s.DocumentCount())

	sn, err := s.Snapshot()
	require.NoError(t, err)
	d, err := sn.Get("a")
	require.NoError(t, err)
	assert.Equal(t, float64(2), d.Body.Get("n").AsNumber())
	assert.Equal(t, uint64(2), d.Sequence)
	assert.NotEmpty(t, d.RevID)
	assert.Equal(t, []string{"a", "b"}, scanIDs(sn))
	sn.Release()

	del(t, s, "a")
	assert.Equal(t, 1, s.DocumentCount())
	sn, err = s.Snapshot()
	require.NoError(t, err)
	defer sn.Release()
	_, err = sn.Get("a")
	assert.ErrorIs(t, err, ErrDocNotFound)
	assert.Equal(t, []string{"b"}, scanIDs(sn))
}

func TestSnapshotIsolation(t *testing.T) {
	s, err := Open(Options{})
	require.NoError(t, err)
	defer s.Close()

	put(t, s, "x", `{"v":1}`)
	old, err := s.Snapshot()
	require.NoError(t, err)

	put(t, s, "x", `{"v":2}`)
	put(t, s, "y", `{"v":3}`)
	del(t, s, "x")

	d, err := old.Get("x")
	require.NoError(t, err)
	assert.Equal(t, float64(1), d.Body.Get("v").AsNumber())
	assert.Equal(t, []string{"x"}, scanIDs(old))
	assert.Greater(t, s.VersionCount(), 2)

	old.Release()
	old.Release()
	assert.Equal(t, 0, s.ActiveSnapshots())
	// Only y's single revision survives once nothing can see the rest.
	assert.Equal(t, 1, s.VersionCount())
}

func TestReadYourWritesAndRollback(t *testing.T) {
	s, err := Open(Options{})
	require.NoError(t, err)
	defer s.Close()

	txn, err := s.Begin()
	require.NoError(t, err)
	require.NoError(t, txn.Put("k", doc(t, `{"a":true}`)))
	d, err := txn.Get("k")
	require.NoError(t, err)
	assert.True(t, d.Body.Get("a").AsBool())

	require.NoError(t, txn.Delete("k"))
	_, err = txn.Get("k")
	assert.ErrorIs(t, err, ErrDocNotFound)

	require.NoError(t, txn.Rollback())
	assert.ErrorIs(t, txn.Put("k", doc(t, `{}`)), ErrTxnNotActive)
	assert.Equal(t, 0, s.DocumentCount())
	assert.Equal(t, uint64(0), s.LastSequence())
}

func TestConflict(t *testing.T) {
	s, err := Open(Options{})
	require.NoError(t, err)
	defer s.Close()
	put(t, s, "k", `{"v":0}`)

	t1, err := s.Begin()
	require.NoError(t, err)
	t2, err := s.Begin()
	require.NoError(t, err)
	require.NoError(t, t1.Put("k", doc(t, `{"v":1}`)))
	require.NoError(t, t2.Put("k", doc(t, `{"v":2}`)))

	_, err = t1.Commit()
	require.NoError(t, err)
	_, err = t2.Commit()
	assert.True(t, IsConflict(err), "got %v", err)
}

func TestInvalidDocuments(t *testing.T) {
	s, err := Open(Options{})
	require.NoError(t, err)
	defer s.Close()
	txn, err := s.Begin()
	require.NoError(t, err)
	defer txn.Rollback()

	assert.ErrorIs(t, txn.Put("", doc(t, `{}`)), ErrInvalidDocument)
	assert.ErrorIs(t, txn.Put("a", doc(t, `[1]`)), ErrInvalidDocument)
	assert.ErrorIs(t, txn.Delete("nope"), ErrDocNotFound)
}

type recordingObserver struct {
	prepared [][]Change
	applied  int
	veto     error
}

func (o *recordingObserver) PrepareCommit(changes []Change) (func(), error) {
	if o.veto != nil {
		return nil, o.veto
	}
	o.prepared = append(o.prepared, changes)
	return func() { o.applied++ }, nil
}

func TestCommitObserver(t *testing.T) {
	s, err := Open(Options{})
	require.NoError(t, err)
	defer s.Close()
	obs := &recordingObserver{}
	s.AddObserver(obs)

	put(t, s, "a", `{"x":1}`)
	del(t, s, "a")
	require.Len(t, obs.prepared, 2)
	assert.Equal(t, 2, obs.applied)
	assert.False(t, obs.prepared[0][0].Deleted)
	assert.True(t, obs.prepared[1][0].Deleted)
	assert.True(t, obs.prepared[1][0].Body.IsMissing())

	obs.veto = errors.New("no")
	txn, err := s.Begin()
	require.NoError(t, err)
	require.NoError(t, txn.Put("b", doc(t, `{}`)))
	_, err = txn.Commit()
	assert.EqualError(t, err, "no")
	assert.Equal(t, 0, s.DocumentCount())
}

func TestPinBlocksCommits(t *testing.T) {
	s, err := Open(Options{})
	require.NoError(t, err)
	defer s.Close()
	put(t, s, "a", `{}`)

	sn, err := s.Pin(func(sn *Snapshot) error {
		assert.Equal(t, uint64(1), sn.Sequence())
		return nil
	})
	require.NoError(t, err)
	sn.Release()

	_, err = s.Pin(func(*Snapshot) error { return errors.New("boom") })
	assert.Error(t, err)
	assert.Equal(t, 0, s.ActiveSnapshots())
}

func TestDurability(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(Options{Dir: dir, SyncOnCommit: true})
	require.NoError(t, err)
	put(t, s, "a", `{"name":"ann"}`)
	put(t, s, "b", `{"name":"bob"}`)
	del(t, s, "a")
	put(t, s, "b", `{"name":"bobby"}`)
	require.NoError(t, s.Close())

	s, err = Open(Options{Dir: dir})
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, uint64(4), s.LastSequence())
	assert.Equal(t, 1, s.DocumentCount())

	sn, err := s.Snapshot()
	require.NoError(t, err)
	defer sn.Release()
	d, err := sn.Get("b")
	require.NoError(t, err)
	assert.Equal(t, "bobby", d.Body.Get("name").AsString())
	assert.Equal(t, uint64(4), d.Sequence)
	_, err = sn.Get("a")
	assert.ErrorIs(t, err, ErrDocNotFound)

	// New commits continue the sequence.
	assert.Equal(t, uint64(5), put(t, s, "c", `{}`))
}

func TestClosedStore(t *testing.T) {
	s, err := Open(Options{})
	require.NoError(t, err)
	txn, err := s.Begin()
	require.NoError(t, err)
	require.NoError(t, txn.Put("a", doc(t, `{}`)))
	require.NoError(t, s.Close())

	_, err = txn.Commit()
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.Snapshot()
	assert.ErrorIs(t, err, ErrClosed)
}
