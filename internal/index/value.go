package index

import (
	"bytes"
	"sort"

	"golang.org/x/exp/slices"
)

// Entry is one value-index row: the encoded key tuple of a document.
type Entry struct {
	Key   []byte
	DocID string
}

func compareEntries(a, b Entry) int {
	if c := bytes.Compare(a.Key, b.Key); c != 0 {
		return c
	}
	switch {
	case a.DocID < b.DocID:
		return -1
	case a.DocID > b.DocID:
		return 1
	}
	return 0
}

// Range bounds a scan over encoded keys. A nil bound is unbounded. Bounds
// compare by prefix, so a bound built from the first expression of a
// multi-expression index covers every key tuple starting with it.
type Range struct {
	Low, High                   []byte
	LowInclusive, HighInclusive bool
}

// Exact returns the range of keys whose leading component encodes to key.
func Exact(key []byte) Range {
	return Range{Low: key, High: key, LowInclusive: true, HighInclusive: true}
}

// ValueIndex keeps entries sorted by key, then document id.
type ValueIndex struct {
	entries []Entry
	byDoc   map[string][]byte
}

func NewValueIndex() *ValueIndex {
	return &ValueIndex{byDoc: make(map[string][]byte)}
}

// Put sets the key of docID, replacing any previous one.
func (v *ValueIndex) Put(docID string, key []byte) {
	if old, ok := v.byDoc[docID]; ok {
		if bytes.Equal(old, key) {
			return
		}
		v.Delete(docID)
	}
	e := Entry{Key: key, DocID: docID}
	i, _ := slices.BinarySearchFunc(v.entries, e, compareEntries)
	v.entries = slices.Insert(v.entries, i, e)
	v.byDoc[docID] = key
}

// Delete removes the entry of docID, if any.
func (v *ValueIndex) Delete(docID string) {
	key, ok := v.byDoc[docID]
	if !ok {
		return
	}
	if i, found := slices.BinarySearchFunc(v.entries, Entry{Key: key, DocID: docID}, compareEntries); found {
		v.entries = slices.Delete(v.entries, i, i+1)
	}
	delete(v.byDoc, docID)
}

// Load replaces the contents with entries, which need not be sorted.
func (v *ValueIndex) Load(entries []Entry) {
	slices.SortFunc(entries, compareEntries)
	v.entries = entries
	v.byDoc = make(map[string][]byte, len(entries))
	for _, e := range entries {
		v.byDoc[e.DocID] = e.Key
	}
}

func (v *ValueIndex) Len() int { return len(v.entries) }

// Scan returns the ids of documents whose keys fall in r, in key order.
func (v *ValueIndex) Scan(r Range) []string {
	start := 0
	if r.Low != nil {
		start = sort.Search(len(v.entries), func(i int) bool {
			return bytes.Compare(v.entries[i].Key, r.Low) >= 0
		})
		if !r.LowInclusive {
			for start < len(v.entries) && bytes.HasPrefix(v.entries[start].Key, r.Low) {
				start++
			}
		}
	}
	var ids []string
	for _, e := range v.entries[start:] {
		if r.High != nil {
			below := bytes.Compare(e.Key, r.High) < 0
			if r.HighInclusive {
				below = below || bytes.HasPrefix(e.Key, r.High)
			}
			if !below {
				break
			}
		}
		ids = append(ids, e.DocID)
	}
	return ids
}
