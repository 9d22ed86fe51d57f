package bunquery

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/panjf2000/ants/v2"
	"golang.org/x/exp/slices"

	"github.com/kartikbazzad/bunbase/bunquery/internal/index"
	"github.com/kartikbazzad/bunbase/bunquery/internal/metrics"
	"github.com/kartikbazzad/bunbase/bunquery/internal/query"
	"github.com/kartikbazzad/bunbase/bunquery/storage"
)

// IndexKind is the type of a secondary index.
type IndexKind = index.Kind

const (
	// ValueIndex orders documents by the values of its expressions.
	ValueIndex = index.KindValue
	// FullTextIndex answers MATCH over string expressions.
	FullTextIndex = index.KindFullText
)

// IndexOptions configures CreateIndex.
type IndexOptions struct {
	// Name of the index; synthesized from the expressions when empty.
	Name string
	// IgnoreDiacritics makes a full-text index match "cafe" to "café".
	IgnoreDiacritics bool
}

// IndexInfo describes an existing index.
type IndexInfo struct {
	Name             string          `json:"name"`
	Kind             IndexKind       `json:"kind"`
	Expressions      json.RawMessage `json:"expressions"`
	IgnoreDiacritics bool            `json:"ignore_diacritics,omitempty"`
	Entries          int             `json:"entries"`
}

// indexManager owns the secondary indexes. It keeps them in step with the
// documents by taking part in every commit, and builds new indexes from a
// snapshot taken while commits are held off.
type indexManager struct {
	log     *slog.Logger
	store   *storage.Store
	catalog *catalogManager
	workers int

	// mu guards the index map and index contents against readers outside
	// the commit path (Indexes).
	mu      sync.RWMutex
	indexes map[string]*index.Index
}

func newIndexManager(log *slog.Logger, store *storage.Store, catalog *catalogManager, workers int) *indexManager {
	if workers < 1 {
		workers = 1
	}
	return &indexManager{
		log:     log,
		store:   store,
		catalog: catalog,
		workers: workers,
		indexes: make(map[string]*index.Index),
	}
}

// load rebuilds every index in the catalog. Definitions that no longer
// compile are dropped.
func (m *indexManager) load() error {
	for _, def := range m.catalog.ListIndexes() {
		ix, err := index.New(def)
		if err != nil {
			m.log.Warn("dropping index with invalid definition", "index", def.Name, "error", err)
			if err := m.catalog.DeleteIndex(def.Name); err != nil {
				return err
			}
			continue
		}
		sn, err := m.store.Pin(func(sn *storage.Snapshot) error {
			return m.install(ix, sn)
		})
		if err != nil {
			return err
		}
		sn.Release()
		m.log.Info("index rebuilt", "index", def.Name, "kind", def.Kind, "entries", ix.Len())
	}
	return nil
}

// list returns the indexes ordered by name.
func (m *indexManager) list() []*index.Index {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*index.Index, 0, len(m.indexes))
	for _, ix := range m.indexes {
		out = append(out, ix)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Def.Name < out[j].Def.Name })
	return out
}

// PrepareCommit computes the index changes of a commit. They are applied
// with the document versions, so no reader sees one without the other.
func (m *indexManager) PrepareCommit(changes []storage.Change) (func(), error) {
	type delta struct {
		ix *index.Index
		ch index.Change
	}
	var deltas []delta
	for _, ix := range m.list() {
		for _, c := range changes {
			var doc *query.Document
			if !c.Deleted {
				doc = &query.Document{ID: c.DocID, Sequence: c.Sequence, RevID: c.RevID, Body: c.Body}
			}
			ch, err := ix.Extract(c.DocID, doc)
			if err != nil {
				return nil, err
			}
			deltas = append(deltas, delta{ix: ix, ch: ch})
		}
	}
	if len(deltas) == 0 {
		return nil, nil
	}
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for _, d := range deltas {
			d.ix.Apply(d.ch)
		}
	}, nil
}

// build fills ix from the snapshot. Key extraction is spread over a
// bounded worker pool; entries are installed in one step afterwards.
func (m *indexManager) build(ix *index.Index, sn *storage.Snapshot) error {
	start := time.Now()
	ids := sn.IDs()
	chunk := (len(ids) + m.workers - 1) / m.workers
	if chunk < 64 {
		chunk = 64
	}

	pool, err := ants.NewPool(m.workers, ants.WithPanicHandler(func(v any) {
		m.log.Error("index build worker panic", "index", ix.Def.Name, "panic", v)
	}))
	if err != nil {
		return fmt.Errorf("failed to create index build pool: %w", err)
	}
	defer pool.Release()

	nChunks := (len(ids) + chunk - 1) / chunk
	results := make([][]index.Change, nChunks)
	errs := make([]error, nChunks)
	var wg sync.WaitGroup
	for c := 0; c < nChunks; c++ {
		c := c
		lo, hi := c*chunk, (c+1)*chunk
		if hi > len(ids) {
			hi = len(ids)
		}
		wg.Add(1)
		task := func() {
			defer wg.Done()
			for _, id := range ids[lo:hi] {
				doc, err := sn.Get(id)
				if errors.Is(err, storage.ErrDocNotFound) {
					continue
				}
				if err == nil {
					var ch index.Change
					ch, err = ix.Extract(id, &query.Document{ID: doc.ID, Sequence: doc.Sequence, RevID: doc.RevID, Body: doc.Body})
					results[c] = append(results[c], ch)
				}
				if err != nil {
					errs[c] = err
					return
				}
			}
		}
		if err := pool.Submit(task); err != nil {
			wg.Done()
			wg.Wait()
			return fmt.Errorf("failed to schedule index build: %w", err)
		}
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return err
		}
	}

	if vi := ix.Values(); vi != nil {
		var entries []index.Entry
		for _, chs := range results {
			for _, ch := range chs {
				if ch.Key != nil {
					entries = append(entries, index.Entry{Key: ch.Key, DocID: ch.DocID})
				}
			}
		}
		vi.Load(entries)
	} else {
		for _, chs := range results {
			for _, ch := range chs {
				ix.Apply(ch)
			}
		}
	}
	metrics.IndexBuildDuration.WithLabelValues(ix.Def.Kind.String()).Observe(time.Since(start).Seconds())
	metrics.IndexEntries.WithLabelValues(ix.Def.Name).Set(float64(ix.Len()))
	return nil
}

// install builds ix and makes it live. Callers hold the store's commit
// order (Pin).
func (m *indexManager) install(ix *index.Index, sn *storage.Snapshot) error {
	if err := m.build(ix, sn); err != nil {
		return err
	}
	m.mu.Lock()
	m.indexes[ix.Def.Name] = ix
	m.mu.Unlock()
	return nil
}

func (m *indexManager) create(def index.Definition, overwrite bool) (string, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, def.Expressions); err != nil {
		return "", newError(ErrInvalidQuery, "index expressions are not valid JSON: %v", err)
	}
	def.Expressions = buf.Bytes()
	ix, err := index.New(def)
	if err != nil {
		return "", wrapError(err)
	}
	if ix.Def.Name == "" {
		ix.Def.Name = synthesizeName(ix)
	}
	name := ix.Def.Name

	created := false
	sn, err := m.store.Pin(func(sn *storage.Snapshot) error {
		m.mu.RLock()
		existing := m.indexes[name]
		m.mu.RUnlock()
		if existing != nil {
			if sameIndex(existing, ix) {
				return nil
			}
			if !overwrite {
				return newError(ErrIndexExists, "index %q already exists", name)
			}
		}
		if err := m.catalog.PutIndex(ix.Def); err != nil {
			return fmt.Errorf("failed to save catalog: %w", err)
		}
		created = true
		return m.install(ix, sn)
	})
	if err != nil {
		return "", wrapError(err)
	}
	sn.Release()
	if created {
		m.log.Info("index created", "index", name, "kind", ix.Def.Kind, "expressions", string(ix.Def.Expressions),
			"entries", ix.Len())
	}
	return name, nil
}

func (m *indexManager) drop(name string) error {
	dropped := false
	sn, err := m.store.Pin(func(*storage.Snapshot) error {
		m.mu.RLock()
		_, ok := m.indexes[name]
		m.mu.RUnlock()
		if !ok {
			return nil
		}
		if err := m.catalog.DeleteIndex(name); err != nil {
			return fmt.Errorf("failed to save catalog: %w", err)
		}
		m.mu.Lock()
		delete(m.indexes, name)
		m.mu.Unlock()
		dropped = true
		return nil
	})
	if err != nil {
		return wrapError(err)
	}
	sn.Release()
	if dropped {
		metrics.IndexEntries.DeleteLabelValues(name)
		m.log.Info("index dropped", "index", name)
	}
	return nil
}

func (m *indexManager) infos() []IndexInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]IndexInfo, 0, len(m.indexes))
	for _, ix := range m.indexes {
		out = append(out, IndexInfo{
			Name:             ix.Def.Name,
			Kind:             ix.Def.Kind,
			Expressions:      ix.Def.Expressions,
			IgnoreDiacritics: ix.Def.IgnoreDiacritics,
			Entries:          ix.Len(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func sameIndex(a, b *index.Index) bool {
	return a.Def.Kind == b.Def.Kind &&
		a.Def.IgnoreDiacritics == b.Def.IgnoreDiacritics &&
		slices.Equal(a.Canonical, b.Canonical)
}

// synthesizeName derives a readable name from the canonical expressions,
// e.g. [".name.first"] -> "name.first", ["length()",[".name.first"]] ->
// "length_name.first".
func synthesizeName(ix *index.Index) string {
	var sb strings.Builder
	if ix.Def.Kind == index.KindFullText {
		sb.WriteString("fts_")
	}
	sep := false
	for i, c := range ix.Canonical {
		if i > 0 {
			sb.WriteString("__")
			sep = false
		}
		for _, r := range c {
			switch {
			case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
				sb.WriteRune(r)
				sep = true
			case r == '.' && sep:
				sb.WriteRune(r)
				sep = false
			case sep:
				sb.WriteByte('_')
				sep = false
			}
		}
	}
	return strings.Trim(sb.String(), "_.")
}

func indexDefinition(expressions []byte, kind IndexKind, opts *IndexOptions) index.Definition {
	def := index.Definition{Kind: kind, Expressions: expressions}
	if opts != nil {
		def.Name = opts.Name
		def.IgnoreDiacritics = opts.IgnoreDiacritics
	}
	return def
}

// ParseIndexKind accepts "value" and "fulltext" (also "fts", "full-text").
func ParseIndexKind(s string) (IndexKind, error) {
	k, err := index.ParseKind(s)
	if err != nil {
		return k, newError(ErrInvalidQuery, "%v", err)
	}
	return k, nil
}
