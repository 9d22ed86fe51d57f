package server

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kartikbazzad/bunbase/bunquery"
)

// cachedQuery is a compiled query shared by concurrent requests. It is
// freed once it has been evicted and no request still runs it.
type cachedQuery struct {
	q *bunquery.Query

	mu      sync.Mutex
	refs    int
	evicted bool
}

func (cq *cachedQuery) release() {
	cq.mu.Lock()
	cq.refs--
	free := cq.evicted && cq.refs == 0
	cq.mu.Unlock()
	if free {
		cq.q.Free()
	}
}

func (cq *cachedQuery) evict() {
	cq.mu.Lock()
	cq.evicted = true
	free := cq.refs == 0
	cq.mu.Unlock()
	if free {
		cq.q.Free()
	}
}

// queryCache keeps recently used compiled queries, keyed by their JSON
// text.
type queryCache struct {
	db    *bunquery.Database
	mu    sync.Mutex
	cache *lru.Cache[string, *cachedQuery]
}

func newQueryCache(db *bunquery.Database, size int) (*queryCache, error) {
	if size < 1 {
		size = 1
	}
	cache, err := lru.NewWithEvict[string, *cachedQuery](size, func(_ string, cq *cachedQuery) {
		cq.evict()
	})
	if err != nil {
		return nil, err
	}
	return &queryCache{db: db, cache: cache}, nil
}

// acquire returns the compiled query for text, compiling it on a miss.
// The caller must release it.
func (qc *queryCache) acquire(text string) (*cachedQuery, error) {
	qc.mu.Lock()
	defer qc.mu.Unlock()
	cq, ok := qc.cache.Get(text)
	if !ok {
		q, err := qc.db.Compile([]byte(text))
		if err != nil {
			return nil, err
		}
		cq = &cachedQuery{q: q}
		qc.cache.Add(text, cq)
	}
	cq.mu.Lock()
	cq.refs++
	cq.mu.Unlock()
	return cq, nil
}

func (qc *queryCache) len() int { return qc.cache.Len() }

// purge frees every cached query.
func (qc *queryCache) purge() {
	qc.mu.Lock()
	defer qc.mu.Unlock()
	qc.cache.Purge()
}
