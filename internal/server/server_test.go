package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kartikbazzad/bunbase/bunquery"
	"github.com/kartikbazzad/bunbase/bunquery/internal/config"
	"github.com/kartikbazzad/bunbase/bunquery/internal/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T, cfg config.ServerConfig) (*Server, *bunquery.Database) {
	t.Helper()
	opts := bunquery.DefaultOptions("")
	opts.Logger = logger.Discard()
	db, err := bunquery.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	if cfg.QueryCacheSize == 0 {
		cfg.QueryCacheSize = 8
	}
	s, err := New(db, cfg, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s, db
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestDocumentsAndQueries(t *testing.T) {
	s, _ := newTestServer(t, config.ServerConfig{})

	for id, body := range map[string]string{
		"a": `{"city":"Oslo","n":1}`,
		"b": `{"city":"Rome","n":2}`,
		"c": `{"city":"Oslo","n":3}`,
	} {
		w := do(t, s, http.MethodPut, "/v1/docs/"+id, body)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	w := do(t, s, http.MethodGet, "/v1/docs/b", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Rome", decode(t, w)["body"].(map[string]interface{})["city"])

	w = do(t, s, http.MethodPost, "/v1/query",
		`{"query": {"WHAT": [["._id"], [".n"]], "WHERE": ["=", [".city"], ["$", "city"]], "ORDER_BY": [[".n", "DESC"]]},
		  "bindings": {"city": "Oslo"}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"columns": ["_id", "n"], "rows": [["c", 3], ["a", 1]], "count": 2}`, w.Body.String())

	w = do(t, s, http.MethodPost, "/v1/query", `{"query": ["=", [".city"], "Oslo"], "skip": 1, "limit": 1}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"columns": ["_id"], "rows": [["c"]], "count": 1}`, w.Body.String())

	w = do(t, s, http.MethodDelete, "/v1/docs/a", "")
	require.Equal(t, http.StatusOK, w.Code)
	w = do(t, s, http.MethodGet, "/v1/docs/a", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "storage", decode(t, w)["domain"])

	w = do(t, s, http.MethodPut, "/v1/docs/x", `[1,2]`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestQueryErrors(t *testing.T) {
	s, _ := newTestServer(t, config.ServerConfig{})

	w := do(t, s, http.MethodPost, "/v1/query", `{"query": ["="]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid query", decode(t, w)["code"])

	w = do(t, s, http.MethodPost, "/v1/query", `{"query": ["=", [".a"], ["$", 1]], "bindings": [1]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "binding error", decode(t, w)["code"])

	w = do(t, s, http.MethodPost, "/v1/query", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, s, http.MethodPost, "/v1/query", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIndexesAndExplain(t *testing.T) {
	s, db := newTestServer(t, config.ServerConfig{})
	_, err := db.Put("a", []byte(`{"title":"the quick brown fox"}`))
	require.NoError(t, err)
	_, err = db.Put("b", []byte(`{"title":"a lazy dog"}`))
	require.NoError(t, err)

	w := do(t, s, http.MethodPost, "/v1/query", `{"query": ["MATCH", "titles", "fox"]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, s, http.MethodPost, "/v1/indexes", `{"name": "titles", "kind": "fulltext", "expressions": [[".title"]]}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = do(t, s, http.MethodPost, "/v1/indexes", `{"name": "titles", "expressions": [[".title"]]}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	w = do(t, s, http.MethodPost, "/v1/indexes", `{"kind": "btree", "expressions": [[".title"]]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, s, http.MethodPost, "/v1/query", `{"query": ["MATCH", "titles", "fox"]}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"columns": ["_id"], "rows": [["a"]], "count": 1}`, w.Body.String())

	w = do(t, s, http.MethodPost, "/v1/explain", `{"query": ["MATCH", "titles", ["$q"]]}`)
	require.Equal(t, http.StatusOK, w.Code)
	out := decode(t, w)
	assert.Contains(t, out["plan"], "FULL-TEXT titles")
	assert.Equal(t, []interface{}{"q"}, out["parameters"])

	w = do(t, s, http.MethodGet, "/v1/indexes", "")
	require.Equal(t, http.StatusOK, w.Code)
	indexes := decode(t, w)["indexes"].([]interface{})
	require.Len(t, indexes, 1)
	assert.Equal(t, "fulltext", indexes[0].(map[string]interface{})["kind"])

	w = do(t, s, http.MethodDelete, "/v1/indexes/titles", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, s, http.MethodDelete, "/v1/indexes/titles", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	// The cached query now has no index to answer MATCH.
	w = do(t, s, http.MethodPost, "/v1/query", `{"query": ["MATCH", "titles", "fox"]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "no such index", decode(t, w)["code"])
}

func TestQueryCacheEviction(t *testing.T) {
	s, _ := newTestServer(t, config.ServerConfig{QueryCacheSize: 2})
	for _, q := range []string{`["=", 1, 1]`, `["=", 2, 2]`, `["=", 3, 3]`, `["=", 1, 1]`} {
		w := do(t, s, http.MethodPost, "/v1/query", `{"query": `+q+`}`)
		require.Equal(t, http.StatusOK, w.Code)
	}
	assert.Equal(t, 2, s.queries.len())

	cq, err := s.queries.acquire(`["=",4,4]`)
	require.NoError(t, err)
	s.queries.purge()
	// Still usable until released.
	e, err := cq.q.Run(nil, nil)
	require.NoError(t, err)
	e.Free()
	cq.release()
	_, err = cq.q.Run(nil, nil)
	assert.True(t, bunquery.IsCode(err, bunquery.ErrNotUsable))
}

func TestRateLimit(t *testing.T) {
	s, _ := newTestServer(t, config.ServerConfig{RequestsPerMinute: 1, Burst: 2})
	codes := []int{}
	for i := 0; i < 3; i++ {
		codes = append(codes, do(t, s, http.MethodGet, "/v1/indexes", "").Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// Health and metrics are not limited.
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/health", "").Code)
	w := do(t, s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "bunquery_http_requests_total")
}
