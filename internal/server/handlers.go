package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kartikbazzad/bunbase/bunquery"
	"github.com/kartikbazzad/bunbase/bunquery/value"
)

const maxBodySize = 8 << 20

type queryRequest struct {
	Query    json.RawMessage `json:"query"`
	Bindings json.RawMessage `json:"bindings,omitempty"`
	Skip     int             `json:"skip,omitempty"`
	Limit    int             `json:"limit,omitempty"`
}

type queryResponse struct {
	Columns []string        `json:"columns"`
	Rows    [][]value.Value `json:"rows"`
	Count   int             `json:"count"`
}

type indexRequest struct {
	Name             string          `json:"name"`
	Kind             string          `json:"kind"`
	Expressions      json.RawMessage `json:"expressions"`
	IgnoreDiacritics bool            `json:"ignore_diacritics"`
	Overwrite        bool            `json:"overwrite"`
}

func statusFor(err error) int {
	var e *bunquery.Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}
	switch e.Code {
	case bunquery.ErrInvalidQuery, bunquery.ErrBinding, bunquery.ErrColumnOutOfRange, bunquery.ErrNoSuchIndex:
		return http.StatusBadRequest
	case bunquery.ErrNotFound:
		return http.StatusNotFound
	case bunquery.ErrConflict, bunquery.ErrIndexExists:
		return http.StatusConflict
	case bunquery.ErrNotUsable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(c *gin.Context, err error) {
	status := statusFor(err)
	body := gin.H{"error": err.Error()}
	var e *bunquery.Error
	if errors.As(err, &e) {
		body["domain"] = e.Domain.String()
		body["code"] = e.Code.String()
	}
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.AbortWithStatusJSON(status, body)
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg})
}

func readBody(c *gin.Context) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodySize+1))
	if err != nil {
		badRequest(c, "failed to read request body")
		return nil, false
	}
	if len(body) > maxBodySize {
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
		return nil, false
	}
	return body, true
}

// queryText returns the compacted query JSON used as the cache key.
func queryText(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", errors.New("query is required")
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (s *Server) handleQuery(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	text, err := queryText(req.Query)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	cq, err := s.queries.acquire(text)
	if err != nil {
		s.fail(c, err)
		return
	}
	defer cq.release()

	e, err := cq.q.Run(&bunquery.RunOptions{Skip: req.Skip, Limit: req.Limit}, req.Bindings)
	if err != nil {
		s.fail(c, err)
		return
	}
	defer e.Free()

	resp := queryResponse{Rows: [][]value.Value{}}
	for i := 0; i < cq.q.ColumnCount(); i++ {
		title, _ := cq.q.ColumnTitle(i)
		resp.Columns = append(resp.Columns, title)
	}
	for e.Next() {
		row, err := e.Columns()
		if err != nil {
			s.fail(c, err)
			return
		}
		resp.Rows = append(resp.Rows, row)
	}
	if err := e.Err(); err != nil {
		s.fail(c, err)
		return
	}
	resp.Count = len(resp.Rows)
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleExplain(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	text, err := queryText(req.Query)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	cq, err := s.queries.acquire(text)
	if err != nil {
		s.fail(c, err)
		return
	}
	defer cq.release()
	plan, err := cq.q.Explain()
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"plan": plan, "parameters": cq.q.Parameters()})
}

func (s *Server) handleGetDoc(c *gin.Context) {
	doc, err := s.db.Get(c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": doc.ID, "rev": doc.RevID, "sequence": doc.Sequence, "body": doc.Body})
}

func (s *Server) handlePutDoc(c *gin.Context) {
	body, ok := readBody(c)
	if !ok {
		return
	}
	id := c.Param("id")
	seq, err := s.db.Put(id, body)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "sequence": seq})
}

func (s *Server) handleDeleteDoc(c *gin.Context) {
	id := c.Param("id")
	seq, err := s.db.Delete(id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "sequence": seq})
}

func (s *Server) handleListIndexes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"indexes": s.db.Indexes()})
}

func (s *Server) handleCreateIndex(c *gin.Context) {
	var req indexRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	kind, err := bunquery.ParseIndexKind(req.Kind)
	if err != nil {
		s.fail(c, err)
		return
	}
	name, err := s.db.CreateIndex(req.Expressions, kind,
		&bunquery.IndexOptions{Name: req.Name, IgnoreDiacritics: req.IgnoreDiacritics}, req.Overwrite)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"name": name})
}

func (s *Server) handleDropIndex(c *gin.Context) {
	if err := s.db.DropIndex(c.Param("name")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
