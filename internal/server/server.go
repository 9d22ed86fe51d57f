// Package server exposes a Database over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kartikbazzad/bunbase/bunquery"
	"github.com/kartikbazzad/bunbase/bunquery/internal/config"
	"github.com/kartikbazzad/bunbase/bunquery/internal/metrics"
)

// Server is the HTTP API of a database.
type Server struct {
	db      *bunquery.Database
	cfg     config.ServerConfig
	log     *slog.Logger
	queries *queryCache
	router  *gin.Engine
	http    *http.Server
}

// New builds the router for db.
func New(db *bunquery.Database, cfg config.ServerConfig, log *slog.Logger) (*Server, error) {
	queries, err := newQueryCache(db, cfg.QueryCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create query cache: %w", err)
	}
	s := &Server{db: db, cfg: cfg, log: log, queries: queries}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(metrics.Middleware())
	router.Use(s.requestLogger())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "documents": db.DocumentCount(), "sequence": db.LastSequence()})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	v1.Use(rateLimitMiddleware(cfg.RequestsPerMinute, cfg.Burst))
	v1.POST("/query", s.handleQuery)
	v1.POST("/explain", s.handleExplain)
	v1.GET("/docs/:id", s.handleGetDoc)
	v1.PUT("/docs/:id", s.handlePutDoc)
	v1.DELETE("/docs/:id", s.handleDeleteDoc)
	v1.GET("/indexes", s.handleListIndexes)
	v1.POST("/indexes", s.handleCreateIndex)
	v1.DELETE("/indexes/:name", s.handleDropIndex)

	s.router = router
	return s, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.http = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", s.cfg.Addr)
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.log.Info("http server shutting down")
	err := s.http.Shutdown(shutdownCtx)
	s.Close()
	return err
}

// Close frees the cached queries.
func (s *Server) Close() {
	s.queries.purge()
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"client", c.ClientIP(),
		)
	}
}
