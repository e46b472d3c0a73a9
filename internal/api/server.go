// Package api exposes the HTTP interface for the fetch service.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/r3co87/iris/internal/config"
	"github.com/r3co87/iris/internal/driver"
	"github.com/r3co87/iris/internal/fetch"
	idgen "github.com/r3co87/iris/internal/id/uuid"
	"github.com/r3co87/iris/internal/metrics"
	"github.com/r3co87/iris/internal/model"
)

var requestIDs = idgen.NewUUIDGenerator()

// CacheStore is what the cache-invalidation and health handlers need from
// the response cache, narrowed so tests can substitute a fake.
type CacheStore interface {
	Invalidate(ctx context.Context, fingerprint string) (bool, error)
	Up() bool
	Stats() (hits, misses int64)
}

// Fetcher is what the handlers need from the fetch pipeline.
type Fetcher interface {
	Fetch(ctx context.Context, req model.FetchRequest) model.FetchResult
	FetchBatch(ctx context.Context, reqs []model.FetchRequest) ([]model.FetchResult, error)
}

// Server wires HTTP handlers to the fetcher, cache, and driver.
type Server struct {
	router  chi.Router
	fetcher Fetcher
	cacheSt CacheStore
	drv     driver.Driver
	logger  *zap.Logger
	cfg     config.Config
	started time.Time
	version string
}

// NewServer constructs a Server with middleware and routes.
func NewServer(fetcher Fetcher, cacheSt CacheStore, drv driver.Driver, logger *zap.Logger, cfg config.Config, version string) *Server {
	s := &Server{
		fetcher: fetcher,
		cacheSt: cacheSt,
		drv:     drv,
		logger:  logger,
		cfg:     cfg,
		started: model.Now(),
		version: version,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/health", s.health)
	r.Get("/metrics", metrics.Handler().ServeHTTP)
	r.Post("/fetch", s.fetchOne)
	r.Post("/batch", s.fetchBatch)
	r.Delete("/cache/{hash}", s.invalidateCache)

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	hits, misses := s.cacheSt.Stats()
	resp := model.HealthResponse{
		Status: "ok",
		Browser: model.BrowserHealth{
			Up:   s.drv.Up(),
			Type: string(s.cfg.BrowserType),
		},
		Cache: model.CacheHealth{
			Up:     s.cacheSt.Up(),
			Hits:   hits,
			Misses: misses,
		},
		Version:       s.version,
		UptimeSeconds: int64(model.Now().Sub(s.started).Seconds()),
	}
	if !resp.Browser.Up {
		resp.Status = "degraded"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) fetchOne(w http.ResponseWriter, r *http.Request) {
	var req model.FetchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid JSON")
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusUnprocessableEntity, "url required")
		return
	}
	result := s.fetcher.Fetch(r.Context(), req)
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) fetchBatch(w http.ResponseWriter, r *http.Request) {
	var req model.BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid JSON")
		return
	}
	if len(req.Requests) == 0 {
		writeError(w, http.StatusUnprocessableEntity, "requests required")
		return
	}
	if len(req.Requests) > fetch.MaxBatchSize {
		writeError(w, http.StatusUnprocessableEntity, "batch size exceeds max")
		return
	}
	results, err := s.fetcher.FetchBatch(r.Context(), req.Requests)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, model.BatchResponse{Results: results})
}

func (s *Server) invalidateCache(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "hash")
	if !isValidCacheHash(hash) {
		writeError(w, http.StatusBadRequest, "hash must be 64 lowercase hex characters")
		return
	}
	if _, err := s.cacheSt.Invalidate(r.Context(), hash); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// isValidCacheHash reports whether hash is a 64-character lowercase hex
// string, the shape of the SHA-256 fingerprint DELETE /cache/{hash} expects.
func isValidCacheHash(hash string) bool {
	if len(hash) != 64 {
		return false
	}
	for _, c := range hash {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID, err := requestIDs.NewID()
		if err != nil {
			reqID, _ = requestIDs.NewV4ID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
