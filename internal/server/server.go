// Package server exposes analysis and batch apply over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dbsmedya/contentsync/internal/backend"
	"github.com/dbsmedya/contentsync/internal/config"
	"github.com/dbsmedya/contentsync/internal/content"
	"github.com/dbsmedya/contentsync/internal/history"
	"github.com/dbsmedya/contentsync/internal/lock"
	"github.com/dbsmedya/contentsync/internal/logger"
)

// LockFactory returns the lock guarding batches of one collection.
type LockFactory func(collection string) lock.Locker

// Option customizes a Server.
type Option func(*Server)

// WithJournal records every apply in the history journal.
func WithJournal(j *history.Journal) Option {
	return func(s *Server) { s.journal = j }
}

// WithLockFactory replaces the in-process collection locks.
func WithLockFactory(f LockFactory) Option {
	return func(s *Server) { s.locks = f }
}

// Server serves the sync API.
type Server struct {
	cfg     *config.Config
	source  content.Source
	store   backend.Store
	journal *history.Journal
	locks   LockFactory
	logger  *logger.Logger
	router  chi.Router
}

// New creates a server over the configured collections.
func New(cfg *config.Config, source content.Source, store backend.Store, log *logger.Logger, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	if source == nil {
		return nil, fmt.Errorf("content source is nil")
	}
	if store == nil {
		return nil, fmt.Errorf("backend store is nil")
	}
	if log == nil {
		log = logger.NewDefault()
	}

	registry := lock.NewRegistry()
	s := &Server{
		cfg:    cfg,
		source: source,
		store:  store,
		logger: log,
		locks: func(collection string) lock.Locker {
			return registry.Lock(lock.CollectionLockName(collection))
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.withLogging)

	r.Get("/healthz", s.handleHealth)
	r.Get("/collections", s.handleCollections)
	r.Route("/collections/{name}", func(r chi.Router) {
		r.Post("/analyze", s.handleAnalyze)
		r.Post("/apply", s.handleApply)
	})
	return r
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on the configured address until ctx is cancelled, then
// shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.cfg.Server.Listen,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Infow("Server starting", "listen", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.logger.Info("Server stopped")
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Infow("Request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"request_id", middleware.GetReqID(r.Context()),
			"duration", time.Since(start),
		)
	})
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warnw("Error encoding JSON response", "error", err)
	}
}

func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}
