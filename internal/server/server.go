// Package server exposes a storage.Backend and storage.Directory over a small
// JSON HTTP API that remote.Client speaks.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/Tiliavir/timesheet-grid/internal/logging"
	"github.com/Tiliavir/timesheet-grid/internal/storage"
)

// Config contains HTTP server configuration.
type Config struct {
	Address        string
	RateLimit      int // requests per minute per client
	RateBurst      int
	RequestTimeout time.Duration
	// TrustProxy keys rate limiting on X-Real-IP instead of the peer address.
	TrustProxy bool
}

// SetDefaults applies default values for missing configuration.
func (c *Config) SetDefaults() {
	if c.Address == "" {
		c.Address = ":8080"
	}
	if c.RateLimit == 0 {
		c.RateLimit = 600
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 10 * time.Second
	}
}

// Server is the HTTP API server.
type Server struct {
	config    Config
	backend   storage.Backend
	directory storage.Directory
	logger    logging.Logger
	server    *http.Server
	limiter   *rateLimiter
	now       func() time.Time
}

// New creates a server. directory may be nil, in which case the company
// routes answer 404.
func New(cfg Config, backend storage.Backend, directory storage.Directory, logger logging.Logger) (*Server, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend is required")
	}
	if logger == nil {
		logger = logging.Nop()
	}
	cfg.SetDefaults()

	s := &Server{
		config:    cfg,
		backend:   backend,
		directory: directory,
		logger:    logger,
		limiter:   newRateLimiter(cfg.RateLimit, cfg.RateBurst, cfg.TrustProxy),
		now:       time.Now,
	}
	s.server = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(observe(s.logger))
	r.Use(chimw.Timeout(s.config.RequestTimeout))

	r.Get("/health", s.health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.limiter.middleware)

		r.Post("/entries", s.createEntry)
		r.Patch("/entries/{id}", s.updateEntry)
		r.Delete("/entries/{id}", s.deleteEntry)

		r.Route("/companies/{companyID}", func(r chi.Router) {
			r.Get("/", s.getCompany)
			r.Get("/entries", s.listEntries)
			r.Get("/projects", s.listProjects)
		})
	})
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	go s.limiter.cleanupLoop(ctx, limiterIdle/2)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "HTTP API listening", "addr", s.config.Address)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info(ctx, "shutting down HTTP API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	}
}

// Address returns the configured listen address.
func (s *Server) Address() string {
	return s.config.Address
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	OK(w, map[string]string{"status": "ok"})
}

// writeStorageError maps backend errors onto the envelope.
func (s *Server) writeStorageError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		JSONError(w, NewNotFound(err.Error()))
	case errors.Is(err, storage.ErrInvalidEntry):
		JSONError(w, NewValidationError(err.Error()))
	default:
		s.logger.Error(r.Context(), "backend call failed", "method", r.Method, "path", r.URL.Path, "error", err)
		JSONError(w, ErrInternalServer)
	}
}
