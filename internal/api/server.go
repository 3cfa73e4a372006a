// Package api provides the HTTP JSON API for projtrack. It is a thin
// collaborator over the core: it translates requests into store and query
// calls and typed failures into HTTP statuses.
package api

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/wesm/projtrack/internal/config"
	"github.com/wesm/projtrack/internal/migrate"
	"github.com/wesm/projtrack/internal/query"
	"github.com/wesm/projtrack/internal/store"
)

// Server represents the HTTP API server.
type Server struct {
	cfg    *config.Config
	st     *store.Store
	engine *query.Engine
	runner *migrate.Runner
	logger *slog.Logger
	router chi.Router
	server *http.Server
}

// NewServer creates a new API server.
func NewServer(cfg *config.Config, st *store.Store, logger *slog.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		st:     st,
		engine: query.NewEngine(st),
		runner: migrate.NewRunner(st),
		logger: logger,
	}
	s.router = s.setupRouter()
	return s
}

func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(s.loggerMiddleware)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))

	// Health check (no auth required)
	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Get("/stats", s.handleStats)

		r.Get("/projects", s.handleListProjects)
		r.Post("/projects", s.handleCreateProject)
		r.Get("/projects/{id}/communications", s.handleProjectView)
		r.Get("/projects/{id}/contacts", s.handleProjectMembers)

		r.Get("/contacts", s.handleListContacts)
		r.Get("/contacts/{id}/communications", s.handleContactView)

		r.Get("/communications", s.handleListCommunications)
		r.Post("/communications/{id}/assign", s.handleAssign)
		r.Post("/communications/{id}/snooze", s.handleSnooze)
		r.Post("/communications/{id}/ignore", s.handleIgnore)

		r.Post("/reminders/sweep", s.handleReminderSweep)
		r.Post("/migrate", s.handleMigrate)
	})

	return r
}

// loggerMiddleware logs each request with method, path, status, and duration.
func (s *Server) loggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
		)
	})
}

// authMiddleware enforces the configured API key, when one is set.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Server.APIKey == "" {
			next.ServeHTTP(w, r)
			return
		}
		key := r.Header.Get("X-API-Key")
		if subtle.ConstantTimeCompare([]byte(key), []byte(s.cfg.Server.APIKey)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid or missing API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Router returns the underlying router, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start begins listening on the configured port. Blocks until the server
// stops or ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(s.cfg.Server.APIPort))
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.ListenAndServe()
	}()

	s.logger.Info("API server listening", "addr", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
