package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/lantrn/internal/diff"
	"github.com/mattjoyce/lantrn/internal/ledger"
	"github.com/mattjoyce/lantrn/internal/log"
	"github.com/mattjoyce/lantrn/internal/manifest"
	"github.com/mattjoyce/lantrn/internal/workspace"
)

// Workspaces is the read side of the workspace manager.
type Workspaces interface {
	ListWorkspaces() []string
	WorkspaceStats(id string) (*workspace.Stats, error)
	RunHistory(id string, status manifest.Status, limit int) ([]*manifest.RunManifest, error)
	LoadRun(id, runID string) (*manifest.RunManifest, error)
	LoadChangeSet(id, runID string) (*diff.ChangeSet, error)
}

// History is the read side of the run ledger.
type History interface {
	History(ctx context.Context, f ledger.Filter) ([]ledger.Entry, error)
	Totals(ctx context.Context, workspaceID string) (ledger.Totals, error)
}

// Config holds API server configuration
type Config struct {
	Listen string
	APIKey string
}

// Server serves read-only run inspection over HTTP.
type Server struct {
	config     Config
	workspaces Workspaces
	history    History
	logger     *slog.Logger
	server     *http.Server
	startedAt  time.Time
}

// New creates a server. history may be nil when no ledger is configured.
func New(config Config, workspaces Workspaces, history History, logger *slog.Logger) *Server {
	return &Server{
		config:     config,
		workspaces: workspaces,
		history:    history,
		logger:     log.OrComponent(logger, "api"),
		startedAt:  time.Now(),
	}
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// Start serves until ctx is cancelled (blocking).
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      s.setupRoutes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// Unauthenticated ops endpoint.
	r.Get("/healthz", s.handleHealthz)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/workspaces", s.handleListWorkspaces)
		r.Route("/workspaces/{id}", func(r chi.Router) {
			r.Get("/stats", s.handleWorkspaceStats)
			r.Get("/runs", s.handleListRuns)
			r.Get("/runs/{runID}", s.handleGetRun)
			r.Get("/runs/{runID}/changes", s.handleGetChanges)
		})
		r.Get("/history", s.handleHistory)
	})

	return r
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
