package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/timechildgames/cloudrelay/internal/auth"
	"github.com/timechildgames/cloudrelay/internal/dispatch"
	"github.com/timechildgames/cloudrelay/internal/events"
	"github.com/timechildgames/cloudrelay/internal/queue"
	"github.com/timechildgames/cloudrelay/internal/storage"
)

// Relay is the dispatcher surface the bridge exposes over HTTP.
type Relay interface {
	Submit(req dispatch.Request) queue.RequestID
	FetchNext() (queue.Result, bool)
	Outstanding() int
	Queued() int
}

// ResultLog lists journaled results.
type ResultLog interface {
	Recent(ctx context.Context, limit int) ([]storage.Entry, error)
}

// Config holds API server configuration
type Config struct {
	Listen string
	// APIKey is the single full-access bearer token.
	APIKey string
	// Tokens is an optional list of scoped bearer tokens.
	Tokens []auth.TokenConfig
}

// Server represents the HTTP API server
type Server struct {
	config    Config
	relay     Relay
	events    *events.Hub
	journal   ResultLog
	probe     dispatch.Probe
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// Option configures optional collaborators.
type Option func(*Server)

// WithJournal enables GET /results/log.
func WithJournal(j ResultLog) Option {
	return func(s *Server) { s.journal = j }
}

// WithProbe reports network availability on /healthz.
func WithProbe(p dispatch.Probe) Option {
	return func(s *Server) { s.probe = p }
}

// New creates a new API server instance
func New(config Config, relay Relay, hub *events.Hub, logger *slog.Logger, opts ...Option) *Server {
	if hub == nil {
		hub = events.NewHub(256)
	}
	s := &Server{
		config:    config,
		relay:     relay,
		events:    hub,
		logger:    logger,
		startedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed handler without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// Start starts the HTTP server (blocking)
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.config.Listen, err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the server on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.server = &http.Server{
		Handler:     s.setupRoutes(),
		ReadTimeout: 10 * time.Second,
		// No WriteTimeout: /events streams indefinitely.
		IdleTimeout: 60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
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

// setupRoutes configures the HTTP router
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
		r.With(s.requireScopes(auth.ScopeRequestsRW)).Post("/functions/{name}", s.handleFunction)
		r.With(s.requireScopes(auth.ScopeRequestsRW)).Post("/requests", s.handleRequest)
		r.With(s.requireScopes(auth.ScopeResultsRW)).Get("/results/next", s.handleNextResult)
		r.With(s.requireScopes(auth.ScopeResultsRO)).Get("/results/log", s.handleResultLog)
		r.With(s.requireScopes(auth.ScopeEventsRO)).Get("/events", s.handleEvents)
	})

	return r
}

// loggingMiddleware logs HTTP requests
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
