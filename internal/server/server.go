// Package server sets up the HTTP server, router, and all route definitions.
//
// This package is the "wiring" layer: it connects the store, services,
// handlers, middleware and routes, and owns start-up and graceful shutdown.
//
// DEPENDENCY INJECTION FLOW:
//
//	config.Config → Server.New creates:
//	  sqlite.DB → ScoreAggregator → VoteService ┐
//	            → PostService                   ├→ PostHandler / UserHandler
//	            → UserService                   ┘
//
// This is the "composition root" pattern: all dependencies are wired in one
// place (New/routes), rather than scattered across the codebase.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/postboard/internal/auth"
	"github.com/sakif/postboard/internal/config"
	"github.com/sakif/postboard/internal/feed"
	"github.com/sakif/postboard/internal/handler"
	"github.com/sakif/postboard/internal/metrics"
	"github.com/sakif/postboard/internal/middleware"
	sqliteRepo "github.com/sakif/postboard/internal/repository/sqlite"
	"github.com/sakif/postboard/internal/service"
)

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the database connection. Close (called by Start on the
// way out) flushes the WAL and releases the file.
type Server struct {
	router  *chi.Mux
	config  config.Config
	logger  *slog.Logger
	db      *sqliteRepo.DB
	metrics *metrics.Registry
	limiter *middleware.RateLimiter
}

// New opens the database, applies migrations and wires every route.
func New(cfg config.Config, logger *slog.Logger) (*Server, error) {
	if cfg.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating token service: %w", err)
	}

	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		db:      db,
		metrics: metrics.New(),
		limiter: middleware.NewRateLimiter(cfg.VoteRate, cfg.VoteBurst),
	}
	s.routes(tokens)

	return s, nil
}

// routes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
//
//	GET    /healthz                  → store ping
//	GET    /metrics                  → Prometheus text exposition
//	GET    /api/posts                → feed page          (anonymous ok)
//	GET    /api/posts/{id}           → single post        (anonymous ok)
//	POST   /api/posts                → create             (auth)
//	PUT    /api/posts/{id}           → update, owner only (auth)
//	DELETE /api/posts/{id}           → delete, owner only (auth)
//	POST   /api/posts/{id}/vote      → cast vote          (auth, rate limited)
//	GET    /api/me                   → current user       (auth)
//
// MIDDLEWARE ORDER MATTERS:
//  1. RequestID: assigns unique ID to each request (for tracing)
//  2. RealIP: extracts real client IP from proxy headers
//  3. Logger: logs each request and records request metrics
//  4. Recoverer: catches panics and returns 500 instead of crashing
//  5. Authenticate (API only): resolves the caller from their token
func (s *Server) routes(tokens *auth.TokenService) {
	gate := auth.ContextGate{}

	aggregator := service.NewScoreAggregator(s.db)
	voteService := service.NewVoteService(aggregator, s.metrics, s.logger)
	postService := service.NewPostService(s.db, feed.NewCursorCodec(s.config.CursorSecret), s.metrics, s.logger)
	userService := service.NewUserService(s.db, s.logger)

	postHandler := handler.NewPostHandler(postService, voteService, gate, s.logger)
	userHandler := handler.NewUserHandler(userService, gate, s.logger)
	healthHandler := handler.NewHealthHandler(s.db, s.logger)

	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger, s.metrics))
	s.router.Use(chimiddleware.Recoverer)

	s.router.Get("/healthz", healthHandler.HandleHealth)
	s.router.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	voteLimit := s.limiter.Limit(func(r *http.Request) string {
		id, _ := auth.UserIDFromContext(r.Context())
		return id
	}, s.metrics)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(auth.Authenticate(tokens))

		r.Get("/posts", postHandler.HandleList)
		r.Get("/posts/{id}", postHandler.HandleGet)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth)

			r.Post("/posts", postHandler.HandleCreate)
			r.Put("/posts/{id}", postHandler.HandleUpdate)
			r.Delete("/posts/{id}", postHandler.HandleDelete)
			r.With(voteLimit).Post("/posts/{id}/vote", postHandler.HandleVote)
			r.Get("/me", userHandler.HandleMe)
		})
	})
}

// Handler exposes the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the database.
func (s *Server) Close() error {
	return s.db.Close()
}

// Start serves until ctx is cancelled, then shuts down gracefully.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting new HTTP connections
//  2. Wait for in-flight requests to finish (30s timeout)
//  3. Close the database connection (flushes WAL, releases file lock)
func (s *Server) Start(ctx context.Context) error {
	defer s.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go s.limiter.Run(sweepCtx, time.Minute)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("database", s.config.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case <-ctx.Done():
		s.logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
