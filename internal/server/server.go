// Package server exposes the read-only ops surface: health, status, open
// positions, the lifecycle event stream, and the archive index.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/voltrade/voltbot/internal/domain"
	"github.com/voltrade/voltbot/internal/server/handler"
	"github.com/voltrade/voltbot/internal/server/middleware"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port      int
	APIKey    string // if empty, authentication is disabled
	RateLimit int    // requests per client per minute, 0 disables
}

// Handlers aggregates the HTTP handlers the server registers. Health, Status,
// and Positions are required; Markets, Events, and Archive routes are only
// registered when their handlers are present.
type Handlers struct {
	Health    *handler.HealthHandler
	Status    *handler.StatusHandler
	Positions *handler.PositionHandler
	Markets   *handler.MarketHandler
	Events    *handler.EventsHandler
	Archive   *handler.ArchiveHandler
}

// Server is the ops HTTP server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered. The middleware chain
// is logging, then rate limiting when a limiter is supplied, then auth; the
// health probe is exempt from auth.
func NewServer(cfg Config, handlers Handlers, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)
	mux.HandleFunc("GET /api/positions", handlers.Positions.ListPositions)

	if handlers.Markets != nil {
		mux.HandleFunc("GET /api/markets", handlers.Markets.ListMarkets)
	}
	if handlers.Events != nil {
		mux.HandleFunc("GET /api/events", handlers.Events.ListEvents)
	}
	if handlers.Archive != nil {
		mux.HandleFunc("GET /api/archive", handlers.Archive.ListObjects)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey, "/api/health")(h)
	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, time.Minute)(h)
	}
	h = middleware.Logging(logger)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
