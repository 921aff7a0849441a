// Package server exposes the marketplace over HTTP and WebSocket.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/zulelabs/marketd/internal/domain"
	"github.com/zulelabs/marketd/internal/server/handler"
	"github.com/zulelabs/marketd/internal/server/middleware"
	"github.com/zulelabs/marketd/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// RateLimit caps requests per client IP per RateWindow; zero disables.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates the HTTP handlers the server registers.
type Handlers struct {
	Health   *handler.HealthHandler
	Listings *handler.ListingHandler
	Fees     *handler.FeeHandler
	Admin    *handler.AdminHandler
	Balances *handler.BalanceHandler
	Events   *handler.EventHandler
}

// Server is the marketplace HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer registers all routes on a ServeMux and wires the middleware
// chain (auth, rate limiting, logging, CORS). limiter may be nil.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check, no auth required.
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Listings and purchases.
	mux.HandleFunc("GET /api/listings", handlers.Listings.List)
	mux.HandleFunc("POST /api/listings", handlers.Listings.Create)
	mux.HandleFunc("GET /api/listings/{id}", handlers.Listings.Get)
	mux.HandleFunc("DELETE /api/listings/{id}", handlers.Listings.Cancel)
	mux.HandleFunc("POST /api/listings/{id}/purchase", handlers.Listings.Purchase)

	// Fee policy.
	mux.HandleFunc("GET /api/fees", handlers.Fees.Get)
	mux.HandleFunc("PUT /api/fees", handlers.Fees.Set)

	// Administration.
	mux.HandleFunc("GET /api/admin", handlers.Admin.State)
	mux.HandleFunc("POST /api/admin/init", handlers.Admin.Initialize)
	mux.HandleFunc("POST /api/admin/transfer", handlers.Admin.Transfer)
	mux.HandleFunc("POST /api/admin/accept", handlers.Admin.Accept)
	mux.HandleFunc("POST /api/admin/pause", handlers.Admin.Pause)

	// Deposited balances.
	mux.HandleFunc("GET /api/balances/{address}", handlers.Balances.Get)
	mux.HandleFunc("POST /api/balances/{address}/deposit", handlers.Balances.Deposit)
	mux.HandleFunc("POST /api/balances/{address}/withdraw", handlers.Balances.Withdraw)

	// Event journal.
	mux.HandleFunc("GET /api/events", handlers.Events.List)

	// Live event stream.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger.With(slog.String("component", "server")),
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
