// Package app provides top-level lifecycle management for the marketplace
// daemon. It wires the stores, caches, asset adapters, and services for the
// configured mode and runs the HTTP server and background workers.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/zulelabs/marketd/internal/config"
)

// App is the root application object. It owns the configuration, logger, and
// a list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires dependencies for the configured mode and blocks until the
// context is cancelled. On return it runs registered cleanup functions.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.LogLevel),
	)

	var (
		deps    *Dependencies
		cleanup func()
		err     error
	)
	switch strings.ToLower(a.cfg.Mode) {
	case config.ModeServe:
		deps, cleanup, err = WireServe(ctx, a.cfg, a.logger)
	case config.ModeLocal:
		deps, cleanup, err = WireLocal(a.cfg, a.logger)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	return a.runMarketplace(ctx, deps)
}

// Close tears down all resources in reverse registration order. Safe to call
// multiple times.
func (a *App) Close() {
	a.logger.Info("shutting down")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
