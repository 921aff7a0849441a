package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zulelabs/marketd/internal/server"
	"github.com/zulelabs/marketd/internal/server/handler"
	"github.com/zulelabs/marketd/internal/server/ws"
	"github.com/zulelabs/marketd/internal/service"
)

// shutdownGrace bounds how long in-flight requests may drain on shutdown.
const shutdownGrace = 10 * time.Second

// runMarketplace builds the services and HTTP surface on top of deps and
// runs everything until ctx is cancelled.
func (a *App) runMarketplace(ctx context.Context, deps *Dependencies) error {
	listingSvc := service.NewListingService(
		deps.Listings, deps.Admin, deps.Adapters, deps.Journal, deps.Bus, deps.Operator, a.logger)
	settlementSvc := service.NewSettlementService(
		deps.Listings, deps.Fees, deps.Admin, deps.Ledger, deps.Adapters,
		deps.Journal, deps.Bus, deps.Operator, a.logger)
	if deps.Locks != nil {
		settlementSvc = settlementSvc.WithLockManager(deps.Locks)
	}
	feeSvc := service.NewFeeService(deps.Fees, deps.Admin, a.logger)
	adminSvc := service.NewAdminService(deps.Admin, deps.Fees, a.logger)

	hub := ws.NewHub(deps.Feed, a.cfg.Mode, a.logger)

	srv := server.NewServer(
		server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
			APIKey:      a.cfg.Server.APIKey,
			RateLimit:   a.cfg.Redis.RateLimit,
			RateWindow:  a.cfg.Redis.RateWindow.Duration,
		},
		server.Handlers{
			Health:   handler.NewHealthHandler(deps.Health, a.logger),
			Listings: handler.NewListingHandler(listingSvc, settlementSvc, a.logger),
			Fees:     handler.NewFeeHandler(feeSvc, a.logger),
			Admin:    handler.NewAdminHandler(adminSvc, a.logger),
			Balances: handler.NewBalanceHandler(deps.Ledger, a.logger),
			Events:   handler.NewEventHandler(deps.Journal, a.logger),
		},
		hub,
		deps.Limiter,
		a.logger,
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := hub.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("ws hub: %w", err)
	})

	g.Go(func() error {
		if err := srv.Start(); err != nil {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if deps.Sink != nil {
		archiver := service.NewArchiverService(deps.Sink, a.cfg.Archive.Interval.Duration, a.logger)
		g.Go(func() error {
			err := archiver.Run(ctx)
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("archiver: %w", err)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
