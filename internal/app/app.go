// Package app provides the top-level application lifecycle for the betting
// engine service. It wires together the store, caches, blob storage, the
// engine, HTTP/WebSocket transport, and notifications, and runs them until
// the context is cancelled.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/livepredict/engine/internal/config"
	"github.com/livepredict/engine/internal/engine"
	"github.com/livepredict/engine/internal/notify"
	"github.com/livepredict/engine/internal/server"
	"github.com/livepredict/engine/internal/server/handler"
	"github.com/livepredict/engine/internal/server/ws"
	"github.com/livepredict/engine/internal/service"
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

// Run is the main entry point. It wires all dependencies, starts the server
// and background workers, and blocks until the context is cancelled or a
// component fails.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("storage", a.cfg.Storage.Backend),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	eng := engine.New(deps.Store, engine.Config{
		FeeRateBps: a.cfg.Engine.FeeRateBps,
		Admins:     a.cfg.Engine.Admins,
	}, deps.EventBus, a.logger)
	if deps.LockManager != nil {
		eng = eng.WithLockManager(deps.LockManager)
	}
	if deps.MarketCache != nil {
		eng = eng.WithMarketCache(deps.MarketCache)
	}

	g, ctx := errgroup.WithContext(ctx)

	// WebSocket hub fans engine events out to browser clients. It needs the
	// event bus, so it only runs when redis is wired.
	var hub *ws.Hub
	if deps.EventBus != nil {
		hub = ws.NewHub(deps.EventBus, a.logger)
		g.Go(func() error {
			return hub.Run(ctx)
		})
	}

	if a.cfg.Server.Enabled {
		a.startServer(ctx, g, deps, eng, hub)
	}

	if deps.EventBus != nil && deps.Notifier != nil {
		listener := notify.NewListener(deps.EventBus, deps.Notifier, a.logger)
		g.Go(func() error {
			return listener.Run(ctx)
		})
	}

	if deps.Archiver != nil {
		g.Go(func() error {
			return a.runArchiveLoop(ctx, deps)
		})
	}

	return g.Wait()
}

// startServer assembles services and handlers and adds the HTTP server to the
// errgroup with graceful shutdown on context cancellation.
func (a *App) startServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, eng *engine.Engine, hub *ws.Hub) {
	marketSvc := service.NewMarketService(deps.Store.Markets, deps.MarketCache, a.logger)
	betSvc := service.NewBetService(deps.Store.Bets, a.logger)
	ledgerSvc := service.NewLedgerService(deps.Store.Ledger, deps.Store.Stats, deps.Store.Audit, a.logger)

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, server.Handlers{
		Health:  handler.NewHealthHandler(a.logger),
		Ledger:  handler.NewLedgerHandler(ledgerSvc, eng, a.logger),
		Markets: handler.NewMarketHandler(marketSvc, eng, eng.FeeRateBps(), a.logger),
		Bets:    handler.NewBetHandler(betSvc, eng, a.logger),
	}, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("http server shutdown", slog.String("error", err.Error()))
		}
		return ctx.Err()
	})
}

// runArchiveLoop periodically ships settled bets and old audit entries older
// than the retention window to object storage.
func (a *App) runArchiveLoop(ctx context.Context, deps *Dependencies) error {
	interval := a.cfg.Archive.Interval.Duration
	retention := time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-retention)

			// Archive runs on one instance at a time when a lock manager is
			// available; a held lock means another replica is on it.
			release := func() {}
			if deps.LockManager != nil {
				var err error
				release, err = deps.LockManager.Acquire(ctx, "archive", interval/2)
				if err != nil {
					a.logger.Info("archive pass skipped", slog.String("reason", err.Error()))
					continue
				}
			}

			if _, err := deps.Archiver.ArchiveBets(ctx, cutoff); err != nil {
				a.logger.Error("bet archive pass failed", slog.String("error", err.Error()))
			}
			if _, err := deps.Archiver.ArchiveAudit(ctx, cutoff); err != nil {
				a.logger.Error("audit archive pass failed", slog.String("error", err.Error()))
			}
			release()
		}
	}
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
