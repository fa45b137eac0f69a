package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quarterhedge/updownbot/internal/server"
	"github.com/quarterhedge/updownbot/internal/server/handler"
)

// shutdownGrace is how long in-flight HTTP requests get to finish on
// shutdown.
const shutdownGrace = 10 * time.Second

// TradeMode runs the decision engine against live market data, with the
// websocket feed warming the snapshot cache and the archiver pruning aged
// records. No HTTP surface.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode")

	g, ctx := errgroup.WithContext(ctx)

	a.startFeed(ctx, g, deps)
	a.startArchiver(ctx, g, deps)

	g.Go(func() error {
		return deps.Engine.Run(ctx)
	})

	err := g.Wait()
	a.cancelOpenOrders(deps)
	return err
}

// MonitorMode runs the engine with a paper executor (regardless of dry_run)
// plus the HTTP status surface. Useful for watching the strategy's decisions
// without risking capital.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	g, ctx := errgroup.WithContext(ctx)

	a.startFeed(ctx, g, deps)
	a.startHTTPServer(ctx, g, deps)

	g.Go(func() error {
		return deps.Engine.Run(ctx)
	})

	return g.Wait()
}

// ServerMode serves the HTTP API over the persistent stores only; no engine
// runs and no orders are produced.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)

	a.startHTTPServer(ctx, g, deps)

	return g.Wait()
}

// FullMode runs everything: the engine, the websocket feed, the HTTP API,
// and the archiver.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	a.startFeed(ctx, g, deps)
	a.startHTTPServer(ctx, g, deps)
	a.startArchiver(ctx, g, deps)

	g.Go(func() error {
		return deps.Engine.Run(ctx)
	})

	err := g.Wait()
	a.cancelOpenOrders(deps)
	return err
}

// cancelOpenOrders sweeps the venue's open orders for the account after the
// engine stops. FAK orders do not rest, but a request that timed out
// mid-flight can still leave one on the book.
func (a *App) cancelOpenOrders(deps *Dependencies) {
	if deps.Clob == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := deps.Clob.CancelAll(ctx); err != nil {
		a.logger.Warn("cancel-all on shutdown failed", slog.String("error", err.Error()))
		return
	}
	a.logger.Info("open orders cancelled on shutdown")
}

// startFeed connects the websocket feed and keeps it alive until the context
// is cancelled. A feed failure is logged but never brings the group down;
// the engine's REST polling keeps working without it.
func (a *App) startFeed(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Feed == nil {
		return
	}

	g.Go(func() error {
		if err := deps.Feed.Connect(ctx); err != nil {
			a.logger.WarnContext(ctx, "websocket feed unavailable, continuing on REST polling only",
				slog.String("error", err.Error()),
			)
			return nil
		}
		<-ctx.Done()
		return deps.Feed.Close()
	})
}

// startArchiver runs the daily archive sweep when S3 is wired.
func (a *App) startArchiver(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Archiver == nil {
		return
	}

	g.Go(func() error {
		return deps.Archiver.Run(ctx)
	})
}

// startHTTPServer builds the handler set from whatever dependencies are
// wired and runs the API server until the context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if !a.cfg.Server.Enabled {
		a.logger.InfoContext(ctx, "http server disabled by config")
		return
	}

	handlers := server.Handlers{
		Health: handler.NewHealthHandler(a.logger),
	}
	if deps.Engine != nil {
		handlers.Status = handler.NewStatusHandler(deps.Engine, a.logger)
	}
	if deps.PositionStore != nil {
		handlers.Positions = handler.NewPositionHandler(deps.PositionStore, a.logger)
	}
	if deps.FillStore != nil && deps.TransitionStore != nil {
		handlers.Trades = handler.NewTradeHandler(deps.FillStore, deps.TransitionStore, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIToken:    a.cfg.Server.ApiToken,
	}, handlers, a.logger)

	g.Go(func() error {
		errCh := make(chan error, 1)
		go func() { errCh <- srv.Start() }()

		select {
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("app: http server: %w", err)
			}
			return nil
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				a.logger.Warn("http server shutdown", slog.String("error", err.Error()))
			}
			return ctx.Err()
		}
	})
}
