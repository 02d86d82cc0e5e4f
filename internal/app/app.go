// Package app provides the top-level application lifecycle for the swap
// execution engine. It wires together all dependencies (store, cache,
// router, queue, engine, API surface) and supervises their goroutines.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/avelinsk/swapflow/internal/config"
	"github.com/avelinsk/swapflow/internal/domain"
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

// Run is the main entry point. It wires all dependencies, starts the queue,
// WebSocket hub, HTTP server, and archiver, and blocks until the context is
// cancelled. On return it runs all registered cleanup functions.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting",
		slog.String("venue_mode", a.cfg.Venue.Mode),
		slog.Int("workers", a.cfg.Queue.Workers),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)
	defer a.Close()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return ignoreCancel(deps.Queue.Run(ctx))
	})

	g.Go(func() error {
		return ignoreCancel(deps.Hub.Run(ctx))
	})

	g.Go(func() error {
		return deps.Server.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return deps.Server.Shutdown(shutCtx)
	})

	if deps.Archiver != nil {
		g.Go(func() error {
			return ignoreCancel(deps.Archiver.Run(ctx))
		})
	}

	// Orders left in the active cache by a previous run lost their queue jobs
	// with the process; re-admit them so they finish.
	if err := a.recoverActive(ctx, deps); err != nil {
		a.logger.WarnContext(ctx, "active order recovery failed",
			slog.String("error", err.Error()),
		)
	}

	return g.Wait()
}

// recoverActive re-enqueues every non-terminal order found in the active
// cache. Terminal leftovers are evicted instead.
func (a *App) recoverActive(ctx context.Context, deps *Dependencies) error {
	ids, err := deps.Cache.ListActiveIDs(ctx)
	if err != nil {
		return err
	}

	recovered := 0
	for _, id := range ids {
		o, err := deps.Cache.Get(ctx, id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue // entry expired, set membership is stale
			}
			return err
		}
		if o.Status.Terminal() {
			if err := deps.Cache.Remove(ctx, id); err != nil {
				a.logger.WarnContext(ctx, "evicting stale terminal order failed",
					slog.String("order_id", id),
					slog.String("error", err.Error()),
				)
			}
			continue
		}
		if err := deps.Queue.Enqueue(ctx, o); err != nil && !errors.Is(err, domain.ErrJobExists) {
			return err
		}
		recovered++
	}

	if recovered > 0 {
		a.logger.InfoContext(ctx, "recovered active orders",
			slog.Int("count", recovered),
		)
	}
	return nil
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// ignoreCancel maps context cancellation to a clean exit so an orderly
// shutdown does not surface as an error from the supervisor group.
func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
