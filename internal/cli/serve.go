package cli

import (
	"context"
	"errors"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"aaronromeo.com/inboxsweep/handlers"
	"aaronromeo.com/inboxsweep/internal/connectivity"
	"aaronromeo.com/inboxsweep/pkg/utils"
	"github.com/urfave/cli/v2"
)

const shutdownTimeout = 10 * time.Second

func (r *runner) serve(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := r.loadConfig(c)
	if err != nil {
		return err
	}

	if cfg.Telemetry.Enabled {
		shutdown, err := utils.SetupOTelSDK(ctx, utils.OTelConfig{
			StdoutLogs: cfg.Telemetry.Logger == "stdout",
			LogWriter:  c.App.ErrWriter,
		})
		if err != nil {
			return err
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = shutdown(sctx)
		}()
	}
	logger := r.logger(c, cfg.Telemetry.Enabled)

	g, err := r.build(c, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := g.Close(); err != nil {
			logger.Warn("closing components", slog.Any("error", err))
		}
	}()

	if n, err := g.Coordinator.Refresh(ctx, cfg.Provider.InboxLimit); err != nil {
		logger.WarnContext(ctx, "initial inbox load failed", slog.Any("error", err))
	} else {
		logger.InfoContext(ctx, "inbox loaded", slog.Int("items", n))
	}

	connectivity.SyncOnRestore(g.Watcher, g.Queue, g.Announcer, logger)
	go func() {
		if err := g.Watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("connectivity watcher stopped", slog.Any("error", err))
		}
	}()
	go connectivity.ListenSignals(ctx, g.Watcher, logger)
	// Replay anything left over from a previous run.
	g.Watcher.Report(ctx, connectivity.Visible)

	app := handlers.New(handlers.Deps{
		Coordinator: g.Coordinator,
		Queue:       g.Queue,
		Scheduler:   g.Scheduler,
		Watcher:     g.Watcher,
		Logger:      logger,
		InboxLimit:  cfg.Provider.InboxLimit,
	})

	errCh := make(chan error, 1)
	go func() {
		logger.InfoContext(ctx, "listening", slog.String("addr", cfg.HTTP.Addr))
		errCh <- app.Listen(cfg.HTTP.Addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return app.ShutdownWithContext(sctx)
}
