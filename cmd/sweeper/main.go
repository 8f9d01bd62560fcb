package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"transit-ticketing/internal/application/factories/infrastructure"
	"transit-ticketing/internal/application/lifecycle"
	"transit-ticketing/internal/config"
	"transit-ticketing/internal/worker"

	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := lifecycle.NewLogger(cfg.Log.Level)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	infraFactory := infrastructure.NewFactory(cfg, logger)
	defer infraFactory.Close()

	store, _, err := infraFactory.TicketStore(ctx)
	if err != nil {
		logger.Error("failed to open ticket store", "error", err)
		os.Exit(1)
	}

	sweeper := worker.NewSweeper(store, cfg.Sweeper.BatchSize, logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return lifecycle.ServeMetrics(ctx, cfg.HTTP.MetricsPort, logger)
	})
	g.Go(func() error {
		if err := sweeper.Run(ctx); err != nil {
			logger.Error("initial sweep failed", "error", err)
		}
		worker.RunEvery(ctx, "expiry-sweeper", cfg.Sweeper.Interval, logger, sweeper.Run)
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("sweeper stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("sweeper exited")
}
