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
	"transit-ticketing/internal/infrastructure/postgres"
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

	pgPool, err := infraFactory.Postgres(ctx)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}

	outboxRepo := postgres.NewOutboxRepository(pgPool)
	// Rows a crashed relay left claimed would otherwise never ship. This
	// assumes a single relay instance.
	if n, err := outboxRepo.ResetStuck(ctx); err != nil {
		logger.Error("failed to reset stuck outbox events", "error", err)
		os.Exit(1)
	} else if n > 0 {
		logger.Warn("Reset stuck outbox events", "count", n)
	}

	poller := worker.NewOutboxPoller(outboxRepo, infraFactory.KafkaProducer(), cfg.Relay.BatchSize, logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return lifecycle.ServeMetrics(ctx, cfg.HTTP.MetricsPort, logger)
	})
	g.Go(func() error {
		worker.RunEvery(ctx, "outbox-relay", cfg.Relay.Interval, logger, poller.ProcessBatch)
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("relay stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("relay exited")
}
