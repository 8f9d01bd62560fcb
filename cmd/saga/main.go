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
	"transit-ticketing/internal/infrastructure/kafka"
	"transit-ticketing/internal/saga"

	"golang.org/x/sync/errgroup"
)

const groupID = "ticket-saga"

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

	store, txManager, err := infraFactory.TicketStore(ctx)
	if err != nil {
		logger.Error("failed to open ticket store", "error", err)
		os.Exit(1)
	}
	publisher, err := infraFactory.Publisher(ctx)
	if err != nil {
		logger.Error("failed to build publisher", "error", err)
		os.Exit(1)
	}

	orchestrator := saga.NewOrchestrator(txManager, store, publisher, infraFactory.TicketCache(ctx), logger)
	consumer := infraFactory.Consumer(groupID, saga.Topics())
	defer consumer.Close()

	logger.Info("Saga orchestrator started", "topics", saga.Topics(), "bus_mode", cfg.Bus.Mode)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return lifecycle.ServeMetrics(ctx, cfg.HTTP.MetricsPort, logger)
	})
	g.Go(func() error {
		return consumer.Run(ctx, kafka.HandleValue(orchestrator.Handle))
	})

	if err := g.Wait(); err != nil {
		logger.Error("saga stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("saga exited")
}
