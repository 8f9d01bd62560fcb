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
	"transit-ticketing/internal/infrastructure/postgres"
	"transit-ticketing/internal/payment"

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
	publisher, err := infraFactory.Publisher(ctx)
	if err != nil {
		logger.Error("failed to build publisher", "error", err)
		os.Exit(1)
	}

	processor := payment.NewProcessor(
		postgres.NewTxManager(pgPool),
		postgres.NewInboxRepository(pgPool),
		postgres.NewPaymentRepository(pgPool),
		publisher,
		logger,
	)
	consumer := infraFactory.Consumer(payment.ConsumerName, payment.Topics())
	defer consumer.Close()

	logger.Info("Payment Service Started", "consumer", payment.ConsumerName)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return lifecycle.ServeMetrics(ctx, cfg.HTTP.MetricsPort, logger)
	})
	g.Go(func() error {
		return consumer.Run(ctx, kafka.HandleValue(processor.Handle))
	})

	if err := g.Wait(); err != nil {
		logger.Error("payment service stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("payment service exited")
}
