package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"transit-ticketing/internal/api"
	"transit-ticketing/internal/application/factories/infrastructure"
	"transit-ticketing/internal/application/lifecycle"
	"transit-ticketing/internal/config"
	"transit-ticketing/internal/infrastructure/postgres"
	"transit-ticketing/internal/usecase"

	"github.com/redis/go-redis/v9"
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

	// Redis is optional: without it there is no idempotency and no read cache.
	var idempotencyStore redis.Cmdable
	if client, err := infraFactory.Redis(ctx); err != nil {
		logger.Warn("redis unavailable, idempotency disabled", "error", err)
	} else {
		idempotencyStore = client
	}
	cache := infraFactory.TicketCache(ctx)

	// UseCases
	requestTicketUC := usecase.NewRequestTicket(publisher)
	getTicketUC := usecase.NewGetTicket(store, cache, logger)
	validateTicketUC := usecase.NewValidateTicket(txManager, store, publisher, cache, infraFactory.Durations(), cfg.Validation.MaxAttempts, logger)
	expireTicketUC := usecase.NewExpireTicket(store, cache, logger)

	pgPool, err := infraFactory.Postgres(ctx)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	getWorkflowUC := usecase.NewGetWorkflow(
		store,
		postgres.NewOutboxRepository(pgPool),
		postgres.NewInboxRepository(pgPool),
		postgres.NewPaymentRepository(pgPool),
	)

	handlers := api.NewHandlers(requestTicketUC, getTicketUC, validateTicketUC, expireTicketUC, getWorkflowUC, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.HTTP.Port,
		Handler:           api.NewRouter(handlers, idempotencyStore, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	if err := lifecycle.Serve(ctx, srv, logger); err != nil {
		logger.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}
