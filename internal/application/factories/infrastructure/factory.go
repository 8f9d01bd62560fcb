package infrastructure

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"transit-ticketing/internal/config"
	"transit-ticketing/internal/domain/event"
	"transit-ticketing/internal/domain/ticket"
	"transit-ticketing/internal/infrastructure/kafka"
	"transit-ticketing/internal/infrastructure/postgres"
	"transit-ticketing/internal/infrastructure/redis"

	pgxpool "github.com/jackc/pgx/v5/pgxpool"
	go_redis "github.com/redis/go-redis/v9"
)

// Factory builds the shared infrastructure once per process and closes it on exit.
type Factory struct {
	cfg      *config.Config
	logger   *slog.Logger
	pgPool   *pgxpool.Pool
	redisCli *go_redis.Client
	redisErr error
	producer *kafka.Producer
}

func NewFactory(cfg *config.Config, logger *slog.Logger) *Factory {
	return &Factory{
		cfg:    cfg,
		logger: logger,
	}
}

func (f *Factory) Config() *config.Config {
	return f.cfg
}

// Postgres connects with retries and applies the schema.
func (f *Factory) Postgres(ctx context.Context) (*pgxpool.Pool, error) {
	if f.pgPool != nil {
		return f.pgPool, nil
	}

	var pool *pgxpool.Pool
	var err error

	for i := 0; i < 5; i++ {
		pool, err = postgres.NewClient(ctx, postgres.Config{
			Host:     f.cfg.Postgres.Host,
			Port:     f.cfg.Postgres.Port,
			User:     f.cfg.Postgres.User,
			Password: f.cfg.Postgres.Password,
			DBName:   f.cfg.Postgres.DBName,
			MaxConns: f.cfg.Postgres.MaxConns,
		})
		if err == nil {
			break
		}
		f.logger.Warn("Failed to connect to postgres, retrying", "attempt", i+1, "max", 5, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to init postgres after retries: %w", err)
	}

	if err := postgres.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	f.pgPool = pool
	return pool, nil
}

func (f *Factory) Redis(ctx context.Context) (*go_redis.Client, error) {
	if f.redisCli != nil || f.redisErr != nil {
		return f.redisCli, f.redisErr
	}

	client, err := redis.NewClient(ctx, redis.Config{
		Addr:     f.cfg.Redis.Addr,
		Password: f.cfg.Redis.Password,
		DB:       f.cfg.Redis.DB,
		Timeout:  f.cfg.Redis.Timeout,
	})
	if err != nil {
		// A failed connect is kept for the life of the process.
		f.redisErr = fmt.Errorf("failed to init redis: %w", err)
		return nil, f.redisErr
	}

	f.redisCli = client
	return client, nil
}

// TicketCache is nil, which disables caching, when redis is unreachable.
func (f *Factory) TicketCache(ctx context.Context) *redis.TicketCache {
	client, err := f.Redis(ctx)
	if err != nil {
		f.logger.Warn("Ticket cache disabled", "error", err)
		return nil
	}
	return redis.NewTicketCache(client, f.cfg.Redis.CacheTTL)
}

func (f *Factory) KafkaProducer() *kafka.Producer {
	if f.producer == nil {
		f.producer = kafka.NewProducer(kafka.Config{
			Brokers:     f.cfg.Kafka.Brokers,
			MaxAttempts: f.cfg.Kafka.MaxAttempts,
		})
	}
	return f.producer
}

// Consumer joins groupID on topics. Dead letters go out through the shared producer.
func (f *Factory) Consumer(groupID string, topics []string) *kafka.Consumer {
	if f.cfg.Kafka.GroupID != "" {
		groupID = f.cfg.Kafka.GroupID
	}
	return kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers:     f.cfg.Kafka.Brokers,
		Topics:      topics,
		GroupID:     groupID,
		StartOffset: f.cfg.Kafka.StartOffset,
		Backoff:     f.cfg.Kafka.Backoff,
		MaxBackoff:  f.cfg.Kafka.MaxBackoff,
	}, f.KafkaProducer(), f.logger)
}

// TicketStore returns the Postgres ticket store with its transactor.
func (f *Factory) TicketStore(ctx context.Context) (ticket.Store, postgres.Transactor, error) {
	pool, err := f.Postgres(ctx)
	if err != nil {
		return nil, nil, err
	}
	return postgres.NewTicketRepository(pool), postgres.NewTxManager(pool), nil
}

// Publisher returns the outbox publisher or the Kafka producer, depending on bus.mode.
func (f *Factory) Publisher(ctx context.Context) (event.Publisher, error) {
	if f.cfg.Bus.Mode == config.BusDirect {
		return f.KafkaProducer(), nil
	}

	pool, err := f.Postgres(ctx)
	if err != nil {
		return nil, err
	}
	return postgres.NewOutboxPublisher(postgres.NewOutboxRepository(pool)), nil
}

func (f *Factory) Durations() ticket.Durations {
	return ticket.Durations{
		Single: f.cfg.Fares.Single,
		Multi:  f.cfg.Fares.Multi,
		Pass:   f.cfg.Fares.Pass,
	}
}

func (f *Factory) Close() {
	if f.producer != nil {
		if err := f.producer.Close(); err != nil {
			f.logger.Error("failed to close kafka producer", "error", err)
		}
	}
	if f.pgPool != nil {
		f.pgPool.Close()
	}
	if f.redisCli != nil {
		f.redisCli.Close()
	}
}
