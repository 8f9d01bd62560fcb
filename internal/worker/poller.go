package worker

import (
	"context"
	"log/slog"
	"time"

	"transit-ticketing/internal/domain/event"
	"transit-ticketing/internal/domain/outbox"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsRelayed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_outbox_events_published_total",
		Help: "The total number of outbox events published to Kafka",
	})
	relayErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_outbox_publish_errors_total",
		Help: "The total number of failed outbox publish attempts",
	})
)

type outboxSource interface {
	FetchBatch(ctx context.Context, limit int) ([]*outbox.Event, error)
	MarkProcessed(ctx context.Context, ids []string) error
	MarkFailed(ctx context.Context, ids []string) error
}

// OutboxPoller ships committed outbox rows to the bus.
type OutboxPoller struct {
	outboxRepo  outboxSource
	publisher   event.Publisher
	batchSize   int
	sendTimeout time.Duration
	logger      *slog.Logger
}

func NewOutboxPoller(outboxRepo outboxSource, publisher event.Publisher, batchSize int, logger *slog.Logger) *OutboxPoller {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &OutboxPoller{
		outboxRepo:  outboxRepo,
		publisher:   publisher,
		batchSize:   batchSize,
		sendTimeout: 5 * time.Second,
		logger:      logger,
	}
}

// ProcessBatch claims one batch and publishes it in created_at order. Rows that
// fail go back to new and are picked up by a later cycle. Once a key fails, its
// later rows in the batch are held back with it so they cannot overtake it.
func (p *OutboxPoller) ProcessBatch(ctx context.Context) error {
	events, err := p.outboxRepo.FetchBatch(ctx, p.batchSize)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	var processedIDs []string
	var failedIDs []string
	blocked := make(map[string]bool)

	for _, e := range events {
		key := e.PartitionKey
		if key == "" {
			key = e.CorrelationID
		}
		if blocked[key] {
			failedIDs = append(failedIDs, e.ID)
			continue
		}

		msg := event.Message{
			ID:            e.ID,
			Type:          e.EventType,
			CorrelationID: e.CorrelationID,
			CausationID:   e.CausationID,
			Producer:      e.Producer,
			OccurredAt:    e.CreatedAt.UTC(),
			Payload:       e.Payload,
		}

		sendCtx, cancel := context.WithTimeout(ctx, p.sendTimeout)
		err := p.publisher.Publish(sendCtx, e.Topic, key, msg)
		cancel()

		if err != nil {
			p.logger.Error("failed to relay outbox event", "event_id", e.ID, "topic", e.Topic, "error", err)
			relayErrors.Inc()
			failedIDs = append(failedIDs, e.ID)
			blocked[key] = true
			continue
		}

		eventsRelayed.Inc()
		processedIDs = append(processedIDs, e.ID)
	}

	if len(processedIDs) > 0 {
		if err := p.outboxRepo.MarkProcessed(ctx, processedIDs); err != nil {
			return err
		}
		p.logger.Debug("Relayed outbox events", "count", len(processedIDs))
	}

	if len(failedIDs) > 0 {
		if err := p.outboxRepo.MarkFailed(ctx, failedIDs); err != nil {
			p.logger.Error("failed to mark outbox events as failed", "count", len(failedIDs), "error", err)
		}
	}

	return nil
}
