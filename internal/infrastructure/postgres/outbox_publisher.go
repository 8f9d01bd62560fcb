package postgres

import (
	"context"
	"time"

	"transit-ticketing/internal/domain/event"
	"transit-ticketing/internal/domain/outbox"
)

// OutboxPublisher satisfies the bus publish contract by writing the message to
// the outbox in the caller's transaction. The relay ships it to Kafka later.
type OutboxPublisher struct {
	repo *OutboxRepository
}

func NewOutboxPublisher(repo *OutboxRepository) *OutboxPublisher {
	return &OutboxPublisher{repo: repo}
}

func (p *OutboxPublisher) Publish(ctx context.Context, topic, key string, msg event.Message) error {
	return p.repo.Create(ctx, &outbox.Event{
		ID:            msg.ID,
		Topic:         topic,
		PartitionKey:  key,
		EventType:     msg.Type,
		Payload:       msg.Payload,
		Status:        outbox.StatusNew,
		CorrelationID: msg.CorrelationID,
		CausationID:   msg.CausationID,
		Producer:      msg.Producer,
		CreatedAt:     time.Now(),
	})
}
