package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	TopicTicketRequests  = "ticket.requests"
	TopicPaymentRequired = "ticket.payment-required"
	TopicPaymentsDone    = "payments.processed"
	TopicTicketValidated = "ticket.validated"
	TopicNotifications   = "notifications.send"
)

// DeadLetterTopic is where messages that cannot be handled on topic are parked.
func DeadLetterTopic(topic string) string {
	return topic + ".dlq"
}

// Message is the envelope published to Kafka.
// Payload is kept as raw JSON produced by the originating service.
type Message struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	CorrelationID string          `json:"correlation_id"`
	CausationID   string          `json:"causation_id,omitempty"`
	Producer      string          `json:"producer"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Payload       json.RawMessage `json:"payload"`
}

// Payload is implemented by every typed event body.
type Payload interface {
	EventType() string
	Validate() error
}

// New wraps p into an envelope. correlationID ties together all events of one ticket.
func New(p Payload, correlationID, causationID, producer string) (Message, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return Message{}, fmt.Errorf("marshal %s payload: %w", p.EventType(), err)
	}
	return Message{
		ID:            uuid.New().String(),
		Type:          p.EventType(),
		CorrelationID: correlationID,
		CausationID:   causationID,
		Producer:      producer,
		OccurredAt:    time.Now().UTC(),
		Payload:       raw,
	}, nil
}

// Publisher delivers msg to topic; messages sharing key keep their relative order.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, msg Message) error
}
