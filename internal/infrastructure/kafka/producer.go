package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"transit-ticketing/internal/domain/event"

	"github.com/segmentio/kafka-go"
)

// ErrPublishFailed is returned once the writer has used up its attempts.
var ErrPublishFailed = errors.New("publish failed")

type Config struct {
	Brokers      []string
	MaxAttempts  int
	WriteTimeout time.Duration
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	writer messageWriter
}

func NewProducer(cfg Config) *Producer {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	// Topic is left unset so each message names its own. Hash keeps every
	// message with the same key on one partition.
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		MaxAttempts:            cfg.MaxAttempts,
		RequiredAcks:           kafka.RequireAll,
		ReadTimeout:            10 * time.Second,
		WriteTimeout:           cfg.WriteTimeout,
		Async:                  false,
		AllowAutoTopicCreation: true,
	}

	return &Producer{writer: w}
}

// Publish blocks until the message is acknowledged or the retry budget is spent.
func (p *Producer) Publish(ctx context.Context, topic, key string, msg event.Message) error {
	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", msg.Type, err)
	}
	return p.SendMessage(ctx, kafka.Message{Topic: topic, Key: []byte(key), Value: value})
}

func (p *Producer) SendMessage(ctx context.Context, msg kafka.Message) error {
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		publishFailures.WithLabelValues(msg.Topic).Inc()
		return fmt.Errorf("%w: topic %s: %v", ErrPublishFailed, msg.Topic, err)
	}
	messagesPublished.WithLabelValues(msg.Topic).Inc()
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
