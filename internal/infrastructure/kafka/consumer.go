package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"transit-ticketing/internal/domain/event"

	"github.com/segmentio/kafka-go"
)

type ConsumerConfig struct {
	Brokers []string
	Topics  []string
	GroupID string
	// StartOffset applies when the group has no committed offset: "earliest" (default) or "latest".
	StartOffset string
	// Backoff is the first retry delay. It doubles per attempt up to MaxBackoff.
	Backoff    time.Duration
	MaxBackoff time.Duration
}

// Handler processes one message. Returning nil commits it.
type Handler func(ctx context.Context, msg kafka.Message) error

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type deadLetterSender interface {
	SendMessage(ctx context.Context, msg kafka.Message) error
}

// Consumer reads its group's partitions in one sequential loop, which keeps
// per-key ordering intact.
type Consumer struct {
	reader     messageReader
	dlq        deadLetterSender
	logger     *slog.Logger
	backoff    time.Duration
	maxBackoff time.Duration
}

func NewConsumer(cfg ConsumerConfig, dlq deadLetterSender, logger *slog.Logger) *Consumer {
	startOffset := kafka.FirstOffset
	if strings.EqualFold(strings.TrimSpace(cfg.StartOffset), "latest") {
		startOffset = kafka.LastOffset
	}

	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: false,
	}

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		GroupTopics: cfg.Topics,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     1 * time.Second,
		Dialer:      dialer,
		StartOffset: startOffset,
	})

	return newConsumer(r, dlq, logger, cfg.Backoff, cfg.MaxBackoff)
}

func newConsumer(r messageReader, dlq deadLetterSender, logger *slog.Logger, backoff, maxBackoff time.Duration) *Consumer {
	if backoff <= 0 {
		backoff = time.Second
	}
	if maxBackoff < backoff {
		maxBackoff = backoff
	}
	return &Consumer{reader: r, dlq: dlq, logger: logger, backoff: backoff, maxBackoff: maxBackoff}
}

// Run blocks until ctx is cancelled. It returns an error only when a message
// could neither be handled nor dead-lettered; the message is then left
// uncommitted so the group redelivers it after restart.
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("failed to fetch message", "error", err)
			if !sleep(ctx, c.backoff) {
				return nil
			}
			continue
		}

		if err := c.process(ctx, msg, handle); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// process retries a failing handler until it succeeds or ctx is cancelled.
// Only terminal errors (event.Terminal) are dead-lettered. Anything else is
// treated as an outage and the offset stays uncommitted until it clears.
func (c *Consumer) process(ctx context.Context, msg kafka.Message, handle Handler) error {
	backoff := c.backoff
	for attempt := 1; ; attempt++ {
		err := handle(ctx, msg)
		if err == nil {
			messagesConsumed.WithLabelValues(msg.Topic).Inc()
			return c.commit(ctx, msg)
		}
		if event.Terminal(err) {
			if dlqErr := c.deadLetter(ctx, msg, err); dlqErr != nil {
				return fmt.Errorf("dead-letter %s@%d: %w", msg.Topic, msg.Offset, dlqErr)
			}
			return c.commit(ctx, msg)
		}

		handlerRetries.WithLabelValues(msg.Topic).Inc()
		c.logger.Error("Processing failed, will retry", "topic", msg.Topic, "offset", msg.Offset, "attempt", attempt, "backoff", backoff, "error", err)
		if !sleep(ctx, backoff) {
			return ctx.Err()
		}
		backoff = min(backoff*2, c.maxBackoff)
	}
}

func (c *Consumer) deadLetter(ctx context.Context, msg kafka.Message, cause error) error {
	c.logger.Error("DLQ: parking message", "topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "error", cause)

	dead := kafka.Message{
		Topic: event.DeadLetterTopic(msg.Topic),
		Key:   msg.Key,
		Value: msg.Value,
		Headers: append(append([]kafka.Header{}, msg.Headers...),
			kafka.Header{Key: "x-original-topic", Value: []byte(msg.Topic)},
			kafka.Header{Key: "x-error", Value: []byte(cause.Error())},
		),
	}
	if err := c.dlq.SendMessage(ctx, dead); err != nil {
		return err
	}
	messagesDeadLettered.WithLabelValues(msg.Topic).Inc()
	return nil
}

// commit failures only cause a redelivery, which handlers tolerate.
func (c *Consumer) commit(ctx context.Context, msg kafka.Message) error {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		c.logger.Error("failed to commit kafka message", "topic", msg.Topic, "offset", msg.Offset, "error", err)
	}
	return nil
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// HandleValue adapts a handler that needs only the topic and the payload.
func HandleValue(fn func(ctx context.Context, topic string, value []byte) error) Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		return fn(ctx, msg.Topic, msg.Value)
	}
}
