package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"transit-ticketing/internal/domain/ticket"

	"github.com/redis/go-redis/v9"
)

// TicketCache keeps short-lived copies of ticket documents for read-heavy lookups.
// The store stays the source of truth; a nil *TicketCache is a valid no-op cache.
type TicketCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewTicketCache(client redis.Cmdable, ttl time.Duration) *TicketCache {
	return &TicketCache{client: client, ttl: ttl}
}

func TicketKey(id string) string {
	return fmt.Sprintf("ticket:%s", id)
}

// Get returns (nil, nil) on a miss.
func (c *TicketCache) Get(ctx context.Context, id string) (*ticket.Ticket, error) {
	if c == nil {
		return nil, nil
	}
	val, err := c.client.Get(ctx, TicketKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get cached ticket: %w", err)
	}

	var t ticket.Ticket
	if err := json.Unmarshal(val, &t); err != nil {
		return nil, fmt.Errorf("decode cached ticket: %w", err)
	}
	return &t, nil
}

func (c *TicketCache) Set(ctx context.Context, t *ticket.Ticket) error {
	if c == nil {
		return nil
	}
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode ticket: %w", err)
	}
	if err := c.client.Set(ctx, TicketKey(t.ID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache ticket: %w", err)
	}
	return nil
}

func (c *TicketCache) Invalidate(ctx context.Context, id string) error {
	if c == nil {
		return nil
	}
	if err := c.client.Del(ctx, TicketKey(id)).Err(); err != nil {
		return fmt.Errorf("invalidate ticket: %w", err)
	}
	return nil
}
