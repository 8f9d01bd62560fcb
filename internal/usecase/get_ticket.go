package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"transit-ticketing/internal/domain/ticket"
	"transit-ticketing/internal/infrastructure/redis"
)

type GetTicket struct {
	store  ticket.Store
	cache  *redis.TicketCache
	logger *slog.Logger
	now    func() time.Time
}

func NewGetTicket(store ticket.Store, cache *redis.TicketCache, logger *slog.Logger) *GetTicket {
	return &GetTicket{store: store, cache: cache, logger: logger, now: time.Now}
}

// Execute returns the ticket, expiring it first if its expiry has passed and
// the sweeper has not got to it yet.
func (uc *GetTicket) Execute(ctx context.Context, ticketID string) (*ticket.Ticket, error) {
	now := uc.now()

	cached, err := uc.cache.Get(ctx, ticketID)
	if err != nil {
		uc.logger.Warn("ticket cache read failed", "ticket_id", ticketID, "error", err)
	}
	if cached != nil && !(cached.IsActive() && cached.ExpiredAt(now)) {
		return cached, nil
	}

	t, err := uc.store.FindByID(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("get ticket %s: %w", ticketID, err)
	}

	if t.IsActive() && t.ExpiredAt(now) {
		t, err = expire(ctx, uc.store, ticketID, now)
		if err != nil {
			return nil, err
		}
		lazyExpirations.Inc()
		uc.logger.Info("Ticket expired on read", "ticket_id", ticketID)
	}

	if err := uc.cache.Set(ctx, t); err != nil {
		uc.logger.Warn("ticket cache write failed", "ticket_id", ticketID, "error", err)
	}
	return t, nil
}
