package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"transit-ticketing/internal/domain/ticket"
	"transit-ticketing/internal/infrastructure/redis"
)

// ExpireTicket is the administrative override. It uses the sweeper's transition.
type ExpireTicket struct {
	store  ticket.Store
	cache  *redis.TicketCache
	logger *slog.Logger
	now    func() time.Time
}

func NewExpireTicket(store ticket.Store, cache *redis.TicketCache, logger *slog.Logger) *ExpireTicket {
	return &ExpireTicket{store: store, cache: cache, logger: logger, now: time.Now}
}

// Execute expires ticketID. Expiring an already expired ticket succeeds;
// a ticket that was never paid is not eligible.
func (uc *ExpireTicket) Execute(ctx context.Context, ticketID string) (*ticket.Ticket, error) {
	t, err := expire(ctx, uc.store, ticketID, uc.now())
	if err != nil {
		return nil, fmt.Errorf("force expire %s: %w", ticketID, err)
	}
	if t.Status != ticket.StatusExpired {
		return nil, fmt.Errorf("ticket %s is %s: %w", ticketID, t.Status, ticket.ErrNotEligible)
	}

	if err := uc.cache.Invalidate(ctx, ticketID); err != nil {
		uc.logger.Warn("failed to invalidate ticket cache", "ticket_id", ticketID, "error", err)
	}
	uc.logger.Info("Ticket force-expired", "ticket_id", ticketID)
	return t, nil
}
