package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"transit-ticketing/internal/domain/ticket"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var lazyExpirations = promauto.NewCounter(prometheus.CounterOpts{
	Name: "ticket_lazy_expirations_total",
	Help: "Tickets expired on read or validation instead of by the sweeper",
})

// expire applies the same terminal transition as the sweeper. It returns the
// current document whether this call expired it or someone else already had.
func expire(ctx context.Context, store ticket.Store, id string, now time.Time) (*ticket.Ticket, error) {
	t, err := store.ConditionalUpdate(ctx, id, ticket.Precondition{Statuses: ticket.Active}, ticket.Expire(now))
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, ticket.ErrPreconditionFailed) {
		return nil, fmt.Errorf("expire ticket: %w", err)
	}

	t, err = store.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("reload ticket: %w", err)
	}
	return t, nil
}
