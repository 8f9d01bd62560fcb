package postgres

import (
	"context"
	"fmt"

	"transit-ticketing/internal/domain/event"
	"transit-ticketing/internal/domain/inbox"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// InboxRepository remembers which bus envelopes each consumer has applied.
type InboxRepository struct {
	pool *pgxpool.Pool
}

func NewInboxRepository(pool *pgxpool.Pool) *InboxRepository {
	return &InboxRepository{pool: pool}
}

// Claim records msg as handled by consumer for ticketID. It reports false when
// the envelope was claimed before, which makes the caller's work a replay.
// It joins the transaction in ctx, so a rolled back handler releases the claim.
func (r *InboxRepository) Claim(ctx context.Context, consumer string, msg event.Message, ticketID string) (bool, error) {
	if msg.ID == "" {
		return false, fmt.Errorf("%w: envelope without id", event.ErrMalformed)
	}

	const query = `
		INSERT INTO inbox_events (consumer, event_id, event_type, ticket_id, processed_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (consumer, event_id) DO NOTHING
	`
	tag, err := executor(ctx, r.pool).Exec(ctx, query, consumer, msg.ID, msg.Type, ticketID)
	if err != nil {
		return false, fmt.Errorf("claim %s for %s: %w", msg.ID, consumer, err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListByTicket returns every claim made for ticketID, oldest first.
func (r *InboxRepository) ListByTicket(ctx context.Context, ticketID string) ([]*inbox.Event, error) {
	const query = `
		SELECT consumer, event_id, event_type, ticket_id, processed_at
		FROM inbox_events
		WHERE ticket_id = $1
		ORDER BY processed_at ASC
	`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, fmt.Errorf("query inbox events: %w", err)
	}
	events, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[inbox.Event])
	if err != nil {
		return nil, fmt.Errorf("scan inbox events: %w", err)
	}
	return events, nil
}
