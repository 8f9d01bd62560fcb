package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"transit-ticketing/internal/domain/ticket"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const ticketColumns = `id, user_id, route_id, fare_class, status, expiry, remaining_uses, validations, created_at, updated_at`

// TicketRepository is the Postgres ticket store. Conditional updates are a
// single UPDATE statement, so row locking gives per-ticket linearizability.
type TicketRepository struct {
	pool *pgxpool.Pool
}

func NewTicketRepository(pool *pgxpool.Pool) *TicketRepository {
	return &TicketRepository{pool: pool}
}

func (r *TicketRepository) Insert(ctx context.Context, t *ticket.Ticket) error {
	const sql = `
		INSERT INTO tickets (` + ticketColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`

	validations, err := json.Marshal(nonNil(t.Validations))
	if err != nil {
		return fmt.Errorf("marshal validations: %w", err)
	}

	tag, err := executor(ctx, r.pool).Exec(ctx, sql,
		t.ID, t.UserID, t.RouteID, string(t.FareClass), string(t.Status), t.Expiry,
		t.RemainingUses, validations, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert ticket: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ticket.ErrDuplicateKey
	}

	return nil
}

func (r *TicketRepository) FindByID(ctx context.Context, id string) (*ticket.Ticket, error) {
	const sql = `SELECT ` + ticketColumns + ` FROM tickets WHERE id = $1`

	t, err := scanTicket(executor(ctx, r.pool).QueryRow(ctx, sql, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ticket.ErrNotFound
		}
		return nil, fmt.Errorf("get ticket by id: %w", err)
	}
	return t, nil
}

func (r *TicketRepository) FindExpired(ctx context.Context, now time.Time, limit int) ([]*ticket.Ticket, error) {
	const sql = `
		SELECT ` + ticketColumns + `
		FROM tickets
		WHERE status IN ('PAID', 'VALIDATED')
		  AND expiry IS NOT NULL
		  AND expiry < $1
		ORDER BY expiry ASC
		LIMIT $2
	`

	rows, err := executor(ctx, r.pool).Query(ctx, sql, now, limit)
	if err != nil {
		return nil, fmt.Errorf("query expired tickets: %w", err)
	}
	defer rows.Close()

	var tickets []*ticket.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ticket: %w", err)
		}
		tickets = append(tickets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expired tickets: %w", err)
	}

	return tickets, nil
}

func (r *TicketRepository) ConditionalUpdate(ctx context.Context, id string, pre ticket.Precondition, m ticket.Mutation) (*ticket.Ticket, error) {
	const sql = `
		UPDATE tickets
		SET status = COALESCE($3::text, status),
		    remaining_uses = CASE WHEN $4::boolean THEN remaining_uses - 1 ELSE remaining_uses END,
		    expiry = COALESCE(expiry, $5::timestamptz),
		    validations = (CASE WHEN $6::boolean THEN '[]'::jsonb ELSE validations END) || COALESCE($7::jsonb, '[]'::jsonb),
		    updated_at = $8
		WHERE id = $1
		  AND status = ANY($2::text[])
		  AND ($9::timestamptz IS NULL OR expiry IS NULL OR expiry > $9::timestamptz)
		  AND (NOT $4::boolean OR remaining_uses > 0)
		RETURNING ` + ticketColumns

	statuses := make([]string, len(pre.Statuses))
	for i, s := range pre.Statuses {
		statuses[i] = string(s)
	}

	var status *string
	if m.Status != nil {
		s := string(*m.Status)
		status = &s
	}

	var appended []byte
	if m.AppendValidation != nil {
		b, err := json.Marshal([]ticket.Validation{*m.AppendValidation})
		if err != nil {
			return nil, fmt.Errorf("marshal validation: %w", err)
		}
		appended = b
	}

	var notExpiredAt *time.Time
	if !pre.NotExpiredAt.IsZero() {
		notExpiredAt = &pre.NotExpiredAt
	}

	q := executor(ctx, r.pool)
	t, err := scanTicket(q.QueryRow(ctx, sql,
		id, statuses, status, m.DecrementUses, m.SetExpiryIfUnset,
		m.ClearValidations, appended, m.UpdatedAt, notExpiredAt))
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("conditional update ticket: %w", err)
	}

	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tickets WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check ticket exists: %w", err)
	}
	if !exists {
		return nil, ticket.ErrNotFound
	}
	return nil, ticket.ErrPreconditionFailed
}

// ListRecent is used by operator tooling.
func (r *TicketRepository) ListRecent(ctx context.Context, limit int) ([]*ticket.Ticket, error) {
	const sql = `SELECT ` + ticketColumns + ` FROM tickets ORDER BY updated_at DESC LIMIT $1`

	rows, err := executor(ctx, r.pool).Query(ctx, sql, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent tickets: %w", err)
	}
	defer rows.Close()

	var tickets []*ticket.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ticket: %w", err)
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

func scanTicket(row pgx.Row) (*ticket.Ticket, error) {
	var (
		t           ticket.Ticket
		fare        string
		status      string
		validations []byte
	)
	if err := row.Scan(
		&t.ID, &t.UserID, &t.RouteID, &fare, &status, &t.Expiry,
		&t.RemainingUses, &validations, &t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return nil, err
	}
	t.FareClass = ticket.FareClass(fare)
	t.Status = ticket.Status(status)
	if err := json.Unmarshal(validations, &t.Validations); err != nil {
		return nil, fmt.Errorf("unmarshal validations: %w", err)
	}
	t.Validations = nonNil(t.Validations)
	return &t, nil
}

func nonNil(v []ticket.Validation) []ticket.Validation {
	if v == nil {
		return []ticket.Validation{}
	}
	return v
}
