package postgres

import (
	"context"
	"errors"
	"fmt"

	"transit-ticketing/internal/domain/payment"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PaymentRepository struct {
	pool *pgxpool.Pool
}

func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

// Create stores p unless the ticket already has a payment. It reports whether p was stored.
func (r *PaymentRepository) Create(ctx context.Context, p *payment.Payment) (bool, error) {
	const sql = `
		INSERT INTO payments (id, ticket_id, user_id, status, amount, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (ticket_id) DO NOTHING
	`

	tag, err := executor(ctx, r.pool).Exec(ctx, sql, p.ID, p.TicketID, p.UserID, p.Status, p.Amount, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("insert payment: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

func (r *PaymentRepository) GetByTicketID(ctx context.Context, ticketID string) (*payment.Payment, error) {
	const sql = `
		SELECT id, ticket_id, user_id, status, amount, created_at, updated_at
		FROM payments
		WHERE ticket_id = $1
	`

	var p payment.Payment
	err := executor(ctx, r.pool).QueryRow(ctx, sql, ticketID).Scan(&p.ID, &p.TicketID, &p.UserID, &p.Status, &p.Amount, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get payment by ticket_id: %w", err)
	}
	return &p, nil
}
