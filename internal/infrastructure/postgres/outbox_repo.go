package postgres

import (
	"context"
	"fmt"

	"transit-ticketing/internal/domain/outbox"

	"github.com/jackc/pgx/v5/pgxpool"
)

const outboxColumns = `
	id,
	topic,
	partition_key,
	event_type,
	payload,
	status,
	COALESCE(correlation_id, ''),
	COALESCE(causation_id, ''),
	COALESCE(producer, 'unknown'),
	created_at,
	updated_at`

type OutboxRepository struct {
	pool *pgxpool.Pool
}

func NewOutboxRepository(pool *pgxpool.Pool) *OutboxRepository {
	return &OutboxRepository{pool: pool}
}

func (r *OutboxRepository) Create(ctx context.Context, e *outbox.Event) error {
	const sql = `
		INSERT INTO outbox (id, topic, partition_key, event_type, payload, status, correlation_id, causation_id, producer, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
	`

	_, err := executor(ctx, r.pool).Exec(ctx, sql,
		e.ID, e.Topic, e.PartitionKey, e.EventType, e.Payload, e.Status,
		nullIfEmpty(e.CorrelationID), nullIfEmpty(e.CausationID), nullIfEmptyDefault(e.Producer, "unknown"), e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}

	return nil
}

// FetchBatch claims up to limit new events. SKIP LOCKED lets several relays run side by side.
func (r *OutboxRepository) FetchBatch(ctx context.Context, limit int) ([]*outbox.Event, error) {
	const sql = `
		WITH claimed_events AS (
			SELECT id
			FROM outbox
			WHERE status = 'new'
			ORDER BY created_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE outbox
		SET status = 'processing', updated_at = NOW()
		WHERE id IN (SELECT id FROM claimed_events)
		RETURNING` + outboxColumns

	return r.query(ctx, sql, limit)
}

func (r *OutboxRepository) MarkProcessed(ctx context.Context, ids []string) error {
	const sql = `
		UPDATE outbox
		SET status = 'processed', updated_at = NOW()
		WHERE id = ANY($1)
	`
	if _, err := r.pool.Exec(ctx, sql, ids); err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	return nil
}

func (r *OutboxRepository) MarkFailed(ctx context.Context, ids []string) error {
	const sql = `
		UPDATE outbox
		SET status = 'new', updated_at = NOW()
		WHERE id = ANY($1)
	`
	if _, err := r.pool.Exec(ctx, sql, ids); err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// ResetStuck returns events left in processing by a crashed relay to new.
func (r *OutboxRepository) ResetStuck(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE outbox SET status = 'new', updated_at = NOW() WHERE status = 'processing'`)
	if err != nil {
		return 0, fmt.Errorf("reset stuck outbox events: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *OutboxRepository) ListByCorrelationID(ctx context.Context, correlationID string) ([]*outbox.Event, error) {
	const sql = `
		SELECT` + outboxColumns + `
		FROM outbox
		WHERE correlation_id = $1
		ORDER BY created_at ASC
	`
	return r.query(ctx, sql, nullIfEmpty(correlationID))
}

func (r *OutboxRepository) query(ctx context.Context, sql string, args ...any) ([]*outbox.Event, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	var events []*outbox.Event
	for rows.Next() {
		e := &outbox.Event{}
		if err := rows.Scan(&e.ID, &e.Topic, &e.PartitionKey, &e.EventType, &e.Payload, &e.Status,
			&e.CorrelationID, &e.CausationID, &e.Producer, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		events = append(events, e)
	}

	return events, rows.Err()
}
