package postgres

import (
	"context"
	"errors"
	"testing"

	"transit-ticketing/internal/domain/event"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInboxRepository_ClaimOnce(t *testing.T) {
	pool := testPool(t)
	repo := NewInboxRepository(pool)
	ctx := context.Background()

	msg, err := event.New(event.PaymentRequired{TicketID: "t-1"}, "t-1", "", "test")
	require.NoError(t, err)

	first, err := repo.Claim(ctx, "payment-service", msg, "t-1")
	require.NoError(t, err)
	assert.True(t, first)

	again, err := repo.Claim(ctx, "payment-service", msg, "t-1")
	require.NoError(t, err)
	assert.False(t, again, "the same envelope is a replay")

	other, err := repo.Claim(ctx, "audit", msg, "t-1")
	require.NoError(t, err)
	assert.True(t, other, "claims are per consumer")

	events, err := repo.ListByTicket(ctx, "t-1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, msg.ID, events[0].EventID)
	assert.Equal(t, event.TypePaymentRequired, events[0].EventType)
	assert.Equal(t, "t-1", events[0].TicketID)
}

func TestInboxRepository_RollbackReleasesClaim(t *testing.T) {
	pool := testPool(t)
	repo := NewInboxRepository(pool)
	tx := NewTxManager(pool)
	ctx := context.Background()

	msg, err := event.New(event.PaymentRequired{TicketID: "t-2"}, "t-2", "", "test")
	require.NoError(t, err)

	boom := errors.New("charge failed")
	err = tx.WithinTransaction(ctx, func(ctx context.Context) error {
		claimed, err := repo.Claim(ctx, "payment-service", msg, "t-2")
		require.NoError(t, err)
		require.True(t, claimed)
		return boom
	})
	require.ErrorIs(t, err, boom)

	claimed, err := repo.Claim(ctx, "payment-service", msg, "t-2")
	require.NoError(t, err)
	assert.True(t, claimed, "the redelivery gets another go")
}

func TestInboxRepository_RejectsEnvelopeWithoutID(t *testing.T) {
	repo := NewInboxRepository(testPool(t))

	_, err := repo.Claim(context.Background(), "payment-service", event.Message{Type: event.TypePaymentRequired}, "t-3")
	assert.ErrorIs(t, err, event.ErrMalformed)
}
