package worker_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"transit-ticketing/internal/domain/event"
	"transit-ticketing/internal/domain/ticket"
	"transit-ticketing/internal/infrastructure/memory"
	"transit-ticketing/internal/saga"
	"transit-ticketing/internal/usecase"
	"transit-ticketing/internal/worker"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// loopback hands published messages straight back to the saga, standing in
// for the broker.
type loopback struct {
	mu   sync.Mutex
	sent map[string][][]byte
}

func (l *loopback) Publish(_ context.Context, topic, _ string, msg event.Message) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sent == nil {
		l.sent = make(map[string][][]byte)
	}
	l.sent[topic] = append(l.sent[topic], b)
	return nil
}

func (l *loopback) last(t *testing.T, topic string) []byte {
	t.Helper()
	l.mu.Lock()
	defer l.mu.Unlock()
	require.NotEmpty(t, l.sent[topic], "nothing published on %s", topic)
	return l.sent[topic][len(l.sent[topic])-1]
}

func TestTicketLifecycle(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewTicketStore()
	bus := &loopback{}

	orchestrator := saga.NewOrchestrator(memory.Transactor{}, store, bus, nil, logger)
	request := usecase.NewRequestTicket(bus)
	durations := ticket.Durations{Single: 20 * time.Millisecond, Multi: time.Hour, Pass: time.Hour}
	validate := usecase.NewValidateTicket(memory.Transactor{}, store, bus, nil, durations, 0, logger)
	sweeper := worker.NewSweeper(store, 0, logger)

	id, err := request.Execute(ctx, usecase.RequestTicketParams{
		UserID: "rider-7", RouteID: "line-3", FareClass: "single", Amount: decimal.RequireFromString("2.80"),
	})
	require.NoError(t, err)

	require.NoError(t, orchestrator.Handle(ctx, event.TopicTicketRequests, bus.last(t, event.TopicTicketRequests)))
	tk, err := store.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, ticket.StatusCreated, tk.Status)

	_, p, err := event.Decode(event.TopicPaymentRequired, bus.last(t, event.TopicPaymentRequired))
	require.NoError(t, err)
	required := p.(*event.PaymentRequired)
	assert.Equal(t, id, required.TicketID)

	processed, err := event.New(event.PaymentProcessed{TicketID: id, PaymentID: "pay-1", Status: event.PaymentSuccess}, id, "", "test")
	require.NoError(t, err)
	raw, err := json.Marshal(processed)
	require.NoError(t, err)
	require.NoError(t, orchestrator.Handle(ctx, event.TopicPaymentsDone, raw))

	res, err := validate.Execute(ctx, id, "bus-101")
	require.NoError(t, err)
	assert.Equal(t, ticket.StatusValidated, res.Status)
	require.NotNil(t, res.Expiry)

	time.Sleep(40 * time.Millisecond)
	swept, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, swept.Expired)

	tk, err = store.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, ticket.StatusExpired, tk.Status)
	assert.Empty(t, tk.Validations)

	_, err = validate.Execute(ctx, id, "bus-101")
	assert.ErrorIs(t, err, ticket.ErrNotEligible)
}
