package event

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encode(t *testing.T, p Payload) []byte {
	t.Helper()
	msg, err := New(p, "corr-1", "", "test")
	require.NoError(t, err)
	b, err := json.Marshal(msg)
	require.NoError(t, err)
	return b
}

func TestDecode_TicketRequested(t *testing.T) {
	in := TicketRequested{
		UserID:      "u-1",
		RouteID:     "r-1",
		FareClass:   "multi",
		Amount:      decimal.RequireFromString("12.50"),
		RequestedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	msg, p, err := Decode(TopicTicketRequests, encode(t, in))
	require.NoError(t, err)
	assert.Equal(t, TypeTicketRequested, msg.Type)
	assert.Equal(t, "corr-1", msg.CorrelationID)

	got, ok := p.(*TicketRequested)
	require.True(t, ok)
	assert.Equal(t, in.UserID, got.UserID)
	assert.True(t, in.Amount.Equal(got.Amount))
	assert.True(t, in.RequestedAt.Equal(got.RequestedAt))
}

func TestDecode_Malformed(t *testing.T) {
	cases := map[string]struct {
		topic string
		value []byte
	}{
		"not json":       {TopicPaymentsDone, []byte("{oops")},
		"wrong type":     {TopicPaymentsDone, encode(t, PaymentRequired{TicketID: "t"})},
		"unknown topic":  {"other.topic", encode(t, PaymentRequired{TicketID: "t"})},
		"bad status":     {TopicPaymentsDone, encode(t, PaymentProcessed{TicketID: "t", Status: "pending"})},
		"missing ticket": {TopicPaymentsDone, encode(t, PaymentProcessed{Status: PaymentSuccess})},
		"bad fare": {TopicTicketRequests, encode(t, TicketRequested{
			UserID: "u", RouteID: "r", FareClass: "weekly", RequestedAt: time.Now(),
		})},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := Decode(tc.topic, tc.value)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestDeadLetterTopic(t *testing.T) {
	assert.Equal(t, "payments.processed.dlq", DeadLetterTopic(TopicPaymentsDone))
}
