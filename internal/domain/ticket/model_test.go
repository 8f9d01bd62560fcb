package ticket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveID_Deterministic(t *testing.T) {
	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	a := DeriveID("user-1", "route-7", at)
	b := DeriveID("user-1", "route-7", at)
	c := DeriveID("user-1", "route-7", at.Add(time.Millisecond))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, a, DeriveID("user-2", "route-7", at))
}

func TestNew_InitialUsesPerFare(t *testing.T) {
	now := time.Now()
	cases := map[FareClass]int{
		FareSingle: 1,
		FareMulti:  5,
		FarePass:   UnlimitedUses,
	}
	for fare, uses := range cases {
		tk := New("u", "r", fare, now, now)
		assert.Equal(t, uses, tk.RemainingUses, fare)
		assert.Equal(t, StatusCreated, tk.Status)
		assert.Nil(t, tk.Expiry)
		assert.Empty(t, tk.Validations)
	}
}

func TestParseFareClass(t *testing.T) {
	f, err := ParseFareClass("multi")
	require.NoError(t, err)
	assert.Equal(t, FareMulti, f)

	_, err = ParseFareClass("weekly")
	assert.Error(t, err)
}

func TestDurations_For(t *testing.T) {
	d := DefaultDurations()
	assert.Equal(t, time.Hour, d.For(FareSingle))
	assert.Equal(t, 24*time.Hour, d.For(FareMulti))
	assert.Equal(t, 30*24*time.Hour, d.For(FarePass))
}

func TestPrecondition_Holds(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	tk := &Ticket{Status: StatusValidated, RemainingUses: 0, Expiry: &past}

	pre := Precondition{Statuses: Active}
	assert.True(t, pre.Holds(tk, Mutation{}))
	assert.False(t, pre.Holds(tk, Mutation{DecrementUses: true}), "decrement below zero")

	pre.NotExpiredAt = now
	assert.False(t, pre.Holds(tk, Mutation{}), "expired ticket")

	tk.Status = StatusExpired
	assert.False(t, Precondition{Statuses: Active}.Holds(tk, Mutation{}))
}

func TestMutation_Apply(t *testing.T) {
	now := time.Now()
	first := now.Add(time.Hour)
	second := now.Add(2 * time.Hour)
	s := StatusValidated
	tk := &Ticket{Status: StatusPaid, RemainingUses: 5, Validations: []Validation{}}

	Mutation{Status: &s, DecrementUses: true, SetExpiryIfUnset: &first,
		AppendValidation: &Validation{VehicleID: "bus-1", Timestamp: now}, UpdatedAt: now}.Apply(tk)
	Mutation{Status: &s, DecrementUses: true, SetExpiryIfUnset: &second,
		AppendValidation: &Validation{VehicleID: "bus-2", Timestamp: now}, UpdatedAt: now}.Apply(tk)

	assert.Equal(t, StatusValidated, tk.Status)
	assert.Equal(t, 3, tk.RemainingUses)
	require.NotNil(t, tk.Expiry)
	assert.True(t, first.Equal(*tk.Expiry), "expiry must not move")
	assert.Len(t, tk.Validations, 2)

	Expire(now).Apply(tk)
	assert.Equal(t, StatusExpired, tk.Status)
	assert.Empty(t, tk.Validations)
}
