package ticket

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound           = errors.New("ticket not found")
	ErrDuplicateKey       = errors.New("ticket already exists")
	ErrPreconditionFailed = errors.New("ticket precondition failed")

	ErrNotEligible   = errors.New("ticket not eligible")
	ErrExpired       = errors.New("ticket expired")
	ErrExhaustedUses = errors.New("ticket has no remaining uses")
	ErrConflict      = errors.New("ticket update conflict")
)

// Precondition is evaluated by the store at the instant of the write.
type Precondition struct {
	Statuses []Status
	// NotExpiredAt, when non-zero, additionally requires expiry to be unset or after it.
	NotExpiredAt time.Time
}

// Mutation is the set of changes a conditional update applies in one step.
type Mutation struct {
	Status *Status
	// DecrementUses also requires remaining_uses > 0 at write time.
	DecrementUses    bool
	SetExpiryIfUnset *time.Time
	AppendValidation *Validation
	ClearValidations bool
	UpdatedAt        time.Time
}

// Expire is the terminal transition used by the sweeper, lazy expiry and forced expiry.
func Expire(now time.Time) Mutation {
	s := StatusExpired
	return Mutation{Status: &s, ClearValidations: true, UpdatedAt: now}
}

// Apply performs m on t in memory. Stores that cannot express the mutation
// natively use it after checking the precondition.
func (m Mutation) Apply(t *Ticket) {
	if m.Status != nil {
		t.Status = *m.Status
	}
	if m.DecrementUses {
		t.RemainingUses--
	}
	if m.SetExpiryIfUnset != nil && t.Expiry == nil {
		e := *m.SetExpiryIfUnset
		t.Expiry = &e
	}
	if m.ClearValidations {
		t.Validations = []Validation{}
	}
	if m.AppendValidation != nil {
		t.Validations = append(t.Validations, *m.AppendValidation)
	}
	t.UpdatedAt = m.UpdatedAt
}

// Holds reports whether t satisfies both p and the guards implied by m.
func (p Precondition) Holds(t *Ticket, m Mutation) bool {
	ok := false
	for _, s := range p.Statuses {
		if t.Status == s {
			ok = true
			break
		}
	}
	if !ok {
		return false
	}
	if !p.NotExpiredAt.IsZero() && t.ExpiredAt(p.NotExpiredAt) {
		return false
	}
	if m.DecrementUses && t.RemainingUses <= 0 {
		return false
	}
	return true
}

type Store interface {
	Insert(ctx context.Context, t *Ticket) error
	FindByID(ctx context.Context, id string) (*Ticket, error)
	FindExpired(ctx context.Context, now time.Time, limit int) ([]*Ticket, error)
	ConditionalUpdate(ctx context.Context, id string, pre Precondition, m Mutation) (*Ticket, error)
}
