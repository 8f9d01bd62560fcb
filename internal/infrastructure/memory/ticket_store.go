// Package memory holds an in-process ticket store used by tests and local runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"transit-ticketing/internal/domain/ticket"
)

type TicketStore struct {
	mu      sync.Mutex
	tickets map[string]*ticket.Ticket
}

func NewTicketStore() *TicketStore {
	return &TicketStore{tickets: make(map[string]*ticket.Ticket)}
}

func (s *TicketStore) Insert(_ context.Context, t *ticket.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tickets[t.ID]; ok {
		return ticket.ErrDuplicateKey
	}
	s.tickets[t.ID] = clone(t)
	return nil
}

func (s *TicketStore) FindByID(_ context.Context, id string) (*ticket.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tickets[id]
	if !ok {
		return nil, ticket.ErrNotFound
	}
	return clone(t), nil
}

func (s *TicketStore) FindExpired(_ context.Context, now time.Time, limit int) ([]*ticket.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*ticket.Ticket
	for _, t := range s.tickets {
		if t.IsActive() && t.Expiry != nil && t.Expiry.Before(now) {
			out = append(out, clone(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Expiry.Before(*out[j].Expiry) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *TicketStore) ConditionalUpdate(_ context.Context, id string, pre ticket.Precondition, m ticket.Mutation) (*ticket.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tickets[id]
	if !ok {
		return nil, ticket.ErrNotFound
	}
	if !pre.Holds(t, m) {
		return nil, ticket.ErrPreconditionFailed
	}
	m.Apply(t)
	return clone(t), nil
}

// Len is the number of stored tickets.
func (s *TicketStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tickets)
}

func clone(t *ticket.Ticket) *ticket.Ticket {
	c := *t
	if t.Expiry != nil {
		e := *t.Expiry
		c.Expiry = &e
	}
	c.Validations = append([]ticket.Validation{}, t.Validations...)
	return &c
}
