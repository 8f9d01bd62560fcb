package usecase

import (
	"context"
	"fmt"

	"transit-ticketing/internal/domain/inbox"
	"transit-ticketing/internal/domain/outbox"
	"transit-ticketing/internal/domain/payment"
	"transit-ticketing/internal/domain/ticket"
)

type WorkflowDTO struct {
	Ticket  *ticket.Ticket   `json:"ticket"`
	Outbox  []*outbox.Event  `json:"outbox"`
	Inbox   []*inbox.Event   `json:"inbox"`
	Payment *payment.Payment `json:"payment,omitempty"`
}

type outboxLister interface {
	ListByCorrelationID(ctx context.Context, correlationID string) ([]*outbox.Event, error)
}

type inboxLister interface {
	ListByTicket(ctx context.Context, ticketID string) ([]*inbox.Event, error)
}

type paymentFinder interface {
	GetByTicketID(ctx context.Context, ticketID string) (*payment.Payment, error)
}

// GetWorkflow gathers everything the saga recorded about one ticket.
type GetWorkflow struct {
	store       ticket.Store
	outboxRepo  outboxLister
	inboxRepo   inboxLister
	paymentRepo paymentFinder
}

func NewGetWorkflow(store ticket.Store, outboxRepo outboxLister, inboxRepo inboxLister, paymentRepo paymentFinder) *GetWorkflow {
	return &GetWorkflow{
		store:       store,
		outboxRepo:  outboxRepo,
		inboxRepo:   inboxRepo,
		paymentRepo: paymentRepo,
	}
}

func (uc *GetWorkflow) Execute(ctx context.Context, ticketID string) (*WorkflowDTO, error) {
	t, err := uc.store.FindByID(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("get ticket: %w", err)
	}

	outboxEvents, err := uc.outboxRepo.ListByCorrelationID(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("get outbox events: %w", err)
	}

	inboxEvents, err := uc.inboxRepo.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("get inbox events: %w", err)
	}

	p, err := uc.paymentRepo.GetByTicketID(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("get payment: %w", err)
	}

	return &WorkflowDTO{
		Ticket:  t,
		Outbox:  outboxEvents,
		Inbox:   inboxEvents,
		Payment: p,
	}, nil
}
