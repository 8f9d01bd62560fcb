package usecase

import (
	"context"
	"fmt"
	"time"

	"transit-ticketing/internal/domain/event"
	"transit-ticketing/internal/domain/ticket"

	"github.com/shopspring/decimal"
)

type RequestTicket struct {
	publisher event.Publisher
	now       func() time.Time
}

func NewRequestTicket(publisher event.Publisher) *RequestTicket {
	return &RequestTicket{publisher: publisher, now: time.Now}
}

type RequestTicketParams struct {
	UserID    string          `json:"user_id"`
	RouteID   string          `json:"route_id"`
	FareClass string          `json:"fare_class"`
	Amount    decimal.Decimal `json:"amount"`
}

// Execute hands the request to the saga and returns the id the ticket will have.
// Creation itself happens asynchronously.
func (uc *RequestTicket) Execute(ctx context.Context, params RequestTicketParams) (string, error) {
	e := event.TicketRequested{
		UserID:      params.UserID,
		RouteID:     params.RouteID,
		FareClass:   params.FareClass,
		Amount:      params.Amount,
		RequestedAt: uc.now().UTC().Truncate(time.Millisecond),
	}
	if err := e.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	id := ticket.DeriveID(e.UserID, e.RouteID, e.RequestedAt)
	msg, err := event.New(e, id, "", "ticket-intake")
	if err != nil {
		return "", err
	}
	if err := uc.publisher.Publish(ctx, event.TopicTicketRequests, e.UserID, msg); err != nil {
		return "", fmt.Errorf("publish ticket request: %w", err)
	}

	return id, nil
}
