// Package payment is a stand-in payment processor. It charges each ticket at
// most once and reports the outcome back to the saga.
package payment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"transit-ticketing/internal/domain/event"
	"transit-ticketing/internal/domain/payment"
	"transit-ticketing/internal/infrastructure/postgres"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const ConsumerName = "payment-service"

var paymentsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "payment_service_events_processed_total",
	Help: "The total number of processed events by payment service",
}, []string{"outcome"})

type inboxStore interface {
	Claim(ctx context.Context, consumer string, msg event.Message, ticketID string) (bool, error)
}

type paymentStore interface {
	Create(ctx context.Context, p *payment.Payment) (bool, error)
	GetByTicketID(ctx context.Context, ticketID string) (*payment.Payment, error)
}

type Processor struct {
	txManager postgres.Transactor
	inbox     inboxStore
	payments  paymentStore
	publisher event.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewProcessor(txManager postgres.Transactor, inbox inboxStore, payments paymentStore, publisher event.Publisher, logger *slog.Logger) *Processor {
	return &Processor{
		txManager: txManager,
		inbox:     inbox,
		payments:  payments,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

func Topics() []string {
	return []string{event.TopicPaymentRequired}
}

// Handle charges for a PaymentRequired event. A ticket that was already
// charged gets its stored outcome republished instead of a second charge.
func (p *Processor) Handle(ctx context.Context, topic string, value []byte) error {
	msg, payload, err := event.Decode(topic, value)
	if err != nil {
		return err
	}
	req, ok := payload.(*event.PaymentRequired)
	if !ok {
		return fmt.Errorf("%w: %s is not handled by the payment service", event.ErrMalformed, msg.Type)
	}

	var (
		charged *payment.Payment
		fresh   bool
	)
	err = p.txManager.WithinTransaction(ctx, func(ctx context.Context) error {
		isNew, err := p.inbox.Claim(ctx, ConsumerName, msg, req.TicketID)
		if err != nil {
			return fmt.Errorf("inbox claim: %w", err)
		}
		if !isNew {
			return nil
		}

		now := p.now()
		charged = &payment.Payment{
			ID:        uuid.New().String(),
			TicketID:  req.TicketID,
			UserID:    req.UserID,
			Status:    outcome(req),
			Amount:    req.Amount,
			CreatedAt: now,
			UpdatedAt: now,
		}
		fresh, err = p.payments.Create(ctx, charged)
		if err != nil {
			return fmt.Errorf("create payment: %w", err)
		}
		if !fresh {
			charged, err = p.payments.GetByTicketID(ctx, req.TicketID)
			if err != nil {
				return fmt.Errorf("load existing payment: %w", err)
			}
			if charged == nil {
				return fmt.Errorf("payment for ticket %s vanished", req.TicketID)
			}
		}

		out, err := event.New(event.PaymentProcessed{
			TicketID:  charged.TicketID,
			PaymentID: charged.ID,
			Status:    charged.Status,
		}, req.TicketID, msg.ID, ConsumerName)
		if err != nil {
			return err
		}
		if err := p.publisher.Publish(ctx, event.TopicPaymentsDone, req.TicketID, out); err != nil {
			return fmt.Errorf("publish payment processed: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("handle %s %s: %w", msg.Type, msg.ID, err)
	}

	if charged == nil {
		p.logger.Info("Payment request already handled", "ticket_id", req.TicketID, "event_id", msg.ID)
		return nil
	}

	if !fresh {
		p.logger.Info("Ticket already charged, outcome republished", "ticket_id", req.TicketID, "payment_id", charged.ID)
		return nil
	}

	paymentsProcessed.WithLabelValues(charged.Status).Inc()
	p.logger.Info("Payment processed", "ticket_id", req.TicketID, "payment_id", charged.ID, "status", charged.Status, "event_id", msg.ID)
	return nil
}

// outcome approves any positive charge.
func outcome(req *event.PaymentRequired) string {
	if req.Amount.IsPositive() {
		return payment.StatusSuccess
	}
	return payment.StatusFailed
}
