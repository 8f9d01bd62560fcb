// Package saga drives tickets from request to payment confirmation.
package saga

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"transit-ticketing/internal/domain/event"
	"transit-ticketing/internal/domain/ticket"
	"transit-ticketing/internal/infrastructure/postgres"
	"transit-ticketing/internal/infrastructure/redis"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
)

const producerName = "ticket-saga"

var (
	ticketsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "saga_tickets_created_total",
		Help: "Tickets inserted in CREATED state",
	})
	ticketsPaid = promauto.NewCounter(prometheus.CounterOpts{
		Name: "saga_tickets_paid_total",
		Help: "Tickets moved to PAID",
	})
	redeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "saga_redeliveries_total",
		Help: "Events recognised as already applied",
	}, []string{"type"})
	paymentFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "saga_payment_failures_total",
		Help: "PaymentProcessed events reporting a failed payment",
	})
)

type Orchestrator struct {
	txManager postgres.Transactor
	store     ticket.Store
	publisher event.Publisher
	cache     *redis.TicketCache
	logger    *slog.Logger
	now       func() time.Time
}

// NewOrchestrator builds the saga. cache may be nil.
func NewOrchestrator(txManager postgres.Transactor, store ticket.Store, publisher event.Publisher, cache *redis.TicketCache, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		txManager: txManager,
		store:     store,
		publisher: publisher,
		cache:     cache,
		logger:    logger,
		now:       time.Now,
	}
}

// Topics are the topics the orchestrator consumes.
func Topics() []string {
	return []string{event.TopicTicketRequests, event.TopicPaymentsDone}
}

// Handle decodes a raw bus message and applies it. Malformed messages return
// an error wrapping event.ErrMalformed so the consumer dead-letters them.
func (o *Orchestrator) Handle(ctx context.Context, topic string, value []byte) error {
	msg, payload, err := event.Decode(topic, value)
	if err != nil {
		return err
	}

	switch p := payload.(type) {
	case *event.TicketRequested:
		return o.HandleTicketRequested(ctx, msg, p)
	case *event.PaymentProcessed:
		return o.HandlePaymentProcessed(ctx, msg, p)
	default:
		return fmt.Errorf("%w: %s is not handled by the saga", event.ErrMalformed, msg.Type)
	}
}

// HandleTicketRequested creates the ticket and asks for payment. A redelivered
// request for a ticket still awaiting payment asks again, so a lost
// PaymentRequired cannot strand the ticket.
func (o *Orchestrator) HandleTicketRequested(ctx context.Context, msg event.Message, e *event.TicketRequested) error {
	fare, err := ticket.ParseFareClass(e.FareClass)
	if err != nil {
		return fmt.Errorf("%w: %v", event.ErrMalformed, err)
	}

	t := ticket.New(e.UserID, e.RouteID, fare, e.RequestedAt, o.now())
	created := false

	err = o.txManager.WithinTransaction(ctx, func(ctx context.Context) error {
		err := o.store.Insert(ctx, t)
		switch {
		case err == nil:
			created = true
		case errors.Is(err, ticket.ErrDuplicateKey):
			existing, err := o.store.FindByID(ctx, t.ID)
			if err != nil {
				return fmt.Errorf("load existing ticket: %w", err)
			}
			if existing.Status != ticket.StatusCreated {
				redeliveries.WithLabelValues(msg.Type).Inc()
				o.logger.Info("Ticket already past creation, skipping", "ticket_id", t.ID, "status", existing.Status, "event_id", msg.ID)
				return nil
			}
			t = existing
		default:
			return fmt.Errorf("insert ticket: %w", err)
		}

		return o.requestPayment(ctx, msg, t, e.Amount)
	})
	if err != nil {
		return fmt.Errorf("handle %s %s: %w", msg.Type, msg.ID, err)
	}

	if created {
		ticketsCreated.Inc()
		o.logger.Info("Ticket created", "ticket_id", t.ID, "user_id", t.UserID, "fare_class", t.FareClass, "event_id", msg.ID)
	}
	return nil
}

func (o *Orchestrator) requestPayment(ctx context.Context, cause event.Message, t *ticket.Ticket, amount decimal.Decimal) error {
	out, err := event.New(event.PaymentRequired{
		TicketID:  t.ID,
		UserID:    t.UserID,
		Amount:    amount,
		FareClass: string(t.FareClass),
	}, t.ID, cause.ID, producerName)
	if err != nil {
		return err
	}
	if err := o.publisher.Publish(ctx, event.TopicPaymentRequired, t.ID, out); err != nil {
		return fmt.Errorf("publish payment required: %w", err)
	}
	return nil
}

// HandlePaymentProcessed confirms payment. The CREATED precondition makes a
// replay fail the update, which is treated as already applied, so the
// notification goes out once.
func (o *Orchestrator) HandlePaymentProcessed(ctx context.Context, msg event.Message, e *event.PaymentProcessed) error {
	if e.Status == event.PaymentFailed {
		// TODO: pick a target state for failed payments (cancel, retry-eligible or let it lapse) once product decides.
		if _, err := o.store.FindByID(ctx, e.TicketID); err != nil {
			return fmt.Errorf("load ticket for failed payment: %w", unprocessable(err))
		}
		paymentFailures.Inc()
		o.logger.Warn("Payment failed, ticket left in CREATED", "ticket_id", e.TicketID, "payment_id", e.PaymentID, "event_id", msg.ID)
		return nil
	}

	paid := ticket.StatusPaid
	applied := false

	err := o.txManager.WithinTransaction(ctx, func(ctx context.Context) error {
		t, err := o.store.ConditionalUpdate(ctx, e.TicketID,
			ticket.Precondition{Statuses: []ticket.Status{ticket.StatusCreated}},
			ticket.Mutation{Status: &paid, UpdatedAt: o.now()})
		if err != nil {
			if errors.Is(err, ticket.ErrPreconditionFailed) {
				return nil
			}
			return fmt.Errorf("mark ticket paid: %w", unprocessable(err))
		}
		applied = true

		out, err := event.New(event.NotificationRequested{
			UserID:   t.UserID,
			TicketID: t.ID,
			Kind:     "ticket_paid",
		}, t.ID, msg.ID, producerName)
		if err != nil {
			return err
		}
		if err := o.publisher.Publish(ctx, event.TopicNotifications, t.UserID, out); err != nil {
			return fmt.Errorf("publish notification: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("handle %s %s: %w", msg.Type, msg.ID, err)
	}

	if !applied {
		redeliveries.WithLabelValues(msg.Type).Inc()
		o.logger.Info("Payment already applied", "ticket_id", e.TicketID, "event_id", msg.ID)
		return nil
	}

	if err := o.cache.Invalidate(ctx, e.TicketID); err != nil {
		o.logger.Warn("failed to invalidate ticket cache", "ticket_id", e.TicketID, "error", err)
	}

	ticketsPaid.Inc()
	o.logger.Info("Ticket paid", "ticket_id", e.TicketID, "payment_id", e.PaymentID, "event_id", msg.ID)
	return nil
}

// unprocessable tags a missing ticket so the consumer parks the event.
func unprocessable(err error) error {
	if errors.Is(err, ticket.ErrNotFound) {
		return fmt.Errorf("%w: %w", event.ErrUnprocessable, err)
	}
	return err
}
