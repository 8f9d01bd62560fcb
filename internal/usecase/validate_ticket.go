package usecase

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
)

var (
	validations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ticket_validations_total",
		Help: "Validation attempts by outcome",
	}, []string{"outcome"})
	validationConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ticket_validation_conflicts_total",
		Help: "Conditional updates lost to a concurrent writer during validation",
	})
)

const DefaultValidationAttempts = 5

type ValidationResult struct {
	TicketID      string        `json:"ticket_id"`
	Status        ticket.Status `json:"status"`
	RemainingUses int           `json:"remaining_uses"`
	Expiry        *time.Time    `json:"expiry,omitempty"`
}

type ValidateTicket struct {
	txManager   postgres.Transactor
	store       ticket.Store
	publisher   event.Publisher
	cache       *redis.TicketCache
	durations   ticket.Durations
	maxAttempts int
	logger      *slog.Logger
	now         func() time.Time
}

func NewValidateTicket(
	txManager postgres.Transactor,
	store ticket.Store,
	publisher event.Publisher,
	cache *redis.TicketCache,
	durations ticket.Durations,
	maxAttempts int,
	logger *slog.Logger,
) *ValidateTicket {
	if maxAttempts <= 0 {
		maxAttempts = DefaultValidationAttempts
	}
	return &ValidateTicket{
		txManager:   txManager,
		store:       store,
		publisher:   publisher,
		cache:       cache,
		durations:   durations,
		maxAttempts: maxAttempts,
		logger:      logger,
		now:         time.Now,
	}
}

// Execute records a boarding of ticketID on vehicleID. Each attempt re-reads
// the ticket and writes with a conditional update; losing the race to another
// validation or to the sweeper starts over, up to maxAttempts.
func (uc *ValidateTicket) Execute(ctx context.Context, ticketID, vehicleID string) (*ValidationResult, error) {
	for attempt := 1; attempt <= uc.maxAttempts; attempt++ {
		res, err := uc.attempt(ctx, ticketID, vehicleID)
		if err == nil {
			validations.WithLabelValues("ok").Inc()
			if err := uc.cache.Invalidate(ctx, ticketID); err != nil {
				uc.logger.Warn("failed to invalidate ticket cache", "ticket_id", ticketID, "error", err)
			}
			return res, nil
		}
		if !errors.Is(err, ticket.ErrPreconditionFailed) {
			validations.WithLabelValues(outcome(err)).Inc()
			return nil, err
		}
		validationConflicts.Inc()
		uc.logger.Debug("Validation lost a race, retrying", "ticket_id", ticketID, "attempt", attempt)
	}

	validations.WithLabelValues("conflict").Inc()
	return nil, fmt.Errorf("validate ticket %s after %d attempts: %w", ticketID, uc.maxAttempts, ticket.ErrConflict)
}

func (uc *ValidateTicket) attempt(ctx context.Context, ticketID, vehicleID string) (*ValidationResult, error) {
	t, err := uc.store.FindByID(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("load ticket %s: %w", ticketID, err)
	}

	now := uc.now()
	if !t.IsActive() {
		return nil, fmt.Errorf("ticket %s is %s: %w", ticketID, t.Status, ticket.ErrNotEligible)
	}
	if t.ExpiredAt(now) {
		if _, err := expire(ctx, uc.store, ticketID, now); err != nil {
			uc.logger.Error("failed to expire ticket on validation", "ticket_id", ticketID, "error", err)
		} else {
			lazyExpirations.Inc()
		}
		return nil, fmt.Errorf("ticket %s expired at %s: %w", ticketID, t.Expiry.Format(time.RFC3339), ticket.ErrExpired)
	}
	if t.FareClass == ticket.FareMulti && t.RemainingUses <= 0 {
		return nil, fmt.Errorf("ticket %s: %w", ticketID, ticket.ErrExhaustedUses)
	}

	validated := ticket.StatusValidated
	m := ticket.Mutation{
		Status:           &validated,
		DecrementUses:    t.FareClass == ticket.FareMulti,
		AppendValidation: &ticket.Validation{VehicleID: vehicleID, Timestamp: now},
		UpdatedAt:        now,
	}
	if len(t.Validations) == 0 {
		expiry := now.Add(uc.durations.For(t.FareClass))
		m.SetExpiryIfUnset = &expiry
	}

	var updated *ticket.Ticket
	err = uc.txManager.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		updated, err = uc.store.ConditionalUpdate(ctx, ticketID,
			ticket.Precondition{Statuses: ticket.Active, NotExpiredAt: now}, m)
		if err != nil {
			return err
		}

		msg, err := event.New(event.TicketValidated{
			TicketID:      updated.ID,
			VehicleID:     vehicleID,
			RemainingUses: updated.RemainingUses,
			Expiry:        updated.Expiry,
			ValidatedAt:   now,
		}, updated.ID, "", "ticket-validation")
		if err != nil {
			return err
		}
		if err := uc.publisher.Publish(ctx, event.TopicTicketValidated, updated.ID, msg); err != nil {
			return fmt.Errorf("publish ticket validated: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.logger.Info("Ticket validated", "ticket_id", updated.ID, "vehicle_id", vehicleID, "remaining_uses", updated.RemainingUses)
	return &ValidationResult{
		TicketID:      updated.ID,
		Status:        updated.Status,
		RemainingUses: updated.RemainingUses,
		Expiry:        updated.Expiry,
	}, nil
}

func outcome(err error) string {
	switch {
	case errors.Is(err, ticket.ErrNotFound):
		return "not_found"
	case errors.Is(err, ticket.ErrNotEligible):
		return "not_eligible"
	case errors.Is(err, ticket.ErrExpired):
		return "expired"
	case errors.Is(err, ticket.ErrExhaustedUses):
		return "exhausted"
	default:
		return "error"
	}
}
