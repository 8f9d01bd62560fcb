package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"transit-ticketing/internal/domain/ticket"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const DefaultSweepBatchSize = 500

var (
	ticketsSwept = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sweeper_tickets_expired_total",
		Help: "Tickets moved to EXPIRED by the sweeper",
	})
	sweepSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sweeper_tickets_skipped_total",
		Help: "Candidates that changed state before the sweeper reached them",
	})
	sweepFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sweeper_update_failures_total",
		Help: "Candidates the sweeper could not update",
	})
)

// SweepResult summarises one pass.
type SweepResult struct {
	Expired int
	Skipped int
	Failed  int
}

type Sweeper struct {
	store     ticket.Store
	batchSize int
	logger    *slog.Logger
	now       func() time.Time
}

func NewSweeper(store ticket.Store, batchSize int, logger *slog.Logger) *Sweeper {
	if batchSize <= 0 {
		batchSize = DefaultSweepBatchSize
	}
	return &Sweeper{store: store, batchSize: batchSize, logger: logger, now: time.Now}
}

// Sweep expires every active ticket whose expiry has passed. Each candidate is
// updated on its own; one failing ticket does not stop the rest of the pass.
// Only a failure to list candidates is returned.
func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	now := s.now()

	for {
		candidates, err := s.store.FindExpired(ctx, now, s.batchSize)
		if err != nil {
			return res, fmt.Errorf("find expired tickets: %w", err)
		}

		progressed := false
		for _, t := range candidates {
			_, err := s.store.ConditionalUpdate(ctx, t.ID,
				ticket.Precondition{Statuses: ticket.Active},
				ticket.Expire(now))
			switch {
			case err == nil:
				res.Expired++
				progressed = true
				ticketsSwept.Inc()
			case errors.Is(err, ticket.ErrPreconditionFailed), errors.Is(err, ticket.ErrNotFound):
				res.Skipped++
				progressed = true
				sweepSkipped.Inc()
			default:
				res.Failed++
				sweepFailures.Inc()
				s.logger.Error("failed to expire ticket", "ticket_id", t.ID, "error", err)
			}
		}

		// A short batch means nothing is left. A batch made only of failures
		// would come back unchanged, so stop there too.
		if len(candidates) < s.batchSize || !progressed {
			break
		}
	}

	if res.Expired > 0 || res.Failed > 0 {
		s.logger.Info("Sweep finished", "expired", res.Expired, "skipped", res.Skipped, "failed", res.Failed)
	}
	return res, nil
}

// Run adapts Sweep to RunEvery.
func (s *Sweeper) Run(ctx context.Context) error {
	_, err := s.Sweep(ctx)
	return err
}
