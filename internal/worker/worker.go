// Package worker holds the periodic background jobs: the expiry sweeper and
// the outbox relay.
package worker

import (
	"context"
	"log/slog"
	"time"
)

// RunEvery calls fn once per interval until ctx is cancelled. A cycle that is
// already running is allowed to finish; fn's errors are logged and the loop
// carries on.
func RunEvery(ctx context.Context, name string, interval time.Duration, logger *slog.Logger, fn func(ctx context.Context) error) {
	logger.Info("Worker started", "worker", name, "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Worker stopped", "worker", name)
			return
		case <-ticker.C:
			// Detached so shutdown does not abort a half-processed batch.
			if err := fn(context.WithoutCancel(ctx)); err != nil {
				logger.Error("Worker cycle failed", "worker", name, "error", err)
			}
		}
	}
}
