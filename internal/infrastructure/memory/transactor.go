package memory

import "context"

// Transactor runs fn directly. The in-memory store has no multi-statement
// transactions, so writes made before fn fails are kept.
type Transactor struct{}

func (Transactor) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
