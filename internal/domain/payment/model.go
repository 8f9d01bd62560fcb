package payment

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Payment is the processor's record of charging for one ticket. A ticket has at most one.
type Payment struct {
	ID        string          `json:"id"`
	TicketID  string          `json:"ticket_id"`
	UserID    string          `json:"user_id"`
	Status    string          `json:"status"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
