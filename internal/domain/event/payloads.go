package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ErrMalformed marks a message that can never be handled and belongs in the dead-letter topic.
var ErrMalformed = errors.New("malformed event")

// ErrUnprocessable marks a well-formed message that refers to state which does
// not exist, so no retry can succeed.
var ErrUnprocessable = errors.New("unprocessable event")

// Terminal reports whether err is one a consumer should dead-letter instead of retrying.
func Terminal(err error) bool {
	return errors.Is(err, ErrMalformed) || errors.Is(err, ErrUnprocessable)
}

const (
	TypeTicketRequested       = "TicketRequested"
	TypePaymentRequired       = "PaymentRequired"
	TypePaymentProcessed      = "PaymentProcessed"
	TypeTicketValidated       = "TicketValidated"
	TypeNotificationRequested = "NotificationRequested"
)

const (
	PaymentSuccess = "success"
	PaymentFailed  = "failed"
)

type TicketRequested struct {
	UserID      string          `json:"user_id"`
	RouteID     string          `json:"route_id"`
	FareClass   string          `json:"fare_class"`
	Amount      decimal.Decimal `json:"amount"`
	RequestedAt time.Time       `json:"requested_at"`
}

func (TicketRequested) EventType() string { return TypeTicketRequested }

func (e TicketRequested) Validate() error {
	switch {
	case e.UserID == "":
		return errors.New("user_id is required")
	case e.RouteID == "":
		return errors.New("route_id is required")
	case e.RequestedAt.IsZero():
		return errors.New("requested_at is required")
	case e.Amount.IsNegative():
		return errors.New("amount must not be negative")
	}
	switch e.FareClass {
	case "single", "multi", "pass":
		return nil
	}
	return fmt.Errorf("unknown fare_class %q", e.FareClass)
}

type PaymentRequired struct {
	TicketID  string          `json:"ticket_id"`
	UserID    string          `json:"user_id"`
	Amount    decimal.Decimal `json:"amount"`
	FareClass string          `json:"fare_class"`
}

func (PaymentRequired) EventType() string { return TypePaymentRequired }

func (e PaymentRequired) Validate() error {
	if e.TicketID == "" {
		return errors.New("ticket_id is required")
	}
	return nil
}

type PaymentProcessed struct {
	TicketID  string `json:"ticket_id"`
	PaymentID string `json:"payment_id"`
	Status    string `json:"status"`
}

func (PaymentProcessed) EventType() string { return TypePaymentProcessed }

func (e PaymentProcessed) Validate() error {
	if e.TicketID == "" {
		return errors.New("ticket_id is required")
	}
	if e.Status != PaymentSuccess && e.Status != PaymentFailed {
		return fmt.Errorf("unknown payment status %q", e.Status)
	}
	return nil
}

type TicketValidated struct {
	TicketID      string     `json:"ticket_id"`
	VehicleID     string     `json:"vehicle_id"`
	RemainingUses int        `json:"remaining_uses"`
	Expiry        *time.Time `json:"expiry,omitempty"`
	ValidatedAt   time.Time  `json:"validated_at"`
}

func (TicketValidated) EventType() string { return TypeTicketValidated }

func (e TicketValidated) Validate() error {
	if e.TicketID == "" {
		return errors.New("ticket_id is required")
	}
	return nil
}

type NotificationRequested struct {
	UserID   string `json:"user_id"`
	TicketID string `json:"ticket_id"`
	Kind     string `json:"kind"`
}

func (NotificationRequested) EventType() string { return TypeNotificationRequested }

func (e NotificationRequested) Validate() error {
	if e.UserID == "" {
		return errors.New("user_id is required")
	}
	return nil
}

// Decode parses an envelope and its payload into the variant expected on topic.
// Every failure wraps ErrMalformed.
func Decode(topic string, value []byte) (Message, Payload, error) {
	var msg Message
	if err := json.Unmarshal(value, &msg); err != nil {
		return msg, nil, fmt.Errorf("%w: envelope: %v", ErrMalformed, err)
	}

	var p Payload
	switch topic {
	case TopicTicketRequests:
		p = &TicketRequested{}
	case TopicPaymentRequired:
		p = &PaymentRequired{}
	case TopicPaymentsDone:
		p = &PaymentProcessed{}
	case TopicTicketValidated:
		p = &TicketValidated{}
	case TopicNotifications:
		p = &NotificationRequested{}
	default:
		return msg, nil, fmt.Errorf("%w: unknown topic %q", ErrMalformed, topic)
	}

	if msg.Type != p.EventType() {
		return msg, nil, fmt.Errorf("%w: type %q on topic %q", ErrMalformed, msg.Type, topic)
	}
	if err := json.Unmarshal(msg.Payload, p); err != nil {
		return msg, nil, fmt.Errorf("%w: %s payload: %v", ErrMalformed, msg.Type, err)
	}
	if err := p.Validate(); err != nil {
		return msg, nil, fmt.Errorf("%w: %s: %v", ErrMalformed, msg.Type, err)
	}
	return msg, p, nil
}
