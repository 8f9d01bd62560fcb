package ticket

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusCreated   Status = "CREATED"
	StatusPaid      Status = "PAID"
	StatusValidated Status = "VALIDATED"
	StatusExpired   Status = "EXPIRED"
)

// Active are the statuses a ticket can be boarded with or swept from.
var Active = []Status{StatusPaid, StatusValidated}

type FareClass string

const (
	FareSingle FareClass = "single"
	FareMulti  FareClass = "multi"
	FarePass   FareClass = "pass"
)

// UnlimitedUses marks a pass.
const UnlimitedUses = -1

func ParseFareClass(s string) (FareClass, error) {
	switch FareClass(s) {
	case FareSingle, FareMulti, FarePass:
		return FareClass(s), nil
	}
	return "", fmt.Errorf("unknown fare class %q", s)
}

// InitialUses returns remainingUses for a freshly created ticket.
func (f FareClass) InitialUses() int {
	switch f {
	case FareMulti:
		return 5
	case FarePass:
		return UnlimitedUses
	default:
		return 1
	}
}

// Durations maps a fare class to how long a ticket stays valid after its first boarding.
type Durations struct {
	Single time.Duration
	Multi  time.Duration
	Pass   time.Duration
}

func DefaultDurations() Durations {
	return Durations{
		Single: time.Hour,
		Multi:  24 * time.Hour,
		Pass:   30 * 24 * time.Hour,
	}
}

func (d Durations) For(f FareClass) time.Duration {
	switch f {
	case FareMulti:
		return d.Multi
	case FarePass:
		return d.Pass
	default:
		return d.Single
	}
}

type Validation struct {
	VehicleID string    `json:"vehicle_id"`
	Timestamp time.Time `json:"timestamp"`
}

type Ticket struct {
	ID            string       `json:"id"`
	UserID        string       `json:"user_id"`
	RouteID       string       `json:"route_id"`
	FareClass     FareClass    `json:"fare_class"`
	Status        Status       `json:"status"`
	Expiry        *time.Time   `json:"expiry,omitempty"`
	RemainingUses int          `json:"remaining_uses"`
	Validations   []Validation `json:"validations"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

var idNamespace = uuid.MustParse("6f1c7a62-3c1e-4f4e-9a55-2f5a3e0c9d10")

// DeriveID builds the ticket id from the request that created it. The same
// request always yields the same id, which is what makes creation idempotent.
func DeriveID(userID, routeID string, requestedAt time.Time) string {
	name := userID + "|" + routeID + "|" + strconv.FormatInt(requestedAt.UnixMilli(), 10)
	return uuid.NewSHA1(idNamespace, []byte(name)).String()
}

func New(userID, routeID string, fare FareClass, requestedAt, now time.Time) *Ticket {
	return &Ticket{
		ID:            DeriveID(userID, routeID, requestedAt),
		UserID:        userID,
		RouteID:       routeID,
		FareClass:     fare,
		Status:        StatusCreated,
		RemainingUses: fare.InitialUses(),
		Validations:   []Validation{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func (t *Ticket) IsActive() bool {
	return t.Status == StatusPaid || t.Status == StatusValidated
}

// ExpiredAt reports whether the ticket has an expiry that is not after now.
func (t *Ticket) ExpiredAt(now time.Time) bool {
	return t.Expiry != nil && !t.Expiry.After(now)
}
