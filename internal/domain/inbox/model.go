package inbox

import "time"

// Event records that Consumer has handled EventID for a ticket, so a
// redelivery of the same envelope can be dropped.
type Event struct {
	Consumer    string    `json:"consumer" db:"consumer"`
	EventID     string    `json:"event_id" db:"event_id"`
	EventType   string    `json:"event_type" db:"event_type"`
	TicketID    string    `json:"ticket_id" db:"ticket_id"`
	ProcessedAt time.Time `json:"processed_at" db:"processed_at"`
}
