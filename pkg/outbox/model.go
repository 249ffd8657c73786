package outbox

import "time"

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
)

// Event is one outbox row: an order lifecycle message written in the same
// transaction as the order change it describes.
type Event struct {
	ID            int64
	AggregateType string
	AggregateID   string
	Type          string
	Payload       []byte
	Headers       map[string]string
	Traceparent   string
	CreatedAt     time.Time
	Status        Status

	// RelayID and LeaseUntil identify the relay currently holding the row.
	RelayID    string
	LeaseUntil time.Time

	RetryCount int
	LastError  *string
}

// Claimable reports whether a relay may lock the event at now: it is pending,
// or another relay's lease on it has run out.
func (e Event) Claimable(now time.Time) bool {
	switch e.Status {
	case StatusPending:
		return true
	case StatusInProgress:
		return e.LeaseUntil.Before(now)
	default:
		return false
	}
}
