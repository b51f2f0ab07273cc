package appointment

import "context"

const (
	EventRequestSubmitted        = "REQUEST_SUBMITTED"
	EventRequestAccepted         = "REQUEST_ACCEPTED"
	EventRequestRejected         = "REQUEST_REJECTED"
	EventRequestConflictResolved = "REQUEST_CONFLICT_RESOLVED"
)

// EventPublisher fans request lifecycle events out to other systems.
type EventPublisher interface {
	Publish(ctx context.Context, ev EventLog) error
}
