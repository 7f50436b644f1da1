package interfaces

import "context"

// EventType represents different event types in the system
type EventType string

const (
	// EventJobsReconciled fires after every store recomputation.
	// Payload: reconcile.View
	EventJobsReconciled EventType = "jobs_reconciled"

	// EventCommandIssued fires after the backend accepted an operator command.
	// Payload: models.CommandRecord
	EventCommandIssued EventType = "command_issued"

	// EventStatusChanged fires when the connection status changes.
	// Payload: status.Status
	EventStatusChanged EventType = "status_changed"

	// EventSnapshotRefreshed fires after a successful snapshot fetch.
	// Payload: map with "job_count" and "trigger"
	EventSnapshotRefreshed EventType = "snapshot_refreshed"

	// EventSnapshotFailed fires when a snapshot fetch fails.
	// Payload: map with "error", "kind" and "trigger"
	EventSnapshotFailed EventType = "snapshot_failed"

	// EventLogLine carries a log entry for the websocket log feed.
	// Payload: logs.Line
	EventLogLine EventType = "log_line"
)

// AllEventTypes lists every event type published by the service
var AllEventTypes = []EventType{
	EventJobsReconciled,
	EventCommandIssued,
	EventStatusChanged,
	EventSnapshotRefreshed,
	EventSnapshotFailed,
	EventLogLine,
}

// Event represents a system event
type Event struct {
	Type    EventType
	Payload interface{}
}

// EventHandler is a function that handles events
type EventHandler func(ctx context.Context, event Event) error

// EventService manages pub/sub event bus
type EventService interface {
	// Subscribe to an event type
	Subscribe(eventType EventType, handler EventHandler) error

	// Unsubscribe from an event type
	Unsubscribe(eventType EventType, handler EventHandler) error

	// Publish an event to all subscribers
	Publish(ctx context.Context, event Event) error

	// PublishSync publishes event and waits for all handlers to complete
	PublishSync(ctx context.Context, event Event) error

	// Close shuts down the event service
	Close() error
}
