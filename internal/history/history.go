package history

import (
	"context"
	"time"
)

// EventType defines the kind of lifecycle event.
type EventType string

const (
	EventContainerStart EventType = "container_start"
	EventContainerStop  EventType = "container_stop"
	EventSessionStart   EventType = "session_start"
	EventSessionEnd     EventType = "session_end"
	EventStateChange    EventType = "state_change"
)

// Event represents a lifecycle event to be exported to external systems.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Container  string    `json:"container"`
	Session    string    `json:"session,omitempty"`
	State      string    `json:"state,omitempty"`
	Detail     string    `json:"detail,omitempty"`
}

// Sink is a destination for history events (audit/statistics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
	Close() error
}
