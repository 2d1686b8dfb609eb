package client

import "time"

// Status mirrors the daemon's machine snapshot.
type Status struct {
	Container        string    `json:"container"`
	State            string    `json:"state"`
	ActiveSessions   []string  `json:"active_sessions,omitempty"`
	LastActivityAt   time.Time `json:"last_activity_at"`
	LastTransitionAt time.Time `json:"last_transition_at"`
	PendingEvents    int       `json:"pending_events"`
	LastError        string    `json:"last_error,omitempty"`
}

// ActivityRequest is the body for POST /activity.
type ActivityRequest struct {
	Session string `json:"session,omitempty"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}
