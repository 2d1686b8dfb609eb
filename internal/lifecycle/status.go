package lifecycle

import "time"

// Snapshot is a point-in-time view of the machine for the HTTP API and CLI.
type Snapshot struct {
	Container        string    `json:"container"`
	State            State     `json:"state"`
	ActiveSessions   []string  `json:"active_sessions"`
	LastActivityAt   time.Time `json:"last_activity_at"`
	LastTransitionAt time.Time `json:"last_transition_at,omitempty"`
	PendingEvents    int       `json:"pending_events"`
	LastError        string    `json:"last_error,omitempty"`
}

// Status returns a consistent snapshot. Safe for concurrent use.
func (m *Machine) Status() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		Container:        m.cfg.Container,
		State:            m.state,
		ActiveSessions:   m.tracker.Active(),
		LastActivityAt:   m.tracker.LastActivityAt(),
		LastTransitionAt: m.lastTransitionAt,
		PendingEvents:    len(m.latched),
		LastError:        m.lastError,
	}
}
