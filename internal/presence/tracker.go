package presence

import (
	"sort"
	"time"
)

// Tracker keeps the set of active sessions and the last time any activity was
// observed. It is pure state: no I/O, no locks. The lifecycle machine is the
// single owner and serializes all access.
type Tracker struct {
	active         map[string]struct{}
	lastActivityAt time.Time
}

func NewTracker(now time.Time) *Tracker {
	return &Tracker{
		active:         make(map[string]struct{}),
		lastActivityAt: now,
	}
}

// OnSessionStarted records a new active session and refreshes activity.
func (t *Tracker) OnSessionStarted(id string, at time.Time) {
	t.active[id] = struct{}{}
	t.touch(at)
}

// OnSessionEnded removes a session if present. Removing an unknown id is a
// no-op: log replay and reconnects can deliver an end without its start.
func (t *Tracker) OnSessionEnded(id string, at time.Time) {
	delete(t.active, id)
	t.touch(at)
}

// Touch refreshes the activity timestamp without changing the session set.
func (t *Tracker) Touch(at time.Time) { t.touch(at) }

func (t *Tracker) touch(at time.Time) {
	if at.After(t.lastActivityAt) {
		t.lastActivityAt = at
	}
}

// IsIdleFor reports whether no session is active and no activity has been
// seen for at least d.
func (t *Tracker) IsIdleFor(d time.Duration, now time.Time) bool {
	return len(t.active) == 0 && now.Sub(t.lastActivityAt) >= d
}

// ActiveCount returns the number of active sessions.
func (t *Tracker) ActiveCount() int { return len(t.active) }

// Active returns the active session ids, sorted for stable output.
func (t *Tracker) Active() []string {
	out := make([]string, 0, len(t.active))
	for id := range t.active {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// LastActivityAt returns the most recent activity timestamp.
func (t *Tracker) LastActivityAt() time.Time { return t.lastActivityAt }
