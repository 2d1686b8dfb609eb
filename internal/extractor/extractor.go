package extractor

import (
	"regexp"
	"strings"
	"time"
)

// Kind classifies a log line into a domain event.
type Kind string

const (
	KindSessionStarted Kind = "session_started"
	KindSessionEnded   Kind = "session_ended"
	// KindActivity marks lines that prove a player is doing something without
	// carrying session identity (menu, stash, raid pings).
	KindActivity       Kind = "activity"
	KindCompanionReady Kind = "companion_ready"
	KindUnknown        Kind = "unknown"
)

// DefaultSession is used when a rule matches but carries no session capture.
// Presence then degrades to server-wide granularity.
const DefaultSession = "server"

// Event is the extracted domain event for one log line.
type Event struct {
	Kind    Kind      `json:"kind"`
	Session string    `json:"session,omitempty"`
	At      time.Time `json:"at"`
}

// Rule maps a line pattern to an event kind. Either Contains or Pattern must
// be set; when both are set, Contains is checked first as a cheap prefilter.
// SessionPattern, when set, must contain one capture group for the session id.
type Rule struct {
	Kind           Kind
	Contains       string
	Pattern        *regexp.Regexp
	SessionPattern *regexp.Regexp
}

func (r Rule) matches(line string) bool {
	if r.Contains != "" {
		if !strings.Contains(line, r.Contains) {
			return false
		}
		if r.Pattern == nil {
			return true
		}
	}
	return r.Pattern != nil && r.Pattern.MatchString(line)
}

func (r Rule) session(line string) string {
	if r.SessionPattern == nil {
		return DefaultSession
	}
	m := r.SessionPattern.FindStringSubmatch(line)
	if len(m) < 2 || m[1] == "" {
		return DefaultSession
	}
	return m[1]
}

// Extractor classifies raw log lines against an ordered rule table.
// It is a pure function of the line text; unmatched input classifies to
// KindUnknown rather than erroring so a garbage line can never abort the
// stream.
type Extractor struct {
	rules []Rule
}

func New(rules []Rule) *Extractor {
	return &Extractor{rules: rules}
}

// Default returns an extractor with the stock SPT/Fika server rules.
func Default() *Extractor {
	return New(DefaultRules())
}

// DefaultRules mirrors the log surface of the SPT server: the launcher login
// route signals a new session, the remaining routes only prove activity, and
// the headless client announces itself with a "has connected" line.
func DefaultRules() []Rule {
	return []Rule{
		{
			Kind:           KindSessionStarted,
			Contains:       "/launcher/profile/login",
			SessionPattern: regexp.MustCompile(`sessionId[=:]\s*"?([A-Za-z0-9]+)`),
		},
		{
			Kind:           KindSessionEnded,
			Contains:       "/launcher/profile/logout",
			SessionPattern: regexp.MustCompile(`sessionId[=:]\s*"?([A-Za-z0-9]+)`),
		},
		{Kind: KindActivity, Contains: "/launcher/server/version"},
		{Kind: KindActivity, Contains: "/fika/presence/set"},
		{Kind: KindActivity, Contains: "/fika/update/ping"},
		{
			Kind:    KindCompanionReady,
			Pattern: regexp.MustCompile(`(headless_).*(has connected)`),
		},
	}
}

// Extract classifies a single line observed at the given time. First matching
// rule wins; no rule means KindUnknown.
func (x *Extractor) Extract(line string, at time.Time) Event {
	for _, r := range x.rules {
		if r.matches(line) {
			ev := Event{Kind: r.Kind, At: at}
			switch r.Kind {
			case KindSessionStarted, KindSessionEnded:
				ev.Session = r.session(line)
			}
			return ev
		}
	}
	return Event{Kind: KindUnknown, At: at}
}

// Rules returns a copy of the rule table (for status/debug output).
func (x *Extractor) Rules() []Rule {
	out := make([]Rule, len(x.rules))
	copy(out, x.rules)
	return out
}
