package extractor

import (
	"regexp"
	"testing"
	"time"
)

func TestDefaultRulesClassification(t *testing.T) {
	x := Default()
	now := time.Now()

	cases := []struct {
		line string
		want Kind
	}{
		{`[Info] GET /launcher/profile/login sessionId=abc123`, KindSessionStarted},
		{`[Info] GET /launcher/profile/logout sessionId=abc123`, KindSessionEnded},
		{`[Info] GET /launcher/server/version`, KindActivity},
		{`[Info] PUT /fika/presence/set body=...`, KindActivity},
		{`[Info] POST /fika/update/ping`, KindActivity},
		{`headless_5f2a has connected`, KindCompanionReady},
		{`[Info] database migration complete`, KindUnknown},
		{``, KindUnknown},
		{`random noise $$%@@!`, KindUnknown},
	}
	for _, c := range cases {
		got := x.Extract(c.line, now)
		if got.Kind != c.want {
			t.Fatalf("Extract(%q) kind = %q, want %q", c.line, got.Kind, c.want)
		}
		if !got.At.Equal(now) {
			t.Fatalf("Extract(%q) at = %v, want %v", c.line, got.At, now)
		}
	}
}

func TestSessionCapture(t *testing.T) {
	x := Default()
	ev := x.Extract(`GET /launcher/profile/login sessionId=67abf0e1`, time.Now())
	if ev.Session != "67abf0e1" {
		t.Fatalf("expected captured session id, got %q", ev.Session)
	}
	// No capture available: degrade to server-wide sentinel.
	ev = x.Extract(`GET /launcher/profile/login`, time.Now())
	if ev.Session != DefaultSession {
		t.Fatalf("expected %q fallback, got %q", DefaultSession, ev.Session)
	}
	// Activity lines never carry a session.
	ev = x.Extract(`GET /fika/update/ping sessionId=deadbeef`, time.Now())
	if ev.Session != "" {
		t.Fatalf("activity event should have empty session, got %q", ev.Session)
	}
}

func TestCustomRules(t *testing.T) {
	x := New([]Rule{
		{Kind: KindSessionStarted, Contains: "player joined", SessionPattern: regexp.MustCompile(`player joined: (\S+)`)},
		{Kind: KindSessionEnded, Contains: "player left", SessionPattern: regexp.MustCompile(`player left: (\S+)`)},
	})
	ev := x.Extract("12:00:01 player joined: navigator", time.Now())
	if ev.Kind != KindSessionStarted || ev.Session != "navigator" {
		t.Fatalf("unexpected event: %+v", ev)
	}
	ev = x.Extract("12:00:09 player left: navigator", time.Now())
	if ev.Kind != KindSessionEnded || ev.Session != "navigator" {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if ev = x.Extract("/launcher/profile/login", time.Now()); ev.Kind != KindUnknown {
		t.Fatalf("default rules must not leak into custom table, got %q", ev.Kind)
	}
}

func TestFirstMatchWins(t *testing.T) {
	x := New([]Rule{
		{Kind: KindSessionStarted, Contains: "login"},
		{Kind: KindActivity, Contains: "login"},
	})
	if ev := x.Extract("user login ok", time.Now()); ev.Kind != KindSessionStarted {
		t.Fatalf("expected first rule to win, got %q", ev.Kind)
	}
}

func TestContainsWithPatternPrefilter(t *testing.T) {
	x := New([]Rule{{
		Kind:     KindCompanionReady,
		Contains: "has connected",
		Pattern:  regexp.MustCompile(`(headless_).*(has connected)`),
	}})
	if ev := x.Extract("player bob has connected", time.Now()); ev.Kind != KindUnknown {
		t.Fatalf("pattern must still gate after contains prefilter, got %q", ev.Kind)
	}
	if ev := x.Extract("headless_a1 has connected", time.Now()); ev.Kind != KindCompanionReady {
		t.Fatalf("expected companion ready, got %q", ev.Kind)
	}
}
