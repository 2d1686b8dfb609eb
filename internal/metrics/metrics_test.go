package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRegisterIdempotentAndCountersWork(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("first register: %v", err)
	}
	// Second call is a no-op regardless of registerer.
	if err := Register(reg); err != nil {
		t.Fatalf("second register: %v", err)
	}

	IncContainerStart("headless")
	IncContainerStop("headless")
	IncControllerRetry("headless", "start")
	SetSessionsActive(2)
	IncEvent("session_started")
	IncLogLine()
	RecordStateTransition("idle_stopped", "transitioning")
	SetCurrentState("transitioning", true)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	names := make(map[string]bool, len(mfs))
	for _, mf := range mfs {
		names[mf.GetName()] = true
	}
	for _, want := range []string{
		"idlewatch_container_starts_total",
		"idlewatch_container_stops_total",
		"idlewatch_container_controller_retries_total",
		"idlewatch_presence_sessions_active",
		"idlewatch_presence_events_total",
		"idlewatch_monitor_log_lines_total",
		"idlewatch_lifecycle_state_transitions_total",
		"idlewatch_lifecycle_current_state",
	} {
		if !names[want] {
			t.Fatalf("metric %s not gathered; got %v", want, names)
		}
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	_ = Register(prometheus.DefaultRegisterer)
	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != 200 {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "go_goroutines") {
		t.Fatalf("expected default gatherer output, got %d bytes", len(body))
	}
}
