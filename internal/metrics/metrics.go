package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	containerStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "idlewatch",
			Subsystem: "container",
			Name:      "starts_total",
			Help:      "Number of confirmed companion container starts.",
		}, []string{"container"},
	)
	containerStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "idlewatch",
			Subsystem: "container",
			Name:      "stops_total",
			Help:      "Number of confirmed companion container stops.",
		}, []string{"container"},
	)
	controllerRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "idlewatch",
			Subsystem: "container",
			Name:      "controller_retries_total",
			Help:      "Number of retried controller calls after transient failures.",
		}, []string{"container", "op"},
	)
	controllerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "idlewatch",
			Subsystem: "container",
			Name:      "controller_failures_total",
			Help:      "Number of transitions abandoned after exhausting retries.",
		}, []string{"container", "op"},
	)
	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "idlewatch",
			Subsystem: "presence",
			Name:      "sessions_active",
			Help:      "Current number of active sessions observed in the log stream.",
		},
	)
	eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "idlewatch",
			Subsystem: "presence",
			Name:      "events_total",
			Help:      "Extracted domain events by kind (unknown lines included).",
		}, []string{"kind"},
	)
	logLines = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "idlewatch",
			Subsystem: "monitor",
			Name:      "log_lines_total",
			Help:      "Raw log lines consumed from the source container.",
		},
	)
	streamReconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "idlewatch",
			Subsystem: "monitor",
			Name:      "stream_reconnects_total",
			Help:      "Log stream reconnect attempts after interruption.",
		},
	)
	stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "idlewatch",
			Subsystem: "lifecycle",
			Name:      "state_transitions_total",
			Help:      "Number of lifecycle state transitions.",
		}, []string{"from", "to"},
	)
	currentState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "idlewatch",
			Subsystem: "lifecycle",
			Name:      "current_state",
			Help:      "Current lifecycle state (1 = active state, 0 = inactive).",
		}, []string{"state"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		containerStarts, containerStops, controllerRetries, controllerFailures,
		sessionsActive, eventsTotal, logLines, streamReconnects,
		stateTransitions, currentState,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
// The caller is responsible for starting an HTTP server and wiring the route.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncContainerStart(container string) {
	if regOK.Load() {
		containerStarts.WithLabelValues(container).Inc()
	}
}

func IncContainerStop(container string) {
	if regOK.Load() {
		containerStops.WithLabelValues(container).Inc()
	}
}

func IncControllerRetry(container, op string) {
	if regOK.Load() {
		controllerRetries.WithLabelValues(container, op).Inc()
	}
}

func IncControllerFailure(container, op string) {
	if regOK.Load() {
		controllerFailures.WithLabelValues(container, op).Inc()
	}
}

func SetSessionsActive(n int) {
	if regOK.Load() {
		sessionsActive.Set(float64(n))
	}
}

func IncEvent(kind string) {
	if regOK.Load() {
		eventsTotal.WithLabelValues(kind).Inc()
	}
}

func IncLogLine() {
	if regOK.Load() {
		logLines.Inc()
	}
}

func IncStreamReconnect() {
	if regOK.Load() {
		streamReconnects.Inc()
	}
}

func RecordStateTransition(from, to string) {
	if regOK.Load() {
		stateTransitions.WithLabelValues(from, to).Inc()
	}
}

func SetCurrentState(state string, active bool) {
	if regOK.Load() {
		var value float64
		if active {
			value = 1
		}
		currentState.WithLabelValues(state).Set(value)
	}
}
