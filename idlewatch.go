package idlewatch

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/haldis/idlewatch/internal/config"
	"github.com/haldis/idlewatch/internal/docker"
	"github.com/haldis/idlewatch/internal/extractor"
	"github.com/haldis/idlewatch/internal/history"
	"github.com/haldis/idlewatch/internal/lifecycle"
	"github.com/haldis/idlewatch/internal/metrics"
	"github.com/haldis/idlewatch/internal/monitor"
	iapi "github.com/haldis/idlewatch/internal/server"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Config = cfg.Config

type Rule = extractor.Rule

type Event = extractor.Event

type Snapshot = lifecycle.Snapshot

type State = lifecycle.State

type Controller = lifecycle.Controller

type MachineConfig = lifecycle.Config

type MonitorConfig = monitor.Config

type LineSource = monitor.LineSource

type HistorySink = history.Sink

// Watcher is a thin facade over the lifecycle machine and its log monitor.
// It provides a stable public API for embedding.

type Watcher struct {
	machine *lifecycle.Machine
	monitor *monitor.Monitor
}

// Options bundles the pieces a Watcher is assembled from. Zero values fall
// back to machine/monitor defaults and the stock rule table.
type Options struct {
	Machine MachineConfig
	Monitor MonitorConfig
	Rules   []Rule
	Logger  *slog.Logger
}

// New assembles a Watcher around the given container controller and log
// source.
func New(opts Options, ctrl Controller, source LineSource) *Watcher {
	rules := opts.Rules
	if len(rules) == 0 {
		rules = extractor.DefaultRules()
	}
	machine := lifecycle.New(opts.Machine, ctrl)
	if opts.Logger != nil {
		machine.SetLogger(opts.Logger)
	}
	mon := monitor.New(opts.Monitor, source, extractor.New(rules), machine)
	if opts.Logger != nil {
		mon.SetLogger(opts.Logger)
	}
	return &Watcher{machine: machine, monitor: mon}
}

// Run drives the machine, tick loop and log stream until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error { return w.monitor.Run(ctx) }

// Status returns a point-in-time machine snapshot.
func (w *Watcher) Status() Snapshot { return w.machine.Status() }

// Offer injects an event into the machine's queue.
func (w *Watcher) Offer(ev Event) { w.machine.Offer(ev) }

// RequestStop asks the machine to stop the companion container.
func (w *Watcher) RequestStop() { w.machine.RequestStop() }

// Machine exposes the underlying machine for advanced wiring (probe,
// notifier, history sink).
func (w *Watcher) Machine() *lifecycle.Machine { return w.machine }

// Docker is a shared engine connection from which controllers and log
// sources are derived.
type Docker struct{ client *docker.Client }

// NewDocker connects to the Docker engine. host may be empty to use the
// environment (DOCKER_HOST et al).
func NewDocker(host string) (*Docker, error) {
	c, err := docker.NewClient(host)
	if err != nil {
		return nil, err
	}
	return &Docker{client: c}, nil
}

func (d *Docker) Controller(container string, stopTimeout time.Duration) Controller {
	return docker.NewController(d.client, container, stopTimeout)
}

func (d *Docker) LogSource(container string) LineSource {
	return docker.NewLogStreamer(d.client, container)
}

func (d *Docker) Close() error { return d.client.Close() }

func LoadConfig(path string) (*cfg.Config, error) {
	return cfg.Load(path)
} // NewHTTPServer starts an HTTP server exposing the control API for the given watcher.
func NewHTTPServer(addr, basePath string, w *Watcher) (*http.Server, error) {
	return iapi.NewServer(addr, basePath, w.machine)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the default registry.
// It returns any immediate listen error; otherwise it runs the server in the caller goroutine.
func ServeMetrics(addr string) error {
	http.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           nil,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
