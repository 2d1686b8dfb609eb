package monitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/haldis/idlewatch/internal/extractor"
	"github.com/haldis/idlewatch/internal/lifecycle"
	"github.com/haldis/idlewatch/internal/metrics"
)

// LineSource streams raw log lines. Stream blocks until the stream ends or
// ctx is cancelled; the monitor owns the reconnect policy.
type LineSource interface {
	Stream(ctx context.Context, since time.Time, lines chan<- string) error
}

// Config holds monitor tuning. Zero values are normalized to defaults.
type Config struct {
	// PollInterval is the clock tick cadence driving idle checks.
	PollInterval time.Duration
	// ReconnectBackoff is the initial wait before reopening an interrupted
	// log stream; doubled per attempt up to MaxReconnectBackoff.
	ReconnectBackoff    time.Duration
	MaxReconnectBackoff time.Duration
}

func (c *Config) normalize() {
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.ReconnectBackoff <= 0 {
		c.ReconnectBackoff = 2 * time.Second
	}
	if c.MaxReconnectBackoff <= 0 {
		c.MaxReconnectBackoff = time.Minute
	}
}

// Monitor merges the log stream and the clock into the machine's single
// ordered queue: the two producers run concurrently, the machine consumes
// one item at a time.
type Monitor struct {
	cfg     Config
	source  LineSource
	ext     *extractor.Extractor
	machine *lifecycle.Machine
	logger  *slog.Logger
}

func New(cfg Config, source LineSource, ext *extractor.Extractor, machine *lifecycle.Machine) *Monitor {
	cfg.normalize()
	return &Monitor{
		cfg:     cfg,
		source:  source,
		ext:     ext,
		machine: machine,
		logger:  slog.Default(),
	}
}

func (m *Monitor) SetLogger(l *slog.Logger) { m.logger = l }

// Run drives the machine, the tick loop and the log stream until ctx is
// cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	go func() { _ = m.machine.Run(ctx) }()
	go m.tickLoop(ctx)
	return m.streamLoop(ctx)
}

func (m *Monitor) tickLoop(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.machine.Tick(now)
		}
	}
}

// streamLoop keeps the log stream open, reconnecting with backoff when it
// drops. Presence state is deliberately left untouched across reconnects:
// the companion container's real state is unaffected by our read position.
func (m *Monitor) streamLoop(ctx context.Context) error {
	lines := make(chan string, 64)
	go m.consume(ctx, lines)

	backoff := m.cfg.ReconnectBackoff
	since := time.Now()
	for {
		opened := time.Now()
		err := m.source.Stream(ctx, since, lines)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// A stream that held for a while earns a fresh backoff.
		if time.Since(opened) > time.Minute {
			backoff = m.cfg.ReconnectBackoff
		}
		metrics.IncStreamReconnect()
		m.logger.Warn("log stream interrupted, reconnecting",
			"error", err, "backoff", backoff)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff *= 2; backoff > m.cfg.MaxReconnectBackoff {
			backoff = m.cfg.MaxReconnectBackoff
		}
		// Resume from now: replaying lines we already acted on would inject
		// stale activity.
		since = time.Now()
	}
}

func (m *Monitor) consume(ctx context.Context, lines <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case line := <-lines:
			metrics.IncLogLine()
			m.machine.Offer(m.ext.Extract(line, time.Now()))
		}
	}
}
