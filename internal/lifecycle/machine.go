package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/haldis/idlewatch/internal/extractor"
	"github.com/haldis/idlewatch/internal/history"
	"github.com/haldis/idlewatch/internal/metrics"
	"github.com/haldis/idlewatch/internal/presence"
)

// State is the lifecycle machine state.
type State string

const (
	StateIdleStopped     State = "idle_stopped"
	StateActiveRunning   State = "active_running"
	StateCooldownRunning State = "cooldown_running"
	StateTransitioning   State = "transitioning"
)

var allStates = []State{StateIdleStopped, StateActiveRunning, StateCooldownRunning, StateTransitioning}

// Config holds machine tuning. Zero values are normalized to defaults.
type Config struct {
	// Container names the companion container; used for logs, metrics and history.
	Container string
	// ShutdownDelay is how long presence must be idle before a stop is issued.
	ShutdownDelay time.Duration
	// ControllerTimeout bounds each individual controller call.
	ControllerTimeout time.Duration
	// MaxAttempts bounds controller calls per transition (first try included).
	MaxAttempts int
	// RetryBackoff is the initial backoff between attempts; doubled each retry.
	RetryBackoff time.Duration
	// QueueSize is the inbox capacity for merged events and ticks.
	QueueSize int
}

func (c *Config) normalize() {
	if c.ShutdownDelay <= 0 {
		c.ShutdownDelay = 5 * time.Minute
	}
	if c.ControllerTimeout <= 0 {
		c.ControllerTimeout = 30 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 2 * time.Second
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
}

type transitionOp string

const (
	opStart transitionOp = "start"
	opStop  transitionOp = "stop"
)

// Inbox messages. Log events, clock ticks, manual commands and transition
// results all merge into one ordered queue consumed by a single goroutine, so
// no two transitions can ever race.
type message interface{ isMessage() }

type eventMsg struct{ ev extractor.Event }

type tickMsg struct{ now time.Time }

type resultMsg struct {
	op  transitionOp
	err error
}

type stopRequestMsg struct{}

func (eventMsg) isMessage()       {}
func (tickMsg) isMessage()        {}
func (resultMsg) isMessage()      {}
func (stopRequestMsg) isMessage() {}

// Notifier pushes operator-visible messages to the observed service (the
// in-game notification channel of the original deployment). Best effort.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// Machine is the presence-driven lifecycle state machine. It owns all mutable
// state (presence tracker, current state, latch buffer) and mutates it only
// from its step loop. Controller calls run outside the loop and report back
// through the inbox.
type Machine struct {
	cfg      Config
	ctrl     Controller
	probe    PresenceProbe
	notifier Notifier
	sink     history.Sink
	logger   *slog.Logger
	now      func() time.Time

	inbox  chan message
	launch func(func())
	runCtx context.Context

	mu               sync.Mutex
	state            State
	prior            State
	pendingOp        transitionOp
	tracker          *presence.Tracker
	latched          []extractor.Event
	stopWanted       bool
	awaitingReady    bool
	lastError        string
	lastTransitionAt time.Time
}

func New(cfg Config, ctrl Controller) *Machine {
	cfg.normalize()
	m := &Machine{
		cfg:    cfg,
		ctrl:   ctrl,
		logger: slog.Default(),
		now:    time.Now,
		inbox:  make(chan message, cfg.QueueSize),
		runCtx: context.Background(),
		state:  StateIdleStopped,
	}
	m.tracker = presence.NewTracker(m.now())
	m.launch = func(fn func()) { go fn() }
	return m
}

// SetLogger replaces the default logger. Call before Run.
func (m *Machine) SetLogger(l *slog.Logger) { m.logger = l }

// SetProbe installs the pre-stop presence probe. Call before Run.
func (m *Machine) SetProbe(p PresenceProbe) { m.probe = p }

// SetNotifier installs the in-game notifier. Call before Run.
func (m *Machine) SetNotifier(n Notifier) { m.notifier = n }

// SetHistorySink installs the audit sink. Call before Run.
func (m *Machine) SetHistorySink(s history.Sink) { m.sink = s }

// Offer feeds one extracted event into the machine's queue.
func (m *Machine) Offer(ev extractor.Event) { m.inbox <- eventMsg{ev: ev} }

// Tick feeds a clock tick; only cooldown evaluation depends on it.
func (m *Machine) Tick(now time.Time) { m.inbox <- tickMsg{now: now} }

// RequestStop asks for a stop regardless of the inactivity timer (operator
// override). Honors the same transition discipline as timer-driven stops.
func (m *Machine) RequestStop() { m.inbox <- stopRequestMsg{} }

// Run consumes the inbox until ctx is cancelled. It first reconciles the
// in-memory state against the actual container state: presence memory does
// not survive restarts, the container's running state is the source of truth.
func (m *Machine) Run(ctx context.Context) error {
	m.runCtx = ctx
	m.reconcile(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-m.inbox:
			m.step(msg)
		}
	}
}

func (m *Machine) reconcile(ctx context.Context) {
	cctx, cancel := context.WithTimeout(ctx, m.cfg.ControllerTimeout)
	running, err := m.ctrl.IsRunning(cctx)
	cancel()

	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case err != nil:
		m.logger.Warn("reconcile failed, assuming container stopped",
			"container", m.cfg.Container, "error", err)
		m.setState(StateIdleStopped)
	case running:
		// Already running with no presence memory: count activity from now
		// and let the inactivity timer decide.
		m.tracker.Touch(m.now())
		m.logger.Info("container already running, tracking activity from now",
			"container", m.cfg.Container)
		m.setState(StateCooldownRunning)
	default:
		m.setState(StateIdleStopped)
	}
}

func (m *Machine) step(msg message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch v := msg.(type) {
	case eventMsg:
		m.handleEvent(v.ev)
	case tickMsg:
		m.handleTick(v.now)
	case resultMsg:
		m.handleResult(v)
	case stopRequestMsg:
		m.handleStopRequest()
	}
}

func (m *Machine) handleEvent(ev extractor.Event) {
	metrics.IncEvent(string(ev.Kind))
	if ev.Kind == extractor.KindUnknown {
		return
	}

	// While a transition is in flight the event is latched, not applied, and
	// replayed once the transition resolves. This keeps a login observed
	// mid-stop from being lost, and keeps a logout observed mid-start from
	// racing the start confirmation.
	if m.state == StateTransitioning {
		m.latched = append(m.latched, ev)
		return
	}

	switch ev.Kind {
	case extractor.KindSessionStarted:
		m.tracker.OnSessionStarted(ev.Session, ev.At)
		metrics.SetSessionsActive(m.tracker.ActiveCount())
		m.logger.Info("session started", "session", ev.Session, "active", m.tracker.ActiveCount())
		m.record(history.Event{Type: history.EventSessionStart, OccurredAt: ev.At, Container: m.cfg.Container, Session: ev.Session})
	case extractor.KindSessionEnded:
		m.tracker.OnSessionEnded(ev.Session, ev.At)
		metrics.SetSessionsActive(m.tracker.ActiveCount())
		m.logger.Info("session ended", "session", ev.Session, "active", m.tracker.ActiveCount())
		m.record(history.Event{Type: history.EventSessionEnd, OccurredAt: ev.At, Container: m.cfg.Container, Session: ev.Session})
	case extractor.KindActivity:
		m.tracker.Touch(ev.At)
	case extractor.KindCompanionReady:
		if m.awaitingReady {
			m.awaitingReady = false
			m.logger.Info("companion reported ready", "container", m.cfg.Container)
			m.notify("Headless client is available.")
		}
		return
	}

	switch m.state {
	case StateIdleStopped:
		if ev.Kind == extractor.KindSessionStarted || ev.Kind == extractor.KindActivity {
			m.logger.Info("activity detected, starting companion",
				"container", m.cfg.Container, "kind", string(ev.Kind))
			m.notify("Player activity detected, starting headless client...")
			m.beginTransition(opStart)
		}
	case StateActiveRunning:
		if ev.Kind == extractor.KindSessionEnded && m.tracker.ActiveCount() == 0 {
			m.logger.Info("all sessions ended, entering cooldown",
				"shutdown_delay", m.cfg.ShutdownDelay)
			m.setState(StateCooldownRunning)
		}
	case StateCooldownRunning:
		if ev.Kind == extractor.KindSessionStarted {
			m.setState(StateActiveRunning)
		}
		// Bare activity already refreshed the tracker; the next idle check
		// measures from it.
	}
}

func (m *Machine) handleTick(now time.Time) {
	// A start triggered by bare activity can confirm into active_running with
	// an empty session set; ticks drift it into cooldown.
	if m.state == StateActiveRunning && m.tracker.ActiveCount() == 0 {
		m.setState(StateCooldownRunning)
	}
	if m.state != StateCooldownRunning {
		return
	}
	if !m.tracker.IsIdleFor(m.cfg.ShutdownDelay, now) {
		return
	}

	// Final check against the server's own presence API. Log-derived
	// presence can miss players; the service's answer wins.
	if m.probe != nil {
		ctx, cancel := context.WithTimeout(m.runCtx, m.cfg.ControllerTimeout)
		n, err := m.probe.OnlinePlayers(ctx)
		cancel()
		if err != nil {
			m.logger.Warn("presence probe failed, proceeding with stop", "error", err)
		} else if n > 0 {
			m.logger.Info("players online per API, aborting shutdown", "players", n)
			m.tracker.Touch(now)
			return
		}
	}

	m.logger.Info("idle past shutdown delay, stopping companion",
		"container", m.cfg.Container, "shutdown_delay", m.cfg.ShutdownDelay)
	m.beginTransition(opStop)
}

func (m *Machine) handleStopRequest() {
	switch m.state {
	case StateTransitioning:
		m.stopWanted = true
	case StateActiveRunning, StateCooldownRunning:
		m.logger.Info("stop requested", "container", m.cfg.Container)
		m.beginTransition(opStop)
	}
}

// beginTransition is called with mu held. The controller call itself runs
// outside the lock; its outcome re-enters the inbox as a resultMsg.
func (m *Machine) beginTransition(op transitionOp) {
	m.prior = m.state
	m.pendingOp = op
	m.lastTransitionAt = m.now()
	m.setState(StateTransitioning)
	if op == opStart {
		m.awaitingReady = true
	}
	m.launch(func() {
		err := m.execute(op)
		m.inbox <- resultMsg{op: op, err: err}
	})
}

// execute performs the controller call with bounded retries and exponential
// backoff. Permanent errors abort immediately.
func (m *Machine) execute(op transitionOp) error {
	backoff := m.cfg.RetryBackoff
	var lastErr error
	for attempt := 1; attempt <= m.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			metrics.IncControllerRetry(m.cfg.Container, string(op))
			select {
			case <-time.After(backoff):
			case <-m.runCtx.Done():
				return m.runCtx.Err()
			}
			backoff *= 2
		}
		ctx, cancel := context.WithTimeout(m.runCtx, m.cfg.ControllerTimeout)
		var err error
		if op == opStart {
			err = m.ctrl.EnsureStarted(ctx)
		} else {
			err = m.ctrl.EnsureStopped(ctx)
		}
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if IsPermanent(err) {
			return err
		}
		m.logger.Warn("controller call failed",
			"op", string(op), "attempt", attempt, "max_attempts", m.cfg.MaxAttempts, "error", err)
	}
	return fmt.Errorf("%s of %s failed after %d attempts: %w",
		op, m.cfg.Container, m.cfg.MaxAttempts, lastErr)
}

func (m *Machine) handleResult(r resultMsg) {
	m.pendingOp = ""
	if r.err != nil {
		// Revert to the pre-transition state; a future event re-triggers the
		// attempt. The machine must never sit in transitioning.
		metrics.IncControllerFailure(m.cfg.Container, string(r.op))
		m.lastError = r.err.Error()
		m.logger.Error("transition failed, reverting",
			"op", string(r.op), "state", string(m.prior), "error", r.err)
		if r.op == opStart {
			m.awaitingReady = false
		}
		m.setState(m.prior)
		m.record(history.Event{
			Type: history.EventStateChange, OccurredAt: m.now(),
			Container: m.cfg.Container, State: string(m.prior), Detail: r.err.Error(),
		})
	} else {
		m.lastError = ""
		switch r.op {
		case opStart:
			metrics.IncContainerStart(m.cfg.Container)
			m.record(history.Event{Type: history.EventContainerStart, OccurredAt: m.now(), Container: m.cfg.Container})
			if m.tracker.ActiveCount() > 0 {
				m.setState(StateActiveRunning)
			} else {
				m.setState(StateCooldownRunning)
			}
			m.logger.Info("container started", "container", m.cfg.Container, "state", string(m.state))
		case opStop:
			metrics.IncContainerStop(m.cfg.Container)
			m.record(history.Event{Type: history.EventContainerStop, OccurredAt: m.now(), Container: m.cfg.Container})
			m.setState(StateIdleStopped)
			m.logger.Info("container stopped", "container", m.cfg.Container)
		}
	}

	// Replay events latched during the transition through the normal handler.
	// A latched login after a completed stop starts the container again; a
	// latched logout after a completed start begins the cooldown.
	if len(m.latched) > 0 {
		replay := m.latched
		m.latched = nil
		for _, ev := range replay {
			m.handleEvent(ev)
		}
	}
	if m.stopWanted {
		m.stopWanted = false
		if m.state == StateActiveRunning || m.state == StateCooldownRunning {
			m.beginTransition(opStop)
		}
	}
}

// setState is called with mu held.
func (m *Machine) setState(s State) {
	if m.state == s {
		return
	}
	metrics.RecordStateTransition(string(m.state), string(s))
	m.state = s
	for _, st := range allStates {
		metrics.SetCurrentState(string(st), st == s)
	}
}

// record writes a history event off the step path; audit is best effort and
// must never stall the machine.
func (m *Machine) record(e history.Event) {
	if m.sink == nil {
		return
	}
	m.launch(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.sink.Send(ctx, e); err != nil {
			m.logger.Warn("history sink write failed", "type", string(e.Type), "error", err)
		}
	})
}

func (m *Machine) notify(msg string) {
	if m.notifier == nil {
		return
	}
	m.launch(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := m.notifier.Notify(ctx, msg); err != nil {
			m.logger.Debug("notification failed", "error", err)
		}
	})
}
