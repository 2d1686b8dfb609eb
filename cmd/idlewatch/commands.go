package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/haldis/idlewatch"
	"github.com/haldis/idlewatch/internal/history/factory"
	"github.com/haldis/idlewatch/internal/logger"
	"github.com/haldis/idlewatch/internal/probe"
	"github.com/haldis/idlewatch/pkg/client"
)

type command struct {
	out func(format string, a ...any)
}

func newCommand() command {
	return command{out: func(format string, a ...any) {
		fmt.Printf(format, a...)
	}}
}

func (c command) apiClient(url string, timeout time.Duration) *client.Client {
	cfg := client.DefaultConfig()
	if url != "" {
		cfg.BaseURL = url
	}
	if timeout > 0 {
		cfg.Timeout = timeout
	}
	return client.New(cfg)
}

// Serve runs the daemon until SIGINT/SIGTERM.
func (c command) Serve(f ServeFlags) error {
	cfg, err := idlewatch.LoadConfig(f.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, logCloser, err := logger.Setup(cfg.LoggerConfig())
	if err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}
	defer func() { _ = logCloser.Close() }()
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dock, err := idlewatch.NewDocker(cfg.Docker.Host)
	if err != nil {
		return fmt.Errorf("connect docker: %w", err)
	}
	defer func() { _ = dock.Close() }()

	rules, err := cfg.BuildRules()
	if err != nil {
		return err
	}

	w := idlewatch.New(idlewatch.Options{
		Machine: idlewatch.MachineConfig{
			Container:         cfg.Monitor.Container,
			ShutdownDelay:     cfg.Monitor.ShutdownDelay,
			ControllerTimeout: cfg.Monitor.ControllerTimeout,
			MaxAttempts:       cfg.Monitor.MaxAttempts,
			RetryBackoff:      cfg.Monitor.RetryBackoff,
		},
		Monitor: idlewatch.MonitorConfig{PollInterval: cfg.Monitor.PollInterval},
		Rules:   rules,
		Logger:  log,
	}, dock.Controller(cfg.Monitor.Container, cfg.Docker.StopTimeout),
		dock.LogSource(cfg.Monitor.SourceContainer))

	if cfg.Probe.Enabled {
		p := probe.New(probe.Config{
			BaseURL:   cfg.Probe.BaseURL,
			Timeout:   cfg.Probe.Timeout,
			VerifyTLS: cfg.Probe.VerifyTLS,
			Logger:    log,
		})
		w.Machine().SetProbe(p)
		w.Machine().SetNotifier(p)
		// Best effort: the server may still be booting when we come up.
		go func() {
			if err := p.WaitReady(ctx, 2*time.Minute); err != nil {
				log.Warn("game server not reachable yet", "url", cfg.Probe.BaseURL, "error", err)
			} else {
				log.Info("game server reachable", "url", cfg.Probe.BaseURL)
			}
		}()
	}

	if cfg.History.Enabled {
		sink, err := factory.NewSinkFromDSN(cfg.History.DSN)
		if err != nil {
			return fmt.Errorf("open history sink: %w", err)
		}
		defer func() { _ = sink.Close() }()
		w.Machine().SetHistorySink(sink)
	}

	if cfg.Metrics.Enabled {
		if err := idlewatch.RegisterMetricsDefault(); err != nil {
			log.Warn("metrics registration failed", "error", err)
		}
		go func() {
			if err := idlewatch.ServeMetrics(cfg.Metrics.Listen); err != nil {
				log.Error("metrics server stopped", "error", err)
			}
		}()
	}

	if cfg.Server.Enabled {
		srv, err := idlewatch.NewHTTPServer(cfg.Server.Listen, cfg.Server.BasePath, w)
		if err != nil {
			return fmt.Errorf("start api server: %w", err)
		}
		defer func() {
			shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shCtx)
		}()
		log.Info("api server listening", "addr", cfg.Server.Listen, "base", cfg.Server.BasePath)
	}

	log.Info("watching",
		"source", cfg.Monitor.SourceContainer,
		"companion", cfg.Monitor.Container,
		"shutdown_delay", cfg.Monitor.ShutdownDelay)
	err = w.Run(ctx)
	if ctx.Err() != nil {
		log.Info("shutting down")
		return nil
	}
	return err
}

// Status prints the daemon's machine snapshot, optionally in watch mode.
func (c command) Status(f StatusFlags) error {
	api := c.apiClient(f.APIUrl, f.APITimeout)
	for {
		st, err := api.Status(context.Background())
		if err != nil {
			return err
		}
		c.printStatus(st)
		if !f.Watch {
			return nil
		}
		interval := f.Interval
		if interval <= 0 {
			interval = 2 * time.Second
		}
		time.Sleep(interval)
	}
}

func (c command) printStatus(st *client.Status) {
	sessions := append([]string(nil), st.ActiveSessions...)
	sort.Strings(sessions)
	c.out("container: %s\n", st.Container)
	c.out("state:     %s\n", st.State)
	c.out("sessions:  %d", len(sessions))
	if len(sessions) > 0 {
		c.out(" (%s)", strings.Join(sessions, ", "))
	}
	c.out("\n")
	if !st.LastActivityAt.IsZero() {
		c.out("last activity: %s\n", st.LastActivityAt.Format(time.RFC3339))
	}
	if st.LastError != "" {
		c.out("last error: %s\n", st.LastError)
	}
}

// Activity injects a manual activity event into the daemon.
func (c command) Activity(f ActivityFlags) error {
	api := c.apiClient(f.APIUrl, f.APITimeout)
	if err := api.Activity(context.Background(), f.Session); err != nil {
		return err
	}
	if f.Session != "" {
		c.out("activity recorded for session %s\n", f.Session)
	} else {
		c.out("activity recorded\n")
	}
	return nil
}

// Stop asks the daemon to stop the companion container.
func (c command) Stop(f StopFlags) error {
	api := c.apiClient(f.APIUrl, f.APITimeout)
	if err := api.Stop(context.Background()); err != nil {
		return err
	}
	c.out("stop requested\n")
	return nil
}
