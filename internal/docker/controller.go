package docker

import (
	"context"
	"log/slog"
	"time"

	"github.com/docker/docker/api/types/container"
)

// Controller implements lifecycle.Controller against a named container. All
// operations inspect first, so issuing a start against a running container or
// a stop against a stopped one is a no-op: the machine may replay latched
// intents and must be able to do so safely.
type Controller struct {
	api         engineAPI
	container   string
	stopTimeout time.Duration
	logger      *slog.Logger
}

func NewController(c *Client, containerName string, stopTimeout time.Duration) *Controller {
	return &Controller{
		api:         clientAPI{c: c.api},
		container:   containerName,
		stopTimeout: stopTimeout,
		logger:      slog.Default(),
	}
}

func (c *Controller) SetLogger(l *slog.Logger) { c.logger = l }

func (c *Controller) EnsureStarted(ctx context.Context) error {
	insp, err := c.api.ContainerInspect(ctx, c.container)
	if err != nil {
		return classify("start", err)
	}
	if insp.State != nil && insp.State.Running {
		c.logger.Debug("container already running", "container", c.container)
		return nil
	}
	if err := c.api.ContainerStart(ctx, c.container, container.StartOptions{}); err != nil {
		return classify("start", err)
	}
	c.logger.Info("started container", "container", c.container)
	return nil
}

func (c *Controller) EnsureStopped(ctx context.Context) error {
	insp, err := c.api.ContainerInspect(ctx, c.container)
	if err != nil {
		return classify("stop", err)
	}
	if insp.State == nil || !insp.State.Running {
		c.logger.Debug("container already stopped", "container", c.container)
		return nil
	}
	opts := container.StopOptions{}
	if c.stopTimeout > 0 {
		secs := int(c.stopTimeout.Seconds())
		opts.Timeout = &secs
	}
	if err := c.api.ContainerStop(ctx, c.container, opts); err != nil {
		return classify("stop", err)
	}
	c.logger.Info("stopped container", "container", c.container)
	return nil
}

func (c *Controller) IsRunning(ctx context.Context) (bool, error) {
	insp, err := c.api.ContainerInspect(ctx, c.container)
	if err != nil {
		return false, classify("inspect", err)
	}
	return insp.State != nil && insp.State.Running, nil
}
