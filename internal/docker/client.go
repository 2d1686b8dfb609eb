package docker

import (
	"context"
	"fmt"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
)

// engineAPI is the slice of the Docker Engine client the package relies on.
// *client.Client satisfies it; tests substitute a fake.
type engineAPI interface {
	ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (logsReader, error)
}

// logsReader matches the io.ReadCloser returned by ContainerLogs without
// forcing fakes to import the client package.
type logsReader = interface {
	Read(p []byte) (int, error)
	Close() error
}

// Client wraps the Docker Engine API client with the options this daemon
// needs: environment configuration (DOCKER_HOST et al.) plus version
// negotiation, optionally overridden by an explicit host.
type Client struct {
	api *client.Client
}

func NewClient(host string) (*Client, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}
	c, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}
	return &Client{api: c}, nil
}

func (c *Client) Close() error { return c.api.Close() }

// api adapter: *client.Client returns io.ReadCloser for logs, which satisfies
// logsReader directly.
type clientAPI struct{ c *client.Client }

func (a clientAPI) ContainerInspect(ctx context.Context, id string) (container.InspectResponse, error) {
	return a.c.ContainerInspect(ctx, id)
}

func (a clientAPI) ContainerStart(ctx context.Context, id string, o container.StartOptions) error {
	return a.c.ContainerStart(ctx, id, o)
}

func (a clientAPI) ContainerStop(ctx context.Context, id string, o container.StopOptions) error {
	return a.c.ContainerStop(ctx, id, o)
}

func (a clientAPI) ContainerLogs(ctx context.Context, id string, o container.LogsOptions) (logsReader, error) {
	return a.c.ContainerLogs(ctx, id, o)
}
