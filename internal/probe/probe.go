package probe

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Client talks to the game server's own HTTP API. The server answers over
// HTTPS with a self-signed certificate, so verification is skipped by
// default, matching how the launcher itself connects.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds probe client configuration.
type Config struct {
	BaseURL   string        // e.g. https://fika-server:6969
	Timeout   time.Duration // per-request; default 10s
	VerifyTLS bool          // default false: self-signed server cert
	Logger    *slog.Logger
}

func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	transport := &http.Transport{}
	if !cfg.VerifyTLS {
		// #nosec G402 -- the SPT server presents a self-signed certificate
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		logger:  cfg.Logger,
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
	}
}

// The server rejects requests without this header pair.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("responsecompressed", "0")
	req.Header.Set("Content-Type", "application/json")
}

// Ping checks the launcher ping endpoint; a 200 means the server is up.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/launcher/ping", nil)
	if err != nil {
		return err
	}
	c.setHeaders(req)
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("ping %s: %w", c.baseURL, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ping %s: status %d", c.baseURL, resp.StatusCode)
	}
	return nil
}

// OnlinePlayers returns the number of players the presence endpoint reports.
// The endpoint answers with a JSON array, one element per connected player.
func (c *Client) OnlinePlayers(ctx context.Context) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/fika/presence/get", nil)
	if err != nil {
		return 0, err
	}
	c.setHeaders(req)
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("presence check: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("presence check: status %d", resp.StatusCode)
	}
	var players []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&players); err != nil {
		return 0, fmt.Errorf("presence check: decode: %w", err)
	}
	return len(players), nil
}

// Notify pushes an in-game notification through the server. Best effort; the
// machine logs and moves on when this fails.
func (c *Client) Notify(ctx context.Context, message string) error {
	payload, err := json.Marshal(map[string]string{"notification": message})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/fika/notification", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	c.setHeaders(req)
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("notify: status %d", resp.StatusCode)
	}
	return nil
}

// WaitReady polls Ping until the server answers or the timeout elapses.
func (c *Client) WaitReady(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := c.Ping(pctx)
		cancel()
		if err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("server not ready after %s: %w", timeout, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}
