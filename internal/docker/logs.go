package docker

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"
)

// LogStreamer follows a container's log output and emits text lines. The
// stream is infinite while the container runs; any termination (container
// restart, daemon hiccup, rotation) surfaces as an error and the caller
// decides whether to reopen.
type LogStreamer struct {
	api       engineAPI
	container string
}

func NewLogStreamer(c *Client, containerName string) *LogStreamer {
	return &LogStreamer{api: clientAPI{c: c.api}, container: containerName}
}

// Stream follows logs from `since` onward, sending each line to lines. It
// blocks until the stream ends or ctx is cancelled. A cleanly closed stream
// returns io.EOF so callers can tell it apart from cancellation.
func (s *LogStreamer) Stream(ctx context.Context, since time.Time, lines chan<- string) error {
	// TTY containers emit a raw byte stream; non-TTY output is multiplexed
	// with stdcopy frames and must be demuxed.
	tty := false
	if insp, err := s.api.ContainerInspect(ctx, s.container); err == nil && insp.Config != nil {
		tty = insp.Config.Tty
	}

	rc, err := s.api.ContainerLogs(ctx, s.container, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
		Since:      strconv.FormatInt(since.Unix(), 10),
	})
	if err != nil {
		return classify("logs", err)
	}
	defer func() { _ = rc.Close() }()

	var r io.Reader = rc
	if !tty {
		pr, pw := io.Pipe()
		go func() {
			_, cErr := stdcopy.StdCopy(pw, pw, rc)
			pw.CloseWithError(cErr)
		}()
		r = pr
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		select {
		case lines <- sc.Text():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := sc.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("log stream for %s: %w", s.container, err)
	}
	return io.EOF
}
