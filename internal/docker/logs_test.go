package docker

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/docker/docker/pkg/stdcopy"

	"github.com/haldis/idlewatch/internal/lifecycle"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func muxedPayload(t *testing.T, stdout []string, stderr []string) io.ReadCloser {
	t.Helper()
	var buf bytes.Buffer
	out := stdcopy.NewStdWriter(&buf, stdcopy.Stdout)
	errW := stdcopy.NewStdWriter(&buf, stdcopy.Stderr)
	for _, l := range stdout {
		if _, err := out.Write([]byte(l + "\n")); err != nil {
			t.Fatalf("encode stdout: %v", err)
		}
	}
	for _, l := range stderr {
		if _, err := errW.Write([]byte(l + "\n")); err != nil {
			t.Fatalf("encode stderr: %v", err)
		}
	}
	return io.NopCloser(&buf)
}

func collect(t *testing.T, s *LogStreamer, want int) ([]string, error) {
	t.Helper()
	lines := make(chan string, want+8)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := s.Stream(ctx, time.Now(), lines)
	close(lines)
	var got []string
	for l := range lines {
		got = append(got, l)
	}
	return got, err
}

func TestStreamDemuxesMultiplexedLogs(t *testing.T) {
	f := &fakeEngine{logs: muxedPayload(t,
		[]string{"GET /launcher/profile/login", "GET /fika/update/ping"},
		[]string{"warn: something"},
	)}
	s := &LogStreamer{api: f, container: "server"}

	got, err := collect(t, s, 3)
	if !errors.Is(err, io.EOF) {
		t.Fatalf("Stream error = %v, want io.EOF at end of stream", err)
	}
	if len(got) != 3 {
		t.Fatalf("lines = %v, want 3", got)
	}
	if got[0] != "GET /launcher/profile/login" {
		t.Fatalf("first line = %q", got[0])
	}
}

func TestStreamRawWhenTTY(t *testing.T) {
	f := &fakeEngine{
		tty:  true,
		logs: io.NopCloser(bytes.NewBufferString("line one\nline two\n")),
	}
	s := &LogStreamer{api: f, container: "server"}

	got, err := collect(t, s, 2)
	if !errors.Is(err, io.EOF) {
		t.Fatalf("Stream error = %v, want io.EOF", err)
	}
	if len(got) != 2 || got[1] != "line two" {
		t.Fatalf("lines = %v", got)
	}
}

func TestStreamOpenErrorClassified(t *testing.T) {
	f := &fakeEngine{logsErr: errors.New("daemon unavailable")}
	s := &LogStreamer{api: f, container: "server"}

	lines := make(chan string, 1)
	err := s.Stream(context.Background(), time.Now(), lines)
	var ce *lifecycle.ControllerError
	if !errors.As(err, &ce) {
		t.Fatalf("error = %v (%T), want *ControllerError", err, err)
	}
}
