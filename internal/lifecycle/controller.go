package lifecycle

import (
	"context"
	"errors"
	"fmt"
)

// Controller issues intent against a container runtime. All operations are
// idempotent at the boundary: starting a running container and stopping a
// stopped one are no-ops. Calls may block; they carry the caller's context
// deadline.
type Controller interface {
	EnsureStarted(ctx context.Context) error
	EnsureStopped(ctx context.Context) error
	IsRunning(ctx context.Context) (bool, error)
}

// ErrorKind categorizes controller failures for retry decisions.
type ErrorKind string

const (
	ErrNotFound         ErrorKind = "not_found"
	ErrPermissionDenied ErrorKind = "permission_denied"
	ErrTimeout          ErrorKind = "timeout"
	ErrUnknown          ErrorKind = "unknown"
)

// ControllerError wraps a runtime error with its retry classification.
// NotFound and PermissionDenied are permanent: retrying cannot help until an
// operator intervenes. Timeout and Unknown are transient.
type ControllerError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *ControllerError) Error() string {
	return fmt.Sprintf("controller %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *ControllerError) Unwrap() error { return e.Err }

// Permanent reports whether retrying the operation is pointless.
func (e *ControllerError) Permanent() bool {
	return e.Kind == ErrNotFound || e.Kind == ErrPermissionDenied
}

// IsPermanent reports whether err carries a permanent controller error.
func IsPermanent(err error) bool {
	var ce *ControllerError
	return errors.As(err, &ce) && ce.Permanent()
}

// PresenceProbe asks the observed service directly how many players are
// online. Used as a final check before stopping: log-derived presence can be
// stale, the service's own answer is not.
type PresenceProbe interface {
	OnlinePlayers(ctx context.Context) (int, error)
}
