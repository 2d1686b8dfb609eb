package docker

import (
	"context"
	"errors"

	"github.com/docker/docker/errdefs"

	"github.com/haldis/idlewatch/internal/lifecycle"
)

// classify maps Docker Engine errors onto the controller error taxonomy so
// the lifecycle machine can tell permanent failures from transient ones.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	kind := lifecycle.ErrUnknown
	switch {
	case errdefs.IsNotFound(err):
		kind = lifecycle.ErrNotFound
	case errdefs.IsUnauthorized(err), errdefs.IsForbidden(err):
		kind = lifecycle.ErrPermissionDenied
	case errdefs.IsDeadline(err), errors.Is(err, context.DeadlineExceeded):
		kind = lifecycle.ErrTimeout
	}
	return &lifecycle.ControllerError{Kind: kind, Op: op, Err: err}
}
