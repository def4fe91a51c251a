// Package domain holds the error taxonomy shared by the initiator, the
// message router, and the outer layers that wire them together.
package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for well-known failure conditions that cross package
// boundaries.  Callers should use [errors.Is] to match these.
var (
	// ErrSessionUnavailable means the engine has not created the session yet,
	// so there is no handle to send through or log out of.
	ErrSessionUnavailable = errors.New("session unavailable")

	// ErrOperationCancelled is returned when a cooperative wait is abandoned
	// because its context was cancelled or its owner was closed.
	ErrOperationCancelled = errors.New("operation cancelled")

	// ErrQueueClosed is returned by a drained handoff queue after Close.
	ErrQueueClosed = errors.New("handoff queue closed")

	// ErrDuplicateHandler is returned when a handler ID is registered twice
	// with the same registry.
	ErrDuplicateHandler = errors.New("duplicate handler id")

	// ErrRouterRunning is returned by Start on a router that is already running.
	ErrRouterRunning = errors.New("router already running")
)

// Cancelled wraps cause (usually a context error) so that the result matches
// both [ErrOperationCancelled] and the cause itself.
func Cancelled(cause error) error {
	if cause == nil {
		return ErrOperationCancelled
	}
	return fmt.Errorf("%w: %w", ErrOperationCancelled, cause)
}

// HandlerError wraps a failure raised by one registered message handler.
type HandlerError struct {
	Router    string
	HandlerID string
	MsgType   string
	Err       error
}

func (e *HandlerError) Error() string {
	if e.Router != "" {
		return fmt.Sprintf("router %s: handler %s (msg type %q): %v", e.Router, e.HandlerID, e.MsgType, e.Err)
	}
	return fmt.Sprintf("handler %s (msg type %q): %v", e.HandlerID, e.MsgType, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}
