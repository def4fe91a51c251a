package initiator

import (
	"context"
	"errors"
	"sync"

	"github.com/koltyakov/fixinit/internal/domain"
)

var errReadinessClosed = errors.New("login readiness closed")

// Readiness is a resettable gate that outbound sends wait on. It starts not
// ready, opens on a successful logon and closes again on a local logout.
// Send is the only place that waits on it.
type Readiness struct {
	mu    sync.Mutex
	ready bool
	open  chan struct{} // closed while ready

	done      chan struct{}
	closeOnce sync.Once
}

// NewReadiness returns a gate in the not-ready state.
func NewReadiness() *Readiness {
	return &Readiness{
		open: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Set marks the gate ready and releases every waiter. It is idempotent.
func (r *Readiness) Set() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ready {
		return
	}
	r.ready = true
	close(r.open)
}

// Reset makes subsequent waits block again. It is idempotent.
func (r *Readiness) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.ready {
		return
	}
	r.ready = false
	r.open = make(chan struct{})
}

// IsSet reports whether the gate is currently ready.
func (r *Readiness) IsSet() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ready
}

// Wait blocks until the gate is ready. It fails with
// [domain.ErrOperationCancelled] when ctx is done or the gate is closed.
func (r *Readiness) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return domain.Cancelled(errReadinessClosed)
	default:
	}

	r.mu.Lock()
	open := r.open
	r.mu.Unlock()

	select {
	case <-open:
		return nil
	case <-ctx.Done():
		return domain.Cancelled(context.Cause(ctx))
	case <-r.done:
		return domain.Cancelled(errReadinessClosed)
	}
}

// Close fails every current and future waiter that is not already released.
func (r *Readiness) Close() {
	r.closeOnce.Do(func() {
		close(r.done)
	})
}
