// Package routing fans inbound FIX messages out to registered handlers.
//
// A [Router] drains a [Source] (normally an initiator client) on a background
// goroutine. Every message is offered to all handlers concurrently and the
// router waits for all of them before taking the next message, so each
// handler sees messages one at a time and in arrival order. A failing or
// panicking handler is logged and does not affect the other handlers or the
// following messages.
package routing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/quickfixgo/quickfix"
	"github.com/sourcegraph/conc/pool"

	"github.com/koltyakov/fixinit/internal/domain"
	"github.com/koltyakov/fixinit/internal/fixmsg"
)

// Source yields inbound messages in delivery order. Receive returns
// [domain.ErrQueueClosed] once the source is closed and drained.
type Source interface {
	Receive(ctx context.Context) (*quickfix.Message, error)
}

// Router drains one Source into a fixed set of handlers.
type Router struct {
	id       string
	source   Source
	handlers []Registration
	log      *slog.Logger
	metrics  *Metrics

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRouter creates a router named id over source. An empty id gets a random
// one. The registry is snapshotted; later additions are not seen.
func NewRouter(id string, source Source, registry *Registry, logger *slog.Logger) *Router {
	if id == "" {
		id = uuid.NewString()
	}
	if logger == nil {
		logger = slog.Default()
	}
	var handlers []Registration
	if registry != nil {
		handlers = registry.Handlers()
	}
	return &Router{
		id:       id,
		source:   source,
		handlers: handlers,
		log:      logger.With("router", id),
	}
}

// ID returns the router's identifier.
func (r *Router) ID() string {
	return r.id
}

// SetMetrics attaches metrics collectors. It must be called before Start.
func (r *Router) SetMetrics(m *Metrics) {
	r.metrics = m
}

// Start launches the drain loop and returns immediately. The loop outlives
// ctx; use Stop to end it. A router whose loop ended because the source
// closed can be started again.
func (r *Router) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done != nil {
		select {
		case <-r.done:
			r.cancel()
		default:
			return domain.ErrRouterRunning
		}
	}
	r.log.Debug("fix messages router starting", "handlers", len(r.handlers))

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.run(loopCtx, r.done)
	return nil
}

// Stop asks the loop to exit and waits for it. The message being dispatched
// is finished first. If ctx ends before that, Stop returns ctx's error and the
// loop keeps finishing in the background.
func (r *Router) Stop(ctx context.Context) error {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.mu.Unlock()
	if done == nil {
		return nil
	}

	r.log.Debug("fix messages router stopping")
	cancel()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	r.mu.Lock()
	if r.done == done {
		r.cancel, r.done = nil, nil
	}
	r.mu.Unlock()
	r.log.Info("fix messages router stopped")
	return nil
}

// Done is closed when the current drain loop exits. It is nil before Start.
func (r *Router) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

// Close stops the router and waits without a deadline.
func (r *Router) Close() error {
	return r.Stop(context.Background())
}

func (r *Router) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	r.log.Info("fix messages router started")

	for {
		msg, err := r.source.Receive(ctx)
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrQueueClosed):
				r.log.Info("fix messages source closed")
			case ctx.Err() != nil:
			default:
				r.log.Error("receive fix message", "err", err)
			}
			return
		}
		// Handlers finish the current message even when Stop was requested.
		r.Dispatch(context.WithoutCancel(ctx), msg)
	}
}

// Dispatch offers msg to every matching handler concurrently and waits for
// all of them. It returns the handler failures joined together; they have
// already been logged.
func (r *Router) Dispatch(ctx context.Context, msg *quickfix.Message) error {
	msgType := fixmsg.MsgType(msg)
	text := sync.OnceValue(msg.String)
	r.metrics.messageDispatched(r.id, msgType)

	p := pool.New().WithErrors()
	for _, h := range r.handlers {
		if !h.Matches(msg) {
			continue
		}
		p.Go(func() error {
			return r.invoke(ctx, h, msg, msgType, text)
		})
	}
	return p.Wait()
}

func (r *Router) invoke(ctx context.Context, h Registration, msg *quickfix.Message, msgType string, text func() string) (err error) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			err = &domain.HandlerError{Router: r.id, HandlerID: h.ID, MsgType: msgType, Err: fmt.Errorf("panic: %v", rec)}
		}
		r.metrics.handlerDone(r.id, h.ID, time.Since(start), err)
		if err != nil {
			r.log.Error("error while handling fix message", "handler", h.ID, "msg_type", msgType, "fix_message", text(), "err", err)
		}
	}()

	if err := h.invoke(ctx, msg); err != nil {
		return &domain.HandlerError{Router: r.id, HandlerID: h.ID, MsgType: msgType, Err: err}
	}
	return nil
}

// Name identifies the router in service logs.
func (r *Router) Name() string {
	return "fix router " + r.id
}
