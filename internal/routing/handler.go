package routing

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/quickfixgo/quickfix"

	"github.com/koltyakov/fixinit/internal/domain"
	"github.com/koltyakov/fixinit/internal/fixmsg"
)

// Handler processes inbound messages of any type.
type Handler interface {
	HandleMessage(ctx context.Context, msg *quickfix.Message) error
}

// HandlerFunc adapts a plain function to [Handler].
type HandlerFunc func(ctx context.Context, msg *quickfix.Message) error

func (f HandlerFunc) HandleMessage(ctx context.Context, msg *quickfix.Message) error {
	return f(ctx, msg)
}

// Registration is one entry of a [Registry]: either generic (MsgType empty,
// sees every message) or typed (sees only messages of MsgType, converted to
// their typed form before the handler runs).
type Registration struct {
	ID      string
	MsgType string

	invoke func(ctx context.Context, msg *quickfix.Message) error
}

// Generic registers h for every inbound message. A nil h is rejected by
// [Registry.Add].
func Generic(id string, h Handler) Registration {
	if h == nil {
		return Registration{ID: id}
	}
	return Registration{ID: id, invoke: h.HandleMessage}
}

// Typed registers fn for messages of msgType. decode converts the raw
// message into its typed view, for example executionreport.FromMessage.
// A nil decode or fn is rejected by [Registry.Add].
func Typed[T any](id, msgType string, decode func(*quickfix.Message) T, fn func(ctx context.Context, msg T) error) Registration {
	if decode == nil || fn == nil {
		return Registration{ID: id, MsgType: msgType}
	}
	return Registration{
		ID:      id,
		MsgType: msgType,
		invoke: func(ctx context.Context, msg *quickfix.Message) error {
			return fn(ctx, decode(msg))
		},
	}
}

// Matches reports whether the registration wants msg. A typed registration
// silently skips other message types.
func (r Registration) Matches(msg *quickfix.Message) bool {
	return r.MsgType == "" || fixmsg.IsOfType(msg, r.MsgType)
}

// Registry is an ordered, append-only set of registrations. It is filled at
// wiring time and then handed to a router.
type Registry struct {
	regs []Registration
	ids  map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{ids: make(map[string]struct{})}
}

// Add appends reg. An empty ID gets a random one; a repeated ID fails with
// [domain.ErrDuplicateHandler].
func (r *Registry) Add(reg Registration) error {
	if reg.invoke == nil {
		return fmt.Errorf("handler %q has no handle function", reg.ID)
	}
	if reg.ID == "" {
		reg.ID = uuid.NewString()
	}
	if _, exists := r.ids[reg.ID]; exists {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateHandler, reg.ID)
	}
	r.ids[reg.ID] = struct{}{}
	r.regs = append(r.regs, reg)
	return nil
}

// MustAdd is like Add but panics on error.
func (r *Registry) MustAdd(reg Registration) *Registry {
	if err := r.Add(reg); err != nil {
		panic(err)
	}
	return r
}

// Handlers returns the registrations in the order they were added.
func (r *Registry) Handlers() []Registration {
	return append([]Registration(nil), r.regs...)
}

func (r *Registry) Len() int {
	return len(r.regs)
}
