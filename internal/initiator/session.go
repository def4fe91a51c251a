package initiator

import (
	"context"
	"errors"

	"github.com/quickfixgo/quickfix"
)

// Session is the engine-side handle of one FIX session. Send is fire and
// forget: a nil error means the engine accepted the message for sending.
type Session interface {
	Send(msg *quickfix.Message) error
	Logout(reason string) error
}

// SessionResolver resolves the handle for a session the engine just created.
type SessionResolver func(id quickfix.SessionID) (Session, error)

// Stopper stops a running engine. [Starter] implements it.
type Stopper interface {
	Stop(ctx context.Context) error
}

// ErrLogoutUnbound is returned when an engine session is asked to log out
// but no engine was bound with [Client.BindEngine].
var ErrLogoutUnbound = errors.New("engine session logout needs a bound engine")

// ResolveEngineSession binds id to the QuickFIX/Go session registry.
func ResolveEngineSession(id quickfix.SessionID) (Session, error) {
	return engineSession{id: id}, nil
}

type engineSession struct {
	id quickfix.SessionID
}

func (s engineSession) Send(msg *quickfix.Message) error {
	return quickfix.SendToTarget(msg, s.id)
}

// Logout fails: the engine runs its logout exchange only for sessions it
// stops, and a Logout sent as a plain message is answered as a new logout
// request.
func (s engineSession) Logout(string) error {
	return ErrLogoutUnbound
}
