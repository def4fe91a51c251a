// Package initiator adapts a QuickFIX/Go initiator session for application
// code. The Client authenticates the session (including in-band password
// rotation), gates outbound sends on logon, and hands every inbound message
// to a queue drained by the message router.
package initiator

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/quickfixgo/quickfix"
	"golang.org/x/time/rate"

	"github.com/koltyakov/fixinit/internal/domain"
	"github.com/koltyakov/fixinit/internal/fixmsg"
)

// Client implements [quickfix.Application] for one initiator session.
type Client struct {
	settings SettingsSource
	resolve  SessionResolver
	log      *slog.Logger
	limiter  *rate.Limiter // nil when sends are not throttled
	engine   Stopper

	queue       *handoffQueue
	ready       *Readiness
	credentials credentialTracker

	// Set between an outbound Logon and the engine reporting the logon.
	logonPending atomic.Bool

	sessMu    sync.RWMutex
	session   Session
	sessionID quickfix.SessionID

	closeOnce sync.Once
}

var _ quickfix.Application = (*Client)(nil)

// New creates a Client reading logon credentials from settings.
func New(settings SettingsSource, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		settings: settings,
		resolve:  ResolveEngineSession,
		log:      logger,
		queue:    newHandoffQueue(),
		ready:    NewReadiness(),
	}
}

// SetLogger replaces the client's logger.
func (c *Client) SetLogger(l *slog.Logger) {
	c.log = l
}

// SetSessionResolver replaces how session handles are resolved on create.
// It must be called before the engine starts.
func (c *Client) SetSessionResolver(r SessionResolver) {
	c.resolve = r
}

// BindEngine makes Logout stop engine, which logs the session out through
// the engine's own logout exchange. It must be called before the engine
// starts.
func (c *Client) BindEngine(engine Stopper) {
	c.engine = engine
}

// SetSendRateLimit throttles outbound sends to perSecond messages with the
// given burst. A non-positive rate disables throttling.
func (c *Client) SetSendRateLimit(perSecond float64, burst int) {
	if perSecond <= 0 {
		c.limiter = nil
		return
	}
	if burst <= 0 {
		burst = 1
	}
	c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
}

// Readiness exposes the logon gate.
func (c *Client) Readiness() *Readiness {
	return c.ready
}

// CredentialState returns a snapshot of the password rotation flags.
func (c *Client) CredentialState() CredentialState {
	return c.credentials.snapshot()
}

// Pending returns the number of inbound messages not yet received.
func (c *Client) Pending() int {
	return c.queue.len()
}

// SendMessage waits for the session to be logged on and passes msg to the
// engine. It fails with [domain.ErrSessionUnavailable] before the engine has
// created the session and with [domain.ErrOperationCancelled] when ctx ends
// or the client is closed while waiting.
func (c *Client) SendMessage(ctx context.Context, msg *quickfix.Message) error {
	if _, _, ok := c.currentSession(); !ok {
		return domain.ErrSessionUnavailable
	}
	if err := c.ready.Wait(ctx); err != nil {
		return err
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return domain.Cancelled(err)
		}
	}

	session, id, ok := c.currentSession()
	if !ok {
		return domain.ErrSessionUnavailable
	}
	if err := session.Send(msg); err != nil {
		return fmt.Errorf("send to %s: %w", id, err)
	}
	return nil
}

// Logout closes the logon gate and logs the session out. Sends issued
// afterwards wait for the next logon.
//
// With a bound engine the engine is stopped. That blocks until the logout
// exchange is over, so Logout must not be called from an engine callback,
// and the stopped engine does not log on again.
func (c *Client) Logout() error {
	c.ready.Reset()
	session, id, ok := c.currentSession()
	if !ok {
		return domain.ErrSessionUnavailable
	}
	if c.engine != nil {
		if err := c.engine.Stop(context.Background()); err != nil {
			return fmt.Errorf("logout %s: %w", id, err)
		}
		return nil
	}
	if err := session.Logout(""); err != nil {
		return fmt.Errorf("logout %s: %w", id, err)
	}
	return nil
}

// Receive returns the next inbound message in engine delivery order. After
// Close it drains what was buffered and then returns [domain.ErrQueueClosed].
func (c *Client) Receive(ctx context.Context) (*quickfix.Message, error) {
	return c.queue.pop(ctx)
}

// Close stops accepting inbound messages, fails blocked senders with
// [domain.ErrOperationCancelled] and releases the session handle.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.queue.close()
		c.ready.Close()
		session, _, _ := c.currentSession()
		if closer, ok := session.(io.Closer); ok {
			err = closer.Close()
		}
	})
	return err
}

func (c *Client) currentSession() (Session, quickfix.SessionID, bool) {
	c.sessMu.RLock()
	defer c.sessMu.RUnlock()
	return c.session, c.sessionID, c.session != nil
}

func (c *Client) enqueue(msg *quickfix.Message, id quickfix.SessionID) {
	if !c.queue.push(msg) {
		c.log.Debug("dropping inbound message after close", "session", id.String(), "msg_type", fixmsg.MsgType(msg))
	}
}

// OnCreate resolves and caches the session handle.
func (c *Client) OnCreate(id quickfix.SessionID) {
	session, err := c.resolve(id)
	if err != nil {
		c.log.Error("resolve session", "session", id.String(), "err", err)
		return
	}
	c.sessMu.Lock()
	c.session = session
	c.sessionID = id
	c.sessMu.Unlock()
	c.log.Debug("session created", "session", id.String())
}

// OnLogon opens the logon gate.
func (c *Client) OnLogon(id quickfix.SessionID) {
	c.log.Debug("logon", "session", id.String())
	c.logonPending.Store(false)
	c.ready.Set()
}

// OnLogout leaves the logon gate open: a remote logout is followed by the
// engine's own reconnect, and only a local Logout closes the gate.
func (c *Client) OnLogout(id quickfix.SessionID) {
	c.log.Debug("logout", "session", id.String())
}

// ToAdmin writes credentials into outbound logons.
func (c *Client) ToAdmin(msg *quickfix.Message, id quickfix.SessionID) {
	if !fixmsg.IsOfType(msg, fixmsg.MsgTypeLogon) {
		return
	}
	var creds Credentials
	if c.settings != nil {
		creds = c.settings.Credentials(id)
	}
	d := c.credentials.prepareLogon(msg, creds)
	c.logonPending.Store(true)
	switch {
	case d.usedRotated:
		c.log.Debug("using new password as password", "session", id.String())
	case d.requestedRotation:
		c.log.Debug("requesting password change", "session", id.String())
	}
}

// ToApp has nothing to add to application messages.
func (c *Client) ToApp(*quickfix.Message, quickfix.SessionID) error {
	return nil
}

// FromAdmin tracks password rotation replies and queues the message.
func (c *Client) FromAdmin(msg *quickfix.Message, id quickfix.SessionID) quickfix.MessageRejectError {
	if fixmsg.IsOfType(msg, fixmsg.MsgTypeLogon) {
		c.logonPending.Store(false)
	}
	c.trackRotation(msg, id)
	c.enqueue(msg, id)
	return nil
}

// observeIncoming sees raw inbound bytes ahead of the engine. A Logout that
// answers a pending Logon is dropped by the engine without reaching
// FromAdmin, so it is tracked and queued from here.
func (c *Client) observeIncoming(id quickfix.SessionID, raw []byte) {
	if !c.logonPending.Load() {
		return
	}
	msg := quickfix.NewMessage()
	if err := quickfix.ParseMessage(msg, bytes.NewBuffer(bytes.Clone(raw))); err != nil {
		c.log.Debug("parse logon reply", "session", id.String(), "err", err)
		return
	}
	if !fixmsg.IsOfType(msg, fixmsg.MsgTypeLogout) {
		return
	}
	c.logonPending.Store(false)
	c.trackRotation(msg, id)
	c.enqueue(msg, id)
}

func (c *Client) trackRotation(msg *quickfix.Message, id quickfix.SessionID) {
	switch c.credentials.observeReply(msg) {
	case RotationConfirmed:
		c.log.Debug("new password was set", "session", id.String())
	case RotationRejectedInvalidOld:
		c.log.Debug("old password rejected; will log on with new password", "session", id.String())
	case RotationOutcomeUnknown:
		c.log.Debug("password change failed for unknown reason; will retry", "session", id.String(), "text", fixmsg.Text(msg))
	}
}

// FromApp queues the message.
func (c *Client) FromApp(msg *quickfix.Message, id quickfix.SessionID) quickfix.MessageRejectError {
	c.enqueue(msg, id)
	return nil
}
