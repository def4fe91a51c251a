package log

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/quickfixgo/quickfix"
)

// IncomingHook sees every raw inbound message of a session before the engine
// parses it. It runs on the session's goroutine and must not retain raw.
type IncomingHook func(id quickfix.SessionID, raw []byte)

// FIXLogFactory implements [quickfix.LogFactory] on top of slog. Raw
// messages are logged at debug level with SOH shown as '|' and passwords
// masked.
type FIXLogFactory struct {
	log      *slog.Logger
	incoming IncomingHook
}

// NewFIXLogFactory returns a factory writing to logger (slog.Default when nil).
func NewFIXLogFactory(logger *slog.Logger) *FIXLogFactory {
	if logger == nil {
		logger = slog.Default()
	}
	return &FIXLogFactory{log: logger}
}

// SetIncomingHook installs hook on session logs created afterwards.
func (f *FIXLogFactory) SetIncomingHook(hook IncomingHook) {
	f.incoming = hook
}

func (f *FIXLogFactory) Create() (quickfix.Log, error) {
	return &fixLog{log: f.log.With("component", "fix")}, nil
}

func (f *FIXLogFactory) CreateSessionLog(sessionID quickfix.SessionID) (quickfix.Log, error) {
	l := &fixLog{log: f.log.With("component", "fix", "session", sessionID.String())}
	if hook := f.incoming; hook != nil {
		l.incoming = func(raw []byte) { hook(sessionID, raw) }
	}
	return l, nil
}

type fixLog struct {
	log      *slog.Logger
	incoming func(raw []byte)
}

func (l *fixLog) OnIncoming(raw []byte) {
	if l.incoming != nil {
		l.incoming(raw)
	}
	if !l.log.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	l.log.Debug("fix incoming", "raw", printable(raw))
}

func (l *fixLog) OnOutgoing(raw []byte) {
	if !l.log.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	l.log.Debug("fix outgoing", "raw", printable(raw))
}

func (l *fixLog) OnEvent(text string) {
	l.log.Debug("fix event", "text", text)
}

func (l *fixLog) OnEventf(format string, args ...interface{}) {
	l.OnEvent(fmt.Sprintf(format, args...))
}

// Password(554) and NewPassword(925).
var maskedTags = []string{"554=", "925="}

const mask = "***"

func printable(raw []byte) string {
	fields := strings.Split(string(raw), "\x01")
	for i, f := range fields {
		for _, prefix := range maskedTags {
			if strings.HasPrefix(f, prefix) {
				fields[i] = prefix + mask
				break
			}
		}
	}
	return strings.Join(fields, "|")
}
