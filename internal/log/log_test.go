package log

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/quickfixgo/quickfix"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), "level %q", in)
	}
}

func TestNewWithWriterFiltersBelowLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "warn")
	logger.Info("hidden")
	logger.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestFIXLogFactoryWritesSessionScopedLines(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	factory := NewFIXLogFactory(NewWithWriter(&buf, "debug"))

	id := quickfix.SessionID{BeginString: "FIX.4.4", SenderCompID: "CLIENT", TargetCompID: "BROKER"}
	sessionLog, err := factory.CreateSessionLog(id)
	require.NoError(t, err)

	sessionLog.OnIncoming([]byte("8=FIX.4.4\x0135=A\x01"))
	sessionLog.OnEventf("connected to %s", "broker")

	out := buf.String()
	assert.Contains(t, out, "8=FIX.4.4|35=A|")
	assert.Contains(t, out, "connected to broker")
	assert.Contains(t, out, id.String())
}

func TestFIXLogFactorySkipsRawBelowDebug(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	factory := NewFIXLogFactory(NewWithWriter(&buf, "info"))
	globalLog, err := factory.Create()
	require.NoError(t, err)

	globalLog.OnOutgoing([]byte("8=FIX.4.4\x01"))
	assert.Empty(t, buf.String())
}

func TestFIXLogMasksPasswords(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	factory := NewFIXLogFactory(NewWithWriter(&buf, "debug"))
	globalLog, err := factory.Create()
	require.NoError(t, err)

	globalLog.OnOutgoing([]byte("8=FIX.4.4\x0135=A\x01553=trader\x01554=old-secret\x01925=new-secret\x0110=000\x01"))

	out := buf.String()
	assert.Contains(t, out, "553=trader|554=***|925=***|10=000|")
	assert.NotContains(t, out, "old-secret")
	assert.NotContains(t, out, "new-secret")
}

func TestFIXLogIncomingHookSeesRawBytesAtAnyLevel(t *testing.T) {
	t.Parallel()

	var (
		gotID  quickfix.SessionID
		gotRaw string
	)
	factory := NewFIXLogFactory(NewWithWriter(&bytes.Buffer{}, "error"))
	factory.SetIncomingHook(func(id quickfix.SessionID, raw []byte) {
		gotID, gotRaw = id, string(raw)
	})

	id := quickfix.SessionID{BeginString: "FIX.4.4", SenderCompID: "CLIENT", TargetCompID: "BROKER"}
	sessionLog, err := factory.CreateSessionLog(id)
	require.NoError(t, err)

	sessionLog.OnIncoming([]byte("8=FIX.4.4\x0135=5\x01"))
	sessionLog.OnOutgoing([]byte("8=FIX.4.4\x0135=0\x01"))

	assert.Equal(t, id, gotID)
	assert.Equal(t, "8=FIX.4.4\x0135=5\x01", gotRaw)
}
