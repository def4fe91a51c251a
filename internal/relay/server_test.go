package relay

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koltyakov/fixinit/internal/fixmsg"
	"github.com/koltyakov/fixinit/internal/fixtest"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRelay(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "fixinit_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	s := New(Config{Gatherer: reg}, discardLogger())
	ts := httptest.NewServer(s.Routes())
	t.Cleanup(func() {
		ts.Close()
		_ = s.Stop(context.Background())
	})
	return s, ts
}

func dialFeed(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/feed"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev Event
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestFeedBroadcastsMessages(t *testing.T) {
	t.Parallel()

	s, ts := newTestRelay(t)
	conn := dialFeed(t, ts)
	assert.Equal(t, KindHello, readEvent(t, conn).Kind)
	assert.Eventually(t, func() bool { return s.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	msg := fixtest.Message("8", fixmsg.TagText, "filled")
	msg.Header.SetString(fixmsg.TagSenderCompID, "BROKER")
	msg.Header.SetString(fixmsg.TagTargetCompID, "CLIENT")
	require.NoError(t, s.Handler("orders").HandleMessage(context.Background(), msg))

	ev := readEvent(t, conn)
	assert.Equal(t, KindMessage, ev.Kind)
	assert.Equal(t, "orders", ev.Router)
	assert.Equal(t, "BROKER->CLIENT", ev.Session)
	assert.Equal(t, "8", ev.MsgType)
	assert.Contains(t, ev.Raw, "58=filled")
	assert.False(t, ev.ReceivedAt.IsZero())
}

func TestFeedSubscriberRemovedOnDisconnect(t *testing.T) {
	t.Parallel()

	s, ts := newTestRelay(t)
	conn := dialFeed(t, ts)
	readEvent(t, conn)
	assert.Eventually(t, func() bool { return s.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return s.Subscribers() == 0 }, time.Second, 5*time.Millisecond)

	s.Broadcast(Event{Kind: KindMessage, MsgType: "0"})
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	t.Parallel()

	_, ts := newTestRelay(t)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "fixinit_test_total 1")
}

func TestServerStartStop(t *testing.T) {
	t.Parallel()

	s := New(Config{Listen: "127.0.0.1:0", Gatherer: prometheus.NewRegistry()}, discardLogger())
	require.NoError(t, s.Start(context.Background()))

	resp, err := http.Get("http://" + s.Addr().String() + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, s.Stop(context.Background()))
	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("relay did not stop serving")
	}
}

func TestEventJSONShape(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	ev := MessageEvent("r", fixmsg.New(fixmsg.MsgTypeHeartbeat), at)
	raw, err := json.Marshal(ev)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "message", got["kind"])
	assert.Equal(t, "0", got["msg_type"])
	assert.Equal(t, "2026-01-02T03:04:05Z", got["received_at"])
	assert.NotContains(t, got, "session")

	hello, err := json.Marshal(Event{Kind: KindHello})
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"hello"}`, string(hello))
}

func TestFeedRequiresToken(t *testing.T) {
	t.Parallel()

	s := New(Config{Token: "secret", Gatherer: prometheus.NewRegistry()}, discardLogger())
	ts := httptest.NewServer(s.Routes())
	t.Cleanup(ts.Close)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/feed"

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Authorization": {"Bearer secret"}})
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, KindHello, readEvent(t, conn).Kind)
}
