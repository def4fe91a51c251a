// Package relay serves a read-only monitor feed of inbound FIX messages over
// websocket, next to health and Prometheus endpoints.
package relay

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/quickfixgo/quickfix"
	"golang.org/x/crypto/acme/autocert"

	"github.com/koltyakov/fixinit/internal/auth"
	"github.com/koltyakov/fixinit/internal/routing"
)

const (
	defaultQueueSize    = 64
	defaultWriteTimeout = 5 * time.Second
	readHeaderTimeout   = 10 * time.Second
	idleTimeout         = 60 * time.Second
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 16 * 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Config controls the relay listener.
type Config struct {
	// Listen is the TCP address, for example ":8089".
	Listen string

	// ACMEDomain enables TLS with certificates from Let's Encrypt for the
	// named host.
	ACMEDomain   string
	CertCacheDir string

	// Token, when set, must be presented as a bearer token to subscribe.
	Token string

	// Gatherer backs /metrics; nil uses the default registry.
	Gatherer     prometheus.Gatherer
	QueueSize    int
	WriteTimeout time.Duration
}

type subscriber struct {
	conn *websocket.Conn
	pump *writePump
}

// Server fans feed events out to websocket subscribers.
type Server struct {
	cfg       Config
	log       *slog.Logger
	tokenHash string

	mu   sync.Mutex
	subs map[*subscriber]struct{}

	httpSrv *http.Server
	ln      net.Listener
	done    chan struct{}
}

func New(cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		cfg:  cfg,
		log:  logger,
		subs: make(map[*subscriber]struct{}),
	}
	if cfg.Token != "" {
		s.tokenHash = auth.HashToken(cfg.Token)
	}
	return s
}

func (s *Server) Name() string {
	return "relay " + s.cfg.Listen
}

// Routes returns the relay HTTP handler.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(s.cfg.Gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/v1/feed", s.handleFeed)
	return mux
}

// Start binds the listener and serves in the background.
func (s *Server) Start(context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("relay listen: %w", err)
	}

	s.httpSrv = &http.Server{
		Handler:           s.Routes(),
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
	}
	if domain := strings.TrimSpace(s.cfg.ACMEDomain); domain != "" {
		manager := &autocert.Manager{
			Cache:      autocert.DirCache(s.cfg.CertCacheDir),
			Prompt:     autocert.AcceptTOS,
			HostPolicy: autocert.HostWhitelist(domain),
		}
		tlsConfig := manager.TLSConfig()
		tlsConfig.MinVersion = tls.VersionTLS12
		s.httpSrv.TLSConfig = tlsConfig
		ln = tls.NewListener(ln, tlsConfig)
	}
	s.ln = ln
	s.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		s.log.Info("starting relay server", "addr", ln.Addr().String(), "tls", s.httpSrv.TLSConfig != nil)
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("relay server", "err", err)
		}
	}(s.done)
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Done is closed when the listener stops serving.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// Stop shuts the listener down and disconnects every subscriber.
func (s *Server) Stop(ctx context.Context) error {
	var err error
	if s.httpSrv != nil {
		err = s.httpSrv.Shutdown(ctx)
	}
	s.mu.Lock()
	subs := make([]*subscriber, 0, len(s.subs))
	for sub := range s.subs {
		subs = append(subs, sub)
	}
	s.subs = make(map[*subscriber]struct{})
	s.mu.Unlock()
	for _, sub := range subs {
		sub.pump.Close()
		_ = sub.conn.Close()
	}
	return err
}

// Subscribers returns the number of connected feed clients.
func (s *Server) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Broadcast queues ev for every subscriber. It never blocks on a slow
// subscriber for longer than the enqueue timeout; such a subscriber is
// disconnected.
func (s *Server) Broadcast(ev Event) {
	s.mu.Lock()
	subs := make([]*subscriber, 0, len(s.subs))
	for sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		if err := sub.pump.publish(ev); err != nil {
			s.log.Warn("dropping feed subscriber", "remote", sub.conn.RemoteAddr().String(), "err", err)
			s.remove(sub)
		}
	}
}

// Handler returns a routing handler that broadcasts every inbound message
// under the given router name.
func (s *Server) Handler(router string) routing.Handler {
	return routing.HandlerFunc(func(_ context.Context, msg *quickfix.Message) error {
		s.Broadcast(MessageEvent(router, msg, time.Now()))
		return nil
	})
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	if !auth.Authorized(r, s.tokenHash) {
		w.Header().Set("WWW-Authenticate", `Bearer realm="fixinit"`)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("feed upgrade failed", "err", err)
		return
	}
	sub := &subscriber{conn: conn, pump: newWritePump(conn, s.cfg.WriteTimeout, s.cfg.QueueSize)}
	if err := sub.pump.writeControl(Event{Kind: KindHello}); err != nil {
		sub.pump.Close()
		_ = conn.Close()
		return
	}

	s.mu.Lock()
	s.subs[sub] = struct{}{}
	s.mu.Unlock()
	s.log.Info("feed subscriber connected", "remote", conn.RemoteAddr().String())

	// Subscribers never send data; reading surfaces the close frame.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	s.remove(sub)
	s.log.Info("feed subscriber disconnected", "remote", conn.RemoteAddr().String())
}

func (s *Server) remove(sub *subscriber) {
	s.mu.Lock()
	_, ok := s.subs[sub]
	delete(s.subs, sub)
	s.mu.Unlock()
	if !ok {
		return
	}
	sub.pump.Close()
	_ = sub.conn.Close()
}
