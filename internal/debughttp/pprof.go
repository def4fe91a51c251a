// Package debughttp serves runtime profiling endpoints on a side listener.
package debughttp

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	httppprof "net/http/pprof"
	"strings"
	"time"
)

// PprofServer is a lifecycle service exposing /debug/pprof on its own
// address.
type PprofServer struct {
	addr string
	log  *slog.Logger

	srv  *http.Server
	ln   net.Listener
	done chan struct{}
}

func NewPprofServer(addr string, log *slog.Logger) *PprofServer {
	if log == nil {
		log = slog.Default()
	}
	return &PprofServer{addr: strings.TrimSpace(addr), log: log}
}

func (s *PprofServer) Name() string {
	return "pprof " + s.addr
}

// Start binds the listener and returns, so address conflicts fail fast.
func (s *PprofServer) Start(context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.srv = &http.Server{
		Handler:           newPprofMux(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.done = make(chan struct{})

	go func(srv *http.Server, done chan struct{}) {
		defer close(done)
		s.log.Info("pprof listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("pprof server error", "err", err)
		}
	}(s.srv, s.done)
	return nil
}

// Addr returns the bound address once started.
func (s *PprofServer) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

func (s *PprofServer) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	err := s.srv.Shutdown(ctx)
	<-s.done
	return err
}

func newPprofMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", httppprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", httppprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", httppprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", httppprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", httppprof.Trace)
	return mux
}
