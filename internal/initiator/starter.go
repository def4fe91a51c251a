package initiator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/quickfixgo/quickfix"

	ilog "github.com/koltyakov/fixinit/internal/log"
)

// Engine is the start/stop surface of an engine initiator.
type Engine interface {
	Start() error
	Stop()
}

// Starter runs an externally constructed engine initiator as a hosted
// service. Start begins connecting without waiting for a logon; Stop waits
// for the engine to shut down.
type Starter struct {
	engine Engine
	log    *slog.Logger
	name   string

	mu      sync.Mutex
	running bool
}

// NewStarter wraps engine. An empty name defaults to the engine's type name.
func NewStarter(engine Engine, logger *slog.Logger, name string) *Starter {
	if logger == nil {
		logger = slog.Default()
	}
	if name == "" {
		name = fmt.Sprintf("%T", engine)
	}
	return &Starter{engine: engine, log: logger, name: name}
}

// Name returns the name used in log lines.
func (s *Starter) Name() string {
	return s.name
}

func (s *Starter) Start(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	s.log.Debug("fix initiator starting", "initiator", s.name)
	if err := s.engine.Start(); err != nil {
		return fmt.Errorf("start fix initiator %s: %w", s.name, err)
	}
	s.running = true
	s.log.Info("fix initiator started", "initiator", s.name)
	return nil
}

func (s *Starter) Stop(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	s.log.Debug("fix initiator stopping", "initiator", s.name)
	s.engine.Stop()
	s.running = false
	s.log.Info("fix initiator stopped", "initiator", s.name)
	return nil
}

// Close stops the engine if it is still running.
func (s *Starter) Close() error {
	return s.Stop(context.Background())
}

type incomingObserver interface {
	observeIncoming(id quickfix.SessionID, raw []byte)
}

// NewEngine builds a QuickFIX/Go socket initiator for app with an in-memory
// message store and engine logs routed to logger. A [Client] app also sees
// raw inbound bytes, which is how it learns of logons rejected outright.
func NewEngine(app quickfix.Application, settings *quickfix.Settings, logger *slog.Logger) (*quickfix.Initiator, error) {
	logs := ilog.NewFIXLogFactory(logger)
	if obs, ok := app.(incomingObserver); ok {
		logs.SetIncomingHook(obs.observeIncoming)
	}
	engine, err := quickfix.NewInitiator(app, quickfix.NewMemoryStoreFactory(), settings, logs)
	if err != nil {
		return nil, fmt.Errorf("create fix initiator: %w", err)
	}
	return engine, nil
}
