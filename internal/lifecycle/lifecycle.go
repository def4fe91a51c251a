// Package lifecycle starts and stops the long-lived parts of the process as
// one unit.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultStopTimeout bounds the shutdown of all services in Run.
const DefaultStopTimeout = 10 * time.Second

// Service is a component with an explicit start and stop.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Watcher is implemented by services whose work can end on its own. A
// closed Done channel while the group runs is treated as a failure.
type Watcher interface {
	Done() <-chan struct{}
}

// Group runs services in registration order and stops them in reverse.
type Group struct {
	log         *slog.Logger
	services    []Service
	started     []Service
	StopTimeout time.Duration
}

func NewGroup(logger *slog.Logger, services ...Service) *Group {
	if logger == nil {
		logger = slog.Default()
	}
	return &Group{log: logger, services: services, StopTimeout: DefaultStopTimeout}
}

// Add appends s. It has no effect on a group that is already running.
func (g *Group) Add(s Service) {
	g.services = append(g.services, s)
}

// Start starts every service in order. If one fails, the ones already
// started are stopped again and the start error is returned.
func (g *Group) Start(ctx context.Context) error {
	for _, s := range g.services {
		g.log.Debug("starting service", "service", s.Name())
		if err := s.Start(ctx); err != nil {
			stopErr := g.Stop(context.WithoutCancel(ctx))
			return errors.Join(fmt.Errorf("start %s: %w", s.Name(), err), stopErr)
		}
		g.started = append(g.started, s)
	}
	return nil
}

// Stop stops started services in reverse order. Every service is asked to
// stop even when an earlier one fails.
func (g *Group) Stop(ctx context.Context) error {
	var errs []error
	for i := len(g.started) - 1; i >= 0; i-- {
		s := g.started[i]
		g.log.Debug("stopping service", "service", s.Name())
		if err := s.Stop(ctx); err != nil {
			g.log.Error("stop service", "service", s.Name(), "err", err)
			errs = append(errs, fmt.Errorf("stop %s: %w", s.Name(), err))
		}
	}
	g.started = nil
	return errors.Join(errs...)
}

// Run starts the group, blocks until ctx is done or a watched service exits,
// and then stops everything within StopTimeout.
func (g *Group) Run(ctx context.Context) error {
	if err := g.Start(ctx); err != nil {
		return err
	}

	eg, egCtx := errgroup.WithContext(ctx)
	for _, s := range g.started {
		w, ok := s.(Watcher)
		if !ok {
			continue
		}
		done := w.Done()
		if done == nil {
			continue
		}
		eg.Go(func() error {
			select {
			case <-done:
				return fmt.Errorf("service %s exited", s.Name())
			case <-egCtx.Done():
				return nil
			}
		})
	}
	eg.Go(func() error {
		<-egCtx.Done()
		return nil
	})
	runErr := eg.Wait()

	timeout := g.StopTimeout
	if timeout <= 0 {
		timeout = DefaultStopTimeout
	}
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	return errors.Join(runErr, g.Stop(stopCtx))
}
