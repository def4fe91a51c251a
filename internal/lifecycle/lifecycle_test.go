package lifecycle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type journal struct {
	mu     sync.Mutex
	events []string
}

func (j *journal) add(e string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, e)
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.events...)
}

type fakeService struct {
	name     string
	j        *journal
	startErr error
	stopErr  error
	done     chan struct{}
}

func (s *fakeService) Name() string { return s.name }

func (s *fakeService) Start(context.Context) error {
	if s.startErr != nil {
		return s.startErr
	}
	s.j.add("start " + s.name)
	return nil
}

func (s *fakeService) Stop(context.Context) error {
	s.j.add("stop " + s.name)
	return s.stopErr
}

type watchedService struct {
	fakeService
}

func (s *watchedService) Done() <-chan struct{} { return s.done }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGroupStartsInOrderStopsInReverse(t *testing.T) {
	t.Parallel()

	j := &journal{}
	g := NewGroup(discardLogger(), &fakeService{name: "a", j: j}, &fakeService{name: "b", j: j})
	g.Add(&fakeService{name: "c", j: j})

	require.NoError(t, g.Start(context.Background()))
	require.NoError(t, g.Stop(context.Background()))
	assert.Equal(t, []string{"start a", "start b", "start c", "stop c", "stop b", "stop a"}, j.list())
}

func TestGroupStartFailureRollsBack(t *testing.T) {
	t.Parallel()

	j := &journal{}
	boom := errors.New("bind failed")
	g := NewGroup(discardLogger(),
		&fakeService{name: "a", j: j},
		&fakeService{name: "b", j: j, startErr: boom},
		&fakeService{name: "c", j: j},
	)

	err := g.Start(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "start b")
	assert.Equal(t, []string{"start a", "stop a"}, j.list())
}

func TestGroupStopContinuesPastErrors(t *testing.T) {
	t.Parallel()

	j := &journal{}
	boom := errors.New("flush failed")
	g := NewGroup(discardLogger(),
		&fakeService{name: "a", j: j},
		&fakeService{name: "b", j: j, stopErr: boom},
	)
	require.NoError(t, g.Start(context.Background()))

	err := g.Stop(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"start a", "start b", "stop b", "stop a"}, j.list())
	assert.NoError(t, g.Stop(context.Background()))
}

func TestGroupRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	j := &journal{}
	g := NewGroup(discardLogger(), &fakeService{name: "a", j: j})
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- g.Run(ctx) }()
	assert.Eventually(t, func() bool { return len(j.list()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("run did not return after cancel")
	}
	assert.Equal(t, []string{"start a", "stop a"}, j.list())
}

func TestGroupRunReturnsWhenWatchedServiceExits(t *testing.T) {
	t.Parallel()

	j := &journal{}
	w := &watchedService{fakeService{name: "router", j: j, done: make(chan struct{})}}
	g := NewGroup(discardLogger(), &fakeService{name: "a", j: j}, w)

	errCh := make(chan error, 1)
	go func() { errCh <- g.Run(context.Background()) }()
	assert.Eventually(t, func() bool { return len(j.list()) == 2 }, time.Second, 5*time.Millisecond)
	close(w.done)

	select {
	case err := <-errCh:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "service router exited")
	case <-time.After(time.Second):
		t.Fatal("run did not return after watched service exit")
	}
	assert.Equal(t, []string{"start a", "start router", "stop router", "stop a"}, j.list())
}
