package relay

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

var ErrPumpClosed = errors.New("feed write pump closed")
var ErrPumpBackpressure = errors.New("feed write pump backpressure")

const (
	defaultControlEnqueueTimeout = 2 * time.Second
	defaultEventEnqueueTimeout   = 100 * time.Millisecond
)

type writeRequest struct {
	event Event
	done  chan error
}

// writePump serializes writes to one subscriber. Control frames go ahead of
// queued message events. A subscriber whose event queue stays full past the
// enqueue timeout is closed.
type writePump struct {
	writeFn     func(Event) error
	closeFn     func()
	high        chan writeRequest
	low         chan writeRequest
	stop        chan struct{}
	done        chan struct{}
	closed      atomic.Bool
	stopOnce    sync.Once
	highTimeout time.Duration
	lowTimeout  time.Duration
}

func newWritePump(conn *websocket.Conn, writeTimeout time.Duration, queueSize int) *writePump {
	return newWritePumpWithWriter(func(ev Event) error {
		if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
			_ = conn.Close()
			return err
		}
		defer func() { _ = conn.SetWriteDeadline(time.Time{}) }()
		if err := conn.WriteJSON(ev); err != nil {
			_ = conn.Close()
			return err
		}
		return nil
	}, func() {
		_ = conn.Close()
	}, 1, queueSize, defaultControlEnqueueTimeout, defaultEventEnqueueTimeout)
}

func newWritePumpWithWriter(
	writeFn func(Event) error,
	closeFn func(),
	highCap, lowCap int,
	highTimeout, lowTimeout time.Duration,
) *writePump {
	if highCap <= 0 {
		highCap = 1
	}
	if lowCap <= 0 {
		lowCap = 1
	}
	if highTimeout <= 0 {
		highTimeout = defaultControlEnqueueTimeout
	}
	if lowTimeout <= 0 {
		lowTimeout = defaultEventEnqueueTimeout
	}
	p := &writePump{
		writeFn:     writeFn,
		closeFn:     closeFn,
		high:        make(chan writeRequest, highCap),
		low:         make(chan writeRequest, lowCap),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
		highTimeout: highTimeout,
		lowTimeout:  lowTimeout,
	}
	go p.run()
	return p
}

// writeControl queues ev ahead of pending events and waits for the write.
func (p *writePump) writeControl(ev Event) error {
	req := writeRequest{event: ev, done: make(chan error, 1)}
	if err := p.enqueue(p.high, req, p.highTimeout); err != nil {
		return err
	}
	return <-req.done
}

// publish queues ev without waiting for the write.
func (p *writePump) publish(ev Event) error {
	return p.enqueue(p.low, writeRequest{event: ev, done: make(chan error, 1)}, p.lowTimeout)
}

func (p *writePump) Close() {
	p.closed.Store(true)
	p.signalStop()
	<-p.done
}

// Done is closed once the pump has stopped writing.
func (p *writePump) Done() <-chan struct{} {
	return p.done
}

func (p *writePump) enqueue(target chan writeRequest, req writeRequest, wait time.Duration) error {
	if p.closed.Load() {
		return ErrPumpClosed
	}

	select {
	case target <- req:
		return nil
	default:
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-p.stop:
		return ErrPumpClosed
	case target <- req:
		return nil
	case <-timer.C:
		p.triggerBackpressure()
		return ErrPumpBackpressure
	}
}

func (p *writePump) run() {
	defer close(p.done)

	for {
		req, ok := p.next()
		if !ok {
			p.failPending(ErrPumpClosed)
			return
		}
		err := p.write(req.event)
		req.done <- err
		if err != nil {
			p.closed.Store(true)
			p.signalStop()
			p.failPending(err)
			return
		}
		if p.closed.Load() {
			p.signalStop()
			p.failPending(ErrPumpClosed)
			return
		}
	}
}

func (p *writePump) next() (writeRequest, bool) {
	select {
	case req := <-p.high:
		return req, true
	default:
	}

	select {
	case <-p.stop:
		return writeRequest{}, false
	case req := <-p.high:
		return req, true
	case req := <-p.low:
		return req, true
	}
}

func (p *writePump) write(ev Event) error {
	if p.writeFn == nil {
		return io.ErrClosedPipe
	}
	return p.writeFn(ev)
}

func (p *writePump) failPending(err error) {
	for {
		select {
		case req := <-p.high:
			req.done <- err
		case req := <-p.low:
			req.done <- err
		default:
			return
		}
	}
}

func (p *writePump) signalStop() {
	p.stopOnce.Do(func() {
		close(p.stop)
	})
}

func (p *writePump) triggerBackpressure() {
	if p.closed.Swap(true) {
		return
	}
	if p.closeFn != nil {
		p.closeFn()
	}
	p.signalStop()
}
