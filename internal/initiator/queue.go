package initiator

import (
	"context"
	"sync"

	"github.com/quickfixgo/quickfix"

	"github.com/koltyakov/fixinit/internal/domain"
)

// handoffQueue is an unbounded FIFO between the engine's callback goroutine
// (single producer) and the router (single consumer). Push never blocks so a
// slow consumer cannot stall the engine.
type handoffQueue struct {
	mu     sync.Mutex
	items  []*quickfix.Message
	closed bool
	notify chan struct{}
}

func newHandoffQueue() *handoffQueue {
	return &handoffQueue{notify: make(chan struct{}, 1)}
}

// push appends msg. It reports false once the queue is closed.
func (q *handoffQueue) push(msg *quickfix.Message) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, msg)
	q.mu.Unlock()
	q.signal()
	return true
}

// pop returns the oldest message, waiting while the queue is empty. After
// close it keeps returning buffered messages and then [domain.ErrQueueClosed].
func (q *handoffQueue) pop(ctx context.Context) (*quickfix.Message, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			msg := q.items[0]
			q.items[0] = nil
			q.items = q.items[1:]
			if len(q.items) == 0 {
				q.items = nil
			}
			q.mu.Unlock()
			return msg, nil
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return nil, domain.ErrQueueClosed
		}

		select {
		case <-q.notify:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (q *handoffQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// close is idempotent.
func (q *handoffQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

func (q *handoffQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
