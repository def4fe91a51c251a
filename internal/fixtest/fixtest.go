// Package fixtest provides test doubles for code built on the initiator: a
// recording engine session and an emulated inbound message source.
package fixtest

import (
	"context"
	"sync"
	"time"

	"github.com/quickfixgo/quickfix"

	"github.com/koltyakov/fixinit/internal/domain"
	"github.com/koltyakov/fixinit/internal/fixmsg"
)

// DefaultPollInterval is how often WaitForOutgoing re-checks sent messages.
const DefaultPollInterval = 10 * time.Millisecond

// Session records every message sent through it. The zero value is ready to
// use. SendErr and LogoutErr, when set, are returned instead of recording.
type Session struct {
	mu        sync.Mutex
	sent      []*quickfix.Message
	logouts   []string
	SendErr   error
	LogoutErr error
}

func (s *Session) Send(msg *quickfix.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SendErr != nil {
		return s.SendErr
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *Session) Logout(reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.LogoutErr != nil {
		return s.LogoutErr
	}
	s.logouts = append(s.logouts, reason)
	return nil
}

// Sent returns a copy of the messages sent so far.
func (s *Session) Sent() []*quickfix.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*quickfix.Message(nil), s.sent...)
}

// Logouts returns how many logouts were requested.
func (s *Session) Logouts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.logouts)
}

// WaitForOutgoing polls until a sent message matches filter or ctx ends.
func (s *Session) WaitForOutgoing(ctx context.Context, filter func(*quickfix.Message) bool) (*quickfix.Message, error) {
	ticker := time.NewTicker(DefaultPollInterval)
	defer ticker.Stop()
	for {
		for _, msg := range s.Sent() {
			if filter(msg) {
				return msg, nil
			}
		}
		select {
		case <-ctx.Done():
			return nil, domain.Cancelled(ctx.Err())
		case <-ticker.C:
		}
	}
}

// WaitForOutgoingType waits for a sent message of msgType.
func (s *Session) WaitForOutgoingType(ctx context.Context, msgType string) (*quickfix.Message, error) {
	return s.WaitForOutgoing(ctx, func(m *quickfix.Message) bool {
		return fixmsg.IsOfType(m, msgType)
	})
}

// Source emulates the inbound side of a client for routers under test.
type Source struct {
	ch        chan *quickfix.Message
	closeOnce sync.Once
}

// NewSource returns a source buffering up to size emulated messages.
func NewSource(size int) *Source {
	return &Source{ch: make(chan *quickfix.Message, size)}
}

// Emit queues msg as if it arrived from the engine.
func (s *Source) Emit(msg *quickfix.Message) {
	s.ch <- msg
}

func (s *Source) Receive(ctx context.Context) (*quickfix.Message, error) {
	select {
	case msg, ok := <-s.ch:
		if !ok {
			return nil, domain.ErrQueueClosed
		}
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close ends the stream once buffered messages are drained.
func (s *Source) Close() {
	s.closeOnce.Do(func() { close(s.ch) })
}

// Message builds a message of msgType with body string fields given as
// alternating tag/value pairs.
func Message(msgType string, fields ...any) *quickfix.Message {
	msg := fixmsg.New(msgType)
	for i := 0; i+1 < len(fields); i += 2 {
		tag, ok := fields[i].(quickfix.Tag)
		if !ok {
			continue
		}
		switch v := fields[i+1].(type) {
		case string:
			msg.Body.SetString(tag, v)
		case int:
			msg.Body.SetInt(tag, v)
		}
	}
	return msg
}
