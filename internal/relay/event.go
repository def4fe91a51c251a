package relay

import (
	"time"

	"github.com/quickfixgo/quickfix"

	"github.com/koltyakov/fixinit/internal/fixmsg"
)

const (
	KindHello   = "hello"
	KindMessage = "message"
)

// Event is one JSON frame of the monitor feed.
type Event struct {
	Kind       string    `json:"kind"`
	Router     string    `json:"router,omitempty"`
	Session    string    `json:"session,omitempty"`
	MsgType    string    `json:"msg_type,omitempty"`
	Raw        string    `json:"raw,omitempty"`
	ReceivedAt time.Time `json:"received_at,omitzero"`
}

// MessageEvent builds the feed frame for an inbound message.
func MessageEvent(router string, msg *quickfix.Message, at time.Time) Event {
	return Event{
		Kind:       KindMessage,
		Router:     router,
		Session:    fixmsg.SessionKey(msg),
		MsgType:    fixmsg.MsgType(msg),
		Raw:        msg.String(),
		ReceivedAt: at.UTC(),
	}
}
