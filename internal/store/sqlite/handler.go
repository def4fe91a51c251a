package sqlite

import (
	"context"
	"time"

	"github.com/quickfixgo/quickfix"

	"github.com/koltyakov/fixinit/internal/fixmsg"
	"github.com/koltyakov/fixinit/internal/routing"
)

// Handler returns a routing handler that appends every inbound message to j
// under the given router name.
func Handler(j *Journal, router string) routing.Handler {
	return routing.HandlerFunc(func(ctx context.Context, msg *quickfix.Message) error {
		_, err := j.Append(ctx, Entry{
			Router:     router,
			Session:    fixmsg.SessionKey(msg),
			MsgType:    fixmsg.MsgType(msg),
			Raw:        msg.String(),
			ReceivedAt: time.Now(),
		})
		return err
	})
}
