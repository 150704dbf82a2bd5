package ws

import (
	"context"
	"errors"
	"time"

	"github.com/whisper/reportdesk/internal/intake"
	"github.com/whisper/reportdesk/internal/protocol"
)

// errConnClosed is returned from a bounded wait when the reporter's
// connection went away mid-session.
var errConnClosed = errors.New("ws: connection closed")

// dmChannel adapts a live reporter connection to intake.PrivateChannel.
// Notices go out as notice frames; inbound DM traffic arrives through the
// connection's inbox, routed there by the dispatcher.
type dmChannel struct {
	conn *Connection
}

// Send delivers a text notice to the reporter.
func (d *dmChannel) Send(_ context.Context, text string) error {
	data, err := protocol.NewServerMessage(protocol.TypeNotice, protocol.NoticeMsg{Text: text})
	if err != nil {
		return err
	}
	return d.conn.WriteMessage(data)
}

// Await blocks until a qualifying DM message arrives or the window elapses.
// The deadline is fixed when Await is entered: non-qualifying traffic is
// discarded without resetting it. Only the calling goroutine suspends.
func (d *dmChannel) Await(ctx context.Context, qualify func(*intake.Message) bool, window time.Duration) (*intake.Message, error) {
	timer := time.NewTimer(window)
	defer timer.Stop()

	for {
		select {
		case msg := <-d.conn.inbox:
			if qualify(msg) {
				return msg, nil
			}
		case <-timer.C:
			return nil, intake.ErrAwaitTimeout
		case <-d.conn.closed:
			return nil, errConnClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
