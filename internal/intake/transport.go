package intake

import (
	"context"
	"errors"
	"time"

	"github.com/whisper/reportdesk/internal/evidence"
)

var (
	// ErrPermissionDenied is returned by a ChannelOpener when the platform
	// refuses to open a private channel to the reporter (connection gone,
	// privacy setting, etc.).
	ErrPermissionDenied = errors.New("intake: private channel refused")

	// ErrAwaitTimeout is returned by PrivateChannel.Await when the wait
	// window elapses without a qualifying message.
	ErrAwaitTimeout = errors.New("intake: await window elapsed")
)

// Message is one inbound private-channel message from the reporter.
type Message struct {
	Text        string
	Attachments []evidence.Item
}

// ChannelOpener opens a private one-to-one channel to a reporter.
type ChannelOpener interface {
	// Open returns a channel to the reporter, or ErrPermissionDenied if
	// the platform will not allow one.
	Open(ctx context.Context, reporterID string) (PrivateChannel, error)
}

// PrivateChannel is the reporter-facing side of a session: outbound
// notices and a bounded wait for the next inbound message.
type PrivateChannel interface {
	// Send delivers a text notice to the reporter.
	Send(ctx context.Context, text string) error

	// Await blocks until a message satisfying qualify arrives or the
	// window elapses, returning ErrAwaitTimeout in the latter case.
	// Non-qualifying messages are skipped without resetting the window.
	// Implementations must suspend only the calling goroutine.
	Await(ctx context.Context, qualify func(*Message) bool, window time.Duration) (*Message, error)
}

// Destination is the moderation-facing side: the two delivery phases.
type Destination interface {
	// SendRecord delivers the structured report record (phase 1).
	SendRecord(ctx context.Context, rec *Record) error

	// SendEvidence delivers the evidence bundle (phase 2).
	SendEvidence(ctx context.Context, items []evidence.Item) error
}
