// Package intake implements the interactive evidence-collection session:
// a bounded, single-reporter conversational loop that gathers image
// attachments over a private channel, assembles a consolidated record,
// and hands it to the moderation destination in two phases.
//
// A Session is scoped to one report invocation and is never shared or
// stored; concurrent reporters run fully independent sessions.
package intake

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/whisper/reportdesk/internal/evidence"
	"github.com/whisper/reportdesk/internal/metrics"
)

// DoneToken is the literal text a reporter sends to finish early,
// compared case-insensitively.
const DoneToken = "done"

// Session phases. A session starts collecting and closes exactly once;
// re-entry after close is impossible.
const (
	PhaseCollecting = "collecting"
	PhaseClosed     = "closed"
)

// Close outcomes, reported for instrumentation.
const (
	OutcomeDone    = "done"
	OutcomeTimeout = "timeout"
)

// Request carries the report as filed at the entry point. It is immutable
// once the session starts.
type Request struct {
	ReporterID   string
	Text         string
	TargetUserID string // optional: the account being reported
}

// Config holds session tuning knobs.
type Config struct {
	// CollectWindow is the per-iteration inactivity window. Every accepted
	// qualifying input starts a fresh window; there is no global deadline.
	CollectWindow time.Duration
}

// DefaultConfig returns the standard session settings.
func DefaultConfig() Config {
	return Config{CollectWindow: 60 * time.Second}
}

// Session drives the collection loop for a single report.
type Session struct {
	req       Request
	cfg       Config
	phase     string
	outcome   string
	collected []evidence.Item
}

// NewSession creates a session in the collecting phase for the given
// request.
func NewSession(req Request, cfg Config) *Session {
	return &Session{
		req:   req,
		cfg:   cfg,
		phase: PhaseCollecting,
	}
}

// Phase returns the current session phase.
func (s *Session) Phase() string {
	return s.phase
}

// Outcome returns how the session closed (OutcomeDone or OutcomeTimeout),
// or "" while still collecting.
func (s *Session) Outcome() string {
	return s.outcome
}

// qualifies reports whether a private-channel message is part of the
// collection protocol: it carries at least one attachment or equals the
// completion token. Everything else is ignored by Await.
func qualifies(m *Message) bool {
	return len(m.Attachments) > 0 || strings.EqualFold(m.Text, DoneToken)
}

// isDone checks for the explicit-completion token. Checked before the
// attachment path so a message carrying both closes the session.
func isDone(m *Message) bool {
	return strings.EqualFold(m.Text, DoneToken)
}

// Run executes the whole session: prompt, collection loop, record
// assembly, two-phase delivery, and the final confirmation to the
// reporter. It returns the delivered record, or an error if the channel
// failed or delivery raised. Run can be called at most once.
func (s *Session) Run(ctx context.Context, ch PrivateChannel, dest Destination) (*Record, error) {
	if s.phase != PhaseCollecting {
		return nil, errors.New("intake: session already closed")
	}

	if err := ch.Send(ctx, s.promptText()); err != nil {
		return nil, fmt.Errorf("intake: send prompt: %w", err)
	}

	if err := s.collect(ctx, ch); err != nil {
		return nil, err
	}

	rec := s.snapshot()
	if err := Deliver(ctx, dest, rec); err != nil {
		return nil, err
	}

	if err := ch.Send(ctx, confirmText(len(rec.Evidence))); err != nil {
		return nil, fmt.Errorf("intake: send confirmation: %w", err)
	}
	return rec, nil
}

// collect runs the per-iteration wait loop until the session closes via
// the done token or a timed-out window. Collected evidence only grows and
// keeps arrival order.
func (s *Session) collect(ctx context.Context, ch PrivateChannel) error {
	for s.phase == PhaseCollecting {
		msg, err := ch.Await(ctx, qualifies, s.cfg.CollectWindow)
		if errors.Is(err, ErrAwaitTimeout) {
			// Timeout exit: notify only if something was collected, then
			// close with whatever evidence exists.
			if len(s.collected) > 0 {
				if err := ch.Send(ctx, timeoutText); err != nil {
					return fmt.Errorf("intake: send timeout notice: %w", err)
				}
			}
			s.close(OutcomeTimeout)
			return nil
		}
		if err != nil {
			return fmt.Errorf("intake: await message: %w", err)
		}

		if isDone(msg) {
			s.close(OutcomeDone)
			return nil
		}

		accepted, rejected := evidence.Partition(msg.Attachments)
		metrics.EvidenceItems.WithLabelValues("accepted").Add(float64(len(accepted)))
		metrics.EvidenceItems.WithLabelValues("rejected").Add(float64(len(rejected)))

		if len(accepted) == 0 {
			// The whole input is discarded; the window restarts.
			if err := ch.Send(ctx, rejectText); err != nil {
				return fmt.Errorf("intake: send rejection notice: %w", err)
			}
			continue
		}

		s.collected = append(s.collected, accepted...)
		if err := ch.Send(ctx, acceptText(len(accepted))); err != nil {
			return fmt.Errorf("intake: send acknowledgement: %w", err)
		}
	}
	return nil
}

// close transitions the session to its terminal phase.
func (s *Session) close(outcome string) {
	s.phase = PhaseClosed
	s.outcome = outcome
}

// ---------------------------------------------------------------------------
// Reporter-facing notice text
// ---------------------------------------------------------------------------

const (
	rejectText = "Invalid file format. Please only send PNG, JPG, JPEG, or GIF images."

	timeoutText = "Time's up. Proceeding with the images you've already sent."
)

func (s *Session) promptText() string {
	secs := int(s.cfg.CollectWindow.Seconds())
	return fmt.Sprintf("Please send the images for your report.\n"+
		"- Send your images as attachments\n"+
		"- Supported formats: PNG, JPG, JPEG, GIF\n"+
		"- Type 'done' when you've finished\n"+
		"- Or wait %d seconds to submit without more images", secs)
}

func acceptText(n int) string {
	return fmt.Sprintf("Received %d image%s. Send more or type 'done' to finish.", n, plural(n))
}

func confirmText(n int) string {
	if n == 0 {
		return "Your report has been sent to the moderators."
	}
	return fmt.Sprintf("Your report has been sent to the moderators. Included %d image%s.", n, plural(n))
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
