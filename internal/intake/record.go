package intake

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/whisper/reportdesk/internal/evidence"
	"github.com/whisper/reportdesk/internal/metrics"
	"github.com/whisper/reportdesk/internal/sanitize"
)

// Record is the consolidated moderation record for one report. It is
// built exactly once, when the session closes, and is immutable from
// then on. The text is always the sanitized form of what the reporter
// filed, never the raw input.
type Record struct {
	ID            string          `json:"id"`
	ReporterID    string          `json:"reporter_id"`
	SanitizedText string          `json:"text"`
	TargetUserID  string          `json:"target_user_id,omitempty"`
	Evidence      []evidence.Item `json:"evidence"`
	CreatedAt     time.Time       `json:"created_at"`
}

// snapshot builds the record from the original request and the final
// collected-evidence sequence. Must only be called once the session has
// closed.
func (s *Session) snapshot() *Record {
	ev := make([]evidence.Item, len(s.collected))
	copy(ev, s.collected)

	return &Record{
		ID:            uuid.NewString(),
		ReporterID:    s.req.ReporterID,
		SanitizedText: sanitize.Sanitize(s.req.Text),
		TargetUserID:  s.req.TargetUserID,
		Evidence:      ev,
		CreatedAt:     time.Now().UTC(),
	}
}

// Deliver performs the two-phase handoff to the moderation destination.
// Phase 1 always sends the structured record. Phase 2 sends the evidence
// bundle only when evidence exists, sequentially after phase 1. The
// phases are not atomic: a phase-2 failure leaves the phase-1 record in
// place (the moderation team keeps the textual report) and is surfaced
// to the caller without retry or rollback.
func Deliver(ctx context.Context, dest Destination, rec *Record) error {
	if err := dest.SendRecord(ctx, rec); err != nil {
		metrics.DeliveryFailures.WithLabelValues("record").Inc()
		return fmt.Errorf("intake: deliver record: %w", err)
	}

	if len(rec.Evidence) > 0 {
		if err := dest.SendEvidence(ctx, rec.Evidence); err != nil {
			metrics.DeliveryFailures.WithLabelValues("evidence").Inc()
			return fmt.Errorf("intake: deliver evidence: %w", err)
		}
	}
	return nil
}
