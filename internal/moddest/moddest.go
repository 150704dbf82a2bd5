// Package moddest resolves the moderation destination from configuration
// and implements the two delivery phases over NATS: the structured record
// first, then the evidence bundle as a separate follow-up. The phases are
// deliberately not combined into one send — NATS offers no multi-message
// atomicity, and a delivered record without its bundle is still useful to
// the moderation team.
package moddest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/whisper/reportdesk/internal/evidence"
	"github.com/whisper/reportdesk/internal/intake"
	"github.com/whisper/reportdesk/internal/messaging"
)

// ErrNotFound is returned by Resolve when no moderation destination is
// configured.
var ErrNotFound = errors.New("moddest: moderation destination not configured")

// Config names the moderation destination.
type Config struct {
	Subject string // NATS subject for report records
}

// DefaultConfig returns the standard destination settings.
func DefaultConfig() Config {
	return Config{Subject: messaging.SubjectReports}
}

// Publisher is the messaging capability the destination needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Destination delivers moderation records over NATS. It implements
// intake.Destination.
type Destination struct {
	pub     Publisher
	subject string
}

// Resolve validates the configured destination and returns a handle for it.
// Returns ErrNotFound when no subject is configured; callers must not open
// any reporter-facing channel in that case.
func Resolve(cfg Config, pub Publisher) (*Destination, error) {
	if cfg.Subject == "" {
		return nil, ErrNotFound
	}
	return &Destination{pub: pub, subject: cfg.Subject}, nil
}

// Subject returns the record subject this destination publishes to.
func (d *Destination) Subject() string {
	return d.subject
}

// RecordMessage is the phase-1 payload: the report metadata the moderation
// team always receives, even when the evidence bundle later fails.
type RecordMessage struct {
	Type          string    `json:"type"` // "report"
	ID            string    `json:"id"`
	ReporterID    string    `json:"reporter_id"`
	Text          string    `json:"text"` // sanitized form, never raw input
	TargetUserID  string    `json:"target_user_id,omitempty"`
	EvidenceCount int       `json:"evidence_count"`
	CreatedAt     time.Time `json:"created_at"`
}

// EvidenceMessage is the phase-2 payload: the collected evidence items in
// arrival order. Phases are published sequentially on sibling subjects, so
// consumers see each bundle directly after its record.
type EvidenceMessage struct {
	Type  string          `json:"type"` // "report_evidence"
	Count int             `json:"count"`
	Items []evidence.Item `json:"items"`
}

// SendRecord publishes the structured record message (phase 1).
func (d *Destination) SendRecord(ctx context.Context, rec *intake.Record) error {
	msg := RecordMessage{
		Type:          "report",
		ID:            rec.ID,
		ReporterID:    rec.ReporterID,
		Text:          rec.SanitizedText,
		TargetUserID:  rec.TargetUserID,
		EvidenceCount: len(rec.Evidence),
		CreatedAt:     rec.CreatedAt,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("moddest: marshal record: %w", err)
	}
	if err := d.pub.Publish(d.subject, data); err != nil {
		return fmt.Errorf("moddest: publish record: %w", err)
	}
	return nil
}

// SendEvidence publishes the evidence bundle (phase 2) to the evidence
// subject derived from the record subject.
func (d *Destination) SendEvidence(ctx context.Context, items []evidence.Item) error {
	msg := EvidenceMessage{
		Type:  "report_evidence",
		Count: len(items),
		Items: items,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("moddest: marshal evidence: %w", err)
	}
	if err := d.pub.Publish(d.subject+messaging.EvidenceSubjectSuffix, data); err != nil {
		return fmt.Errorf("moddest: publish evidence: %w", err)
	}
	return nil
}
