package protocol

import (
	"encoding/json"
	"testing"
)

// ---------------------------------------------------------------------------
// Test: Parsing a valid report message
// ---------------------------------------------------------------------------

func TestParseClientMessage_Report(t *testing.T) {
	input := []byte(`{"type":"report","text":"spam in general","target_user_id":"user-42"}`)

	msgType, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeReport {
		t.Fatalf("expected type %q, got %q", TypeReport, msgType)
	}

	rm, ok := msg.(ReportMsg)
	if !ok {
		t.Fatalf("expected ReportMsg, got %T", msg)
	}
	if rm.Text != "spam in general" {
		t.Errorf("expected text %q, got %q", "spam in general", rm.Text)
	}
	if rm.TargetUserID != "user-42" {
		t.Errorf("expected target_user_id %q, got %q", "user-42", rm.TargetUserID)
	}
}

func TestParseClientMessage_ReportWithoutTarget(t *testing.T) {
	input := []byte(`{"type":"report","text":"broken invite link"}`)

	_, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rm := msg.(ReportMsg)
	if rm.TargetUserID != "" {
		t.Errorf("expected empty target_user_id, got %q", rm.TargetUserID)
	}
}

// ---------------------------------------------------------------------------
// Test: Parsing a DM message with attachments
// ---------------------------------------------------------------------------

func TestParseClientMessage_DMMessage(t *testing.T) {
	input := []byte(`{"type":"dm_message","text":"","attachments":[` +
		`{"filename":"shot.png","size":2048,"url":"https://cdn.example/shot.png"},` +
		`{"filename":"clip.gif","size":4096,"url":"https://cdn.example/clip.gif"}]}`)

	msgType, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeDMMessage {
		t.Fatalf("expected type %q, got %q", TypeDMMessage, msgType)
	}

	dm, ok := msg.(DMMessage)
	if !ok {
		t.Fatalf("expected DMMessage, got %T", msg)
	}
	if len(dm.Attachments) != 2 {
		t.Fatalf("expected 2 attachments, got %d", len(dm.Attachments))
	}
	if dm.Attachments[0].Filename != "shot.png" {
		t.Errorf("attachment[0].Filename = %q, want %q", dm.Attachments[0].Filename, "shot.png")
	}
	if dm.Attachments[1].Size != 4096 {
		t.Errorf("attachment[1].Size = %d, want 4096", dm.Attachments[1].Size)
	}
}

// ---------------------------------------------------------------------------
// Test: Creating a notice server message
// ---------------------------------------------------------------------------

func TestNewServerMessage_Notice(t *testing.T) {
	data, err := NewServerMessage(TypeNotice, NoticeMsg{Text: "Received 2 images."})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Decode back and verify structure.
	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("failed to unmarshal result: %v", err)
	}
	if result["type"] != TypeNotice {
		t.Errorf("expected type %q, got %v", TypeNotice, result["type"])
	}
	if result["text"] != "Received 2 images." {
		t.Errorf("expected text %q, got %v", "Received 2 images.", result["text"])
	}
}

func TestNewServerMessage_RateLimited(t *testing.T) {
	data, err := NewServerMessage(TypeRateLimited, RateLimitedMsg{RetryAfter: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded RateLimitedMsg
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if decoded.Type != TypeRateLimited {
		t.Errorf("type mismatch: expected %q, got %q", TypeRateLimited, decoded.Type)
	}
	if decoded.RetryAfter != 10 {
		t.Errorf("retry_after mismatch: expected 10, got %d", decoded.RetryAfter)
	}
}

// ---------------------------------------------------------------------------
// Test: Parsing an unknown message type returns an error
// ---------------------------------------------------------------------------

func TestParseClientMessage_UnknownType(t *testing.T) {
	input := []byte(`{"type":"unknown_type","data":"something"}`)

	msgType, msg, err := ParseClientMessage(input)
	if err == nil {
		t.Fatal("expected an error for unknown message type, got nil")
	}
	if msg != nil {
		t.Errorf("expected nil message for unknown type, got %v", msg)
	}
	if msgType != "unknown_type" {
		t.Errorf("expected returned type %q, got %q", "unknown_type", msgType)
	}
}

// ---------------------------------------------------------------------------
// Test: Envelope UnmarshalJSON edge cases
// ---------------------------------------------------------------------------

func TestEnvelope_MissingType(t *testing.T) {
	input := []byte(`{"data":"no type field"}`)
	var env Envelope
	if err := json.Unmarshal(input, &env); err == nil {
		t.Fatal("expected error for missing type field, got nil")
	}
}

func TestEnvelope_InvalidJSON(t *testing.T) {
	input := []byte(`{invalid json}`)
	var env Envelope
	if err := json.Unmarshal(input, &env); err == nil {
		t.Fatal("expected error for invalid JSON, got nil")
	}
}

// ---------------------------------------------------------------------------
// Test: Parsing all client message types succeeds
// ---------------------------------------------------------------------------

func TestParseClientMessage_AllTypes(t *testing.T) {
	cases := []struct {
		name     string
		input    string
		wantType string
	}{
		{"report", `{"type":"report","text":"spam"}`, TypeReport},
		{"dm_message", `{"type":"dm_message","text":"done"}`, TypeDMMessage},
		{"ping", `{"type":"ping"}`, TypePing},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msgType, msg, err := ParseClientMessage([]byte(tc.input))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if msgType != tc.wantType {
				t.Errorf("expected type %q, got %q", tc.wantType, msgType)
			}
			if msg == nil {
				t.Error("expected non-nil message")
			}
		})
	}
}
