package webhook

import (
	"testing"
)

func TestParseEventNumericID(t *testing.T) {
	body := []byte(`{"user_id": 30012, "id": 93845, "type": "recovery.updated", "trace_id": "trace-1"}`)

	event, err := ParseEvent(body)
	if err != nil {
		t.Fatalf("Failed to parse event: %v", err)
	}

	if event.Type != "recovery.updated" {
		t.Errorf("Expected type recovery.updated, got %s", event.Type)
	}
	if event.UserID.String() != "30012" {
		t.Errorf("Expected user id 30012, got %s", event.UserID.String())
	}
	if event.ID.String() != "93845" {
		t.Errorf("Expected id 93845, got %s", event.ID.String())
	}
	if event.TraceID != "trace-1" {
		t.Errorf("Expected trace id trace-1, got %s", event.TraceID)
	}
}

func TestParseEventStringID(t *testing.T) {
	body := []byte(`{"user_id": 30012, "id": "ecfc6a15-4661-442f-a9a4-f160dd7afae8", "type": "sleep.updated"}`)

	event, err := ParseEvent(body)
	if err != nil {
		t.Fatalf("Failed to parse event: %v", err)
	}
	if event.ID.String() != "ecfc6a15-4661-442f-a9a4-f160dd7afae8" {
		t.Errorf("Unexpected id %s", event.ID.String())
	}
}

func TestParseEventInvalidJSON(t *testing.T) {
	if _, err := ParseEvent([]byte(`not json`)); err == nil {
		t.Error("Expected error for invalid JSON")
	}
}

func TestEventFamily(t *testing.T) {
	tests := []struct {
		eventType string
		family    string
	}{
		{"workout.updated", "workout"},
		{"workout.deleted", "workout"},
		{"sleep.updated", "sleep"},
		{"recovery.updated", "recovery"},
		{"recovery", "recovery"},
		{"user.deauthorized", "user"},
		{"", ""},
	}

	for _, tt := range tests {
		event := &Event{Type: tt.eventType}
		if got := event.Family(); got != tt.family {
			t.Errorf("Family(%q) = %q, want %q", tt.eventType, got, tt.family)
		}
	}
}

func TestResolveRecoveryIDSleepUUID(t *testing.T) {
	ref, err := ResolveRecoveryID("ecfc6a15-4661-442f-a9a4-f160dd7afae8")
	if err != nil {
		t.Fatalf("Failed to resolve: %v", err)
	}
	if ref.SleepID == nil || *ref.SleepID != "ecfc6a15-4661-442f-a9a4-f160dd7afae8" {
		t.Error("Expected sleep id reference")
	}
	if ref.CycleID != nil {
		t.Error("Expected cycle id to be nil for a UUID")
	}
}

func TestResolveRecoveryIDCycleID(t *testing.T) {
	ref, err := ResolveRecoveryID("93845")
	if err != nil {
		t.Fatalf("Failed to resolve: %v", err)
	}
	if ref.CycleID == nil || *ref.CycleID != 93845 {
		t.Error("Expected cycle id reference")
	}
	if ref.SleepID != nil {
		t.Error("Expected sleep id to be nil for an integer")
	}
}

func TestResolveRecoveryIDGarbage(t *testing.T) {
	if _, err := ResolveRecoveryID("not_an_id"); err == nil {
		t.Error("Expected error for unresolvable id")
	}
}
