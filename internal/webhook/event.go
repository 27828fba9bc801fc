package webhook

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Event is the parsed body of a WHOOP webhook notification
type Event struct {
	Type    string      `json:"type"`
	UserID  json.Number `json:"user_id"`
	ID      resourceID  `json:"id"`
	TraceID string      `json:"trace_id"`
}

// resourceID accepts either a JSON string (v2 UUID ids) or a JSON number
// (v1 integer ids) and normalizes both to a string
type resourceID string

func (r *resourceID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = resourceID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*r = resourceID(n.String())
	return nil
}

func (r resourceID) String() string {
	return string(r)
}

// ParseEvent decodes a webhook body into an Event
func ParseEvent(body []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(body, &e); err != nil {
		return nil, fmt.Errorf("failed to parse webhook event: %w", err)
	}
	return &e, nil
}

// Family returns the resource family prefix of the event type, e.g.
// "recovery" for "recovery.updated". Unknown families are passed through
// for the caller to reject.
func (e *Event) Family() string {
	family, _, _ := strings.Cut(e.Type, ".")
	return family
}

// RecoveryRef is the result of recovery id disambiguation: exactly one of
// CycleID or SleepID is set
type RecoveryRef struct {
	CycleID *int64
	SleepID *string
}

// ResolveRecoveryID decides what a recovery event's id points at. WHOOP
// recovery events have carried either the parent cycle's integer id or the
// associated sleep's UUID depending on API version; a hyphen marks a UUID.
// The heuristic misreads a plain integer sent as a string with no hyphen,
// which has not been observed in practice.
func ResolveRecoveryID(id string) (RecoveryRef, error) {
	if strings.Contains(id, "-") {
		sleepID := id
		return RecoveryRef{SleepID: &sleepID}, nil
	}

	cycleID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return RecoveryRef{}, fmt.Errorf("unresolvable recovery id %q: %w", id, err)
	}
	return RecoveryRef{CycleID: &cycleID}, nil
}
