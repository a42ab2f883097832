// Package domain defines the core entities of the change orchestration engine.
package domain

import "time"

// ChangeKind classifies an upstream change event.
type ChangeKind string

const (
	KindCodeChange       ChangeKind = "code_change"
	KindTicketClosed     ChangeKind = "ticket_closed"
	KindDecisionRecorded ChangeKind = "decision_recorded"
	KindGeneric          ChangeKind = "generic"
)

// changeMeta provides metadata per change kind (extend via map, not switch).
var changeMeta = map[ChangeKind]struct {
	Label   string
	StatKey string
}{
	KindCodeChange:       {"Code change", "code_changes"},
	KindTicketClosed:     {"Ticket closed", "tickets"},
	KindDecisionRecorded: {"Decision", "decisions"},
	KindGeneric:          {"Change", "other"},
}

// Label returns the human-readable label for this change kind.
func (k ChangeKind) Label() string {
	if m, ok := changeMeta[k]; ok {
		return m.Label
	}
	return "Change"
}

// StatKey returns the stats counter key for this change kind.
func (k ChangeKind) StatKey() string {
	if m, ok := changeMeta[k]; ok {
		return m.StatKey
	}
	return "other"
}

// ChangeEvent is a normalized description of something that happened upstream.
// Immutable once created.
type ChangeEvent struct {
	Source     string            `json:"source"`
	ExternalID string            `json:"external_id"`
	Kind       ChangeKind        `json:"kind"`
	Payload    map[string]string `json:"payload,omitempty"`
	ReceivedAt time.Time         `json:"received_at"`
}

// ID returns the stable identity of the change: source + external id.
func (c ChangeEvent) ID() string {
	return c.Source + "/" + c.ExternalID
}

// Artifacts returns the affected artifact paths declared in the payload.
// The "artifacts" key holds a newline-separated path list.
func (c ChangeEvent) Artifacts() []string {
	raw, ok := c.Payload["artifacts"]
	if !ok || raw == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(raw); i++ {
		if i == len(raw) || raw[i] == '\n' {
			if p := raw[start:i]; p != "" {
				out = append(out, p)
			}
			start = i + 1
		}
	}
	return out
}

// ClassifyChange maps a raw kind tag from a source system to a ChangeKind.
func ClassifyChange(kindTag string) ChangeKind {
	switch kindTag {
	case "code_change", "push", "merge", "commit":
		return KindCodeChange
	case "ticket_closed", "issue_closed", "resolved":
		return KindTicketClosed
	case "decision_recorded", "decision", "adr":
		return KindDecisionRecorded
	default:
		return KindGeneric
	}
}
