// Package telemetry provides structured event emission for the engine.
// Sinks are fire-and-forget: they must never block or fail the core flow.
package telemetry

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// EventType classifies engine telemetry events.
type EventType string

const (
	EventRunStarted        EventType = "run_started"
	EventRunFinished       EventType = "run_finished"
	EventTaskStarted       EventType = "task_started"
	EventTaskFinished      EventType = "task_finished"
	EventTaskSkipped       EventType = "task_skipped"
	EventReviewOpened      EventType = "review_opened"
	EventReviewTransition  EventType = "review_transition"
	EventPublishStarted    EventType = "publish_started"
	EventPublishOutcome    EventType = "publish_outcome"
	EventBreakerTransition EventType = "breaker_transition"
)

// Event is one structured telemetry event.
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"ts"`
	ChangeID  string         `json:"change_id,omitempty"`
	TaskID    string         `json:"task_id,omitempty"`
	ReviewID  string         `json:"review_id,omitempty"`
	Dest      string         `json:"dest,omitempty"`
	Status    string         `json:"status,omitempty"`
	Error     string         `json:"error,omitempty"`
	Duration  int64          `json:"duration_ms,omitempty"`
	Extra     map[string]any `json:"extra,omitempty"`
}

// Sink receives engine telemetry events.
type Sink interface {
	Emit(e Event)
}

// NewEvent creates an event with a sortable id and current timestamp.
func NewEvent(typ EventType) Event {
	return Event{
		ID:        ulid.Make().String(),
		Type:      typ,
		Timestamp: time.Now().UTC(),
	}
}

// Emit sends an event to a sink, tolerating nil sinks and panicking sinks.
// The core flow must survive any sink behavior.
func Emit(s Sink, e Event) {
	if s == nil {
		return
	}
	defer func() { _ = recover() }()
	s.Emit(e)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Emit(Event) {}

// MultiSink fans events out to several sinks.
type MultiSink []Sink

func (m MultiSink) Emit(e Event) {
	for _, s := range m {
		Emit(s, e)
	}
}

// MemorySink records events for inspection in tests.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

func (m *MemorySink) Emit(e Event) {
	m.mu.Lock()
	m.events = append(m.events, e)
	m.mu.Unlock()
}

// Events returns a copy of all recorded events.
func (m *MemorySink) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// ByType returns recorded events of one type.
func (m *MemorySink) ByType(typ EventType) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for _, e := range m.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}
