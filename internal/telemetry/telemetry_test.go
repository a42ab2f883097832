package telemetry

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/dcastillo/docrelay/internal/config"
)

func TestNewEventHasSortableID(t *testing.T) {
	a := NewEvent(EventRunStarted)
	b := NewEvent(EventRunFinished)

	if a.ID == "" || b.ID == "" {
		t.Fatal("events must carry ids")
	}
	if a.ID >= b.ID {
		t.Errorf("ids must be lexically ordered by creation: %s >= %s", a.ID, b.ID)
	}
	if a.Timestamp.IsZero() {
		t.Error("timestamp must be set")
	}
}

func TestEmitToleratesNilSink(t *testing.T) {
	Emit(nil, NewEvent(EventTaskStarted))
}

type panicSink struct{}

func (panicSink) Emit(Event) { panic("sink blew up") }

func TestEmitSwallowsSinkPanics(t *testing.T) {
	Emit(panicSink{}, NewEvent(EventTaskStarted))
}

func TestMemorySink(t *testing.T) {
	sink := &MemorySink{}
	sink.Emit(Event{Type: EventTaskStarted, TaskID: "t1"})
	sink.Emit(Event{Type: EventTaskFinished, TaskID: "t1"})
	sink.Emit(Event{Type: EventTaskStarted, TaskID: "t2"})

	if got := len(sink.Events()); got != 3 {
		t.Fatalf("expected 3 events, got %d", got)
	}
	started := sink.ByType(EventTaskStarted)
	if len(started) != 2 {
		t.Fatalf("expected 2 task_started events, got %d", len(started))
	}
	if started[1].TaskID != "t2" {
		t.Errorf("events must keep emission order, got %q", started[1].TaskID)
	}
}

func TestMemorySinkConcurrent(t *testing.T) {
	sink := &MemorySink{}
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sink.Emit(Event{Type: EventTaskFinished})
		}()
	}
	wg.Wait()

	if got := len(sink.Events()); got != 50 {
		t.Errorf("expected 50 events, got %d", got)
	}
}

func TestMultiSinkFansOutPastPanics(t *testing.T) {
	mem := &MemorySink{}
	multi := MultiSink{panicSink{}, mem}

	multi.Emit(Event{Type: EventBreakerTransition})

	if len(mem.Events()) != 1 {
		t.Error("a panicking sink must not stop fan-out")
	}
}

func TestLogSinkWritesJSONLines(t *testing.T) {
	config.Reset()
	t.Cleanup(config.Reset)
	t.Setenv("DOCRELAY_PROJECT", "demo")

	var buf bytes.Buffer
	sink := NewLogSink("scheduler").WithOutput(&buf)

	e := NewEvent(EventTaskFinished)
	e.TaskID = "t1"
	e.Status = "succeeded"
	sink.Emit(e)

	line := strings.TrimSpace(buf.String())
	var got map[string]any
	if err := json.Unmarshal([]byte(line), &got); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if got["component"] != "scheduler" {
		t.Errorf("component = %v, want scheduler", got["component"])
	}
	if got["project"] != "demo" {
		t.Errorf("project = %v, want demo", got["project"])
	}
	if got["type"] != "task_finished" || got["task_id"] != "t1" {
		t.Errorf("event fields missing from line: %s", line)
	}
}
