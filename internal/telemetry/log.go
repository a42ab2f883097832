package telemetry

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/dcastillo/docrelay/internal/config"
)

// logLine is the JSON shape written by LogSink.
type logLine struct {
	Event
	Component string `json:"component"`
	Project   string `json:"project,omitempty"`
	Session   string `json:"session,omitempty"`
}

// LogSink writes one JSON object per event, one per line.
type LogSink struct {
	mu        sync.Mutex
	out       io.Writer
	component string
	project   string
	session   string
}

// NewLogSink creates a sink writing to stderr with environment context.
func NewLogSink(component string) *LogSink {
	return &LogSink{
		out:       os.Stderr,
		component: component,
		project:   config.Get().Project,
		session:   config.Get().SessionID,
	}
}

// WithOutput redirects the sink to another writer (for testing).
func (l *LogSink) WithOutput(w io.Writer) *LogSink {
	l.mu.Lock()
	l.out = w
	l.mu.Unlock()
	return l
}

func (l *LogSink) Emit(e Event) {
	line := logLine{
		Event:     e,
		Component: l.component,
		Project:   l.project,
		Session:   l.session,
	}

	data, err := json.Marshal(line)
	if err != nil {
		return
	}

	l.mu.Lock()
	fmt.Fprintln(l.out, string(data))
	l.mu.Unlock()
}
