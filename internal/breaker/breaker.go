// Package breaker implements per-destination circuit breakers shared across
// publish calls. State is held in an explicit keyed registry under a single
// mutex so failure counts and transitions are never lost under concurrency.
package breaker

import (
	"sync"
	"time"

	"github.com/dcastillo/docrelay/internal/domain"
	"github.com/dcastillo/docrelay/internal/telemetry"
)

// Snapshot is a read-only view of one destination's breaker.
type Snapshot struct {
	State          domain.BreakerState `json:"state"`
	Failures       int                 `json:"failures"`
	LastTransition time.Time           `json:"last_transition"`
}

// state is the mutable breaker record for one destination.
type state struct {
	current        domain.BreakerState
	failures       int
	lastTransition time.Time
	trialInFlight  bool
}

// Registry holds breaker state keyed by destination id. Process-wide:
// construct one and share it across all publishers.
type Registry struct {
	mu        sync.Mutex
	states    map[string]*state
	threshold int
	cooldown  time.Duration
	sink      telemetry.Sink
	now       func() time.Time
}

// Option configures the registry.
type Option func(*Registry)

// WithSink sets the telemetry sink for breaker transitions.
func WithSink(s telemetry.Sink) Option {
	return func(r *Registry) { r.sink = s }
}

// WithClock overrides the time source (for testing cooldowns).
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// NewRegistry creates a breaker registry. threshold is the consecutive
// failure count that opens a breaker; cooldown is how long an open breaker
// waits before permitting a half_open trial call.
func NewRegistry(threshold int, cooldown time.Duration, opts ...Option) *Registry {
	r := &Registry{
		states:    make(map[string]*state),
		threshold: threshold,
		cooldown:  cooldown,
		sink:      telemetry.NopSink{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) get(dest string) *state {
	st, ok := r.states[dest]
	if !ok {
		st = &state{current: domain.BreakerClosed, lastTransition: r.now()}
		r.states[dest] = st
	}
	return st
}

// Allow reports whether a call to dest may proceed. An open breaker whose
// cooldown has elapsed moves to half_open and admits exactly one trial call;
// further callers are refused until the trial resolves.
func (r *Registry) Allow(dest string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := r.get(dest)
	switch st.current {
	case domain.BreakerClosed:
		return true
	case domain.BreakerOpen:
		if r.now().Sub(st.lastTransition) < r.cooldown {
			return false
		}
		r.transition(dest, st, domain.BreakerHalfOpen)
		st.trialInFlight = true
		return true
	case domain.BreakerHalfOpen:
		if st.trialInFlight {
			return false
		}
		st.trialInFlight = true
		return true
	}
	return false
}

// Success records a successful call: the failure count resets and a
// half_open breaker closes.
func (r *Registry) Success(dest string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := r.get(dest)
	st.failures = 0
	st.trialInFlight = false
	if st.current != domain.BreakerClosed {
		r.transition(dest, st, domain.BreakerClosed)
	}
}

// Failure records a failed call: the consecutive failure count increments
// and the breaker opens when it crosses the threshold. A failed half_open
// trial reopens immediately.
func (r *Registry) Failure(dest string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := r.get(dest)
	st.failures++
	st.trialInFlight = false

	switch st.current {
	case domain.BreakerHalfOpen:
		r.transition(dest, st, domain.BreakerOpen)
	case domain.BreakerClosed:
		if st.failures >= r.threshold {
			r.transition(dest, st, domain.BreakerOpen)
		}
	}
}

// Get returns a snapshot of one destination's breaker.
func (r *Registry) Get(dest string) Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := r.get(dest)
	return Snapshot{
		State:          st.current,
		Failures:       st.failures,
		LastTransition: st.lastTransition,
	}
}

// All returns snapshots for every destination seen so far.
func (r *Registry) All() map[string]Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]Snapshot, len(r.states))
	for dest, st := range r.states {
		out[dest] = Snapshot{
			State:          st.current,
			Failures:       st.failures,
			LastTransition: st.lastTransition,
		}
	}
	return out
}

// transition applies a state change under the held lock and emits telemetry.
func (r *Registry) transition(dest string, st *state, to domain.BreakerState) {
	from := st.current
	st.current = to
	st.lastTransition = r.now()

	ev := telemetry.NewEvent(telemetry.EventBreakerTransition)
	ev.Dest = dest
	ev.Status = string(to)
	ev.Extra = map[string]any{"from": string(from), "failures": st.failures}
	telemetry.Emit(r.sink, ev)
}
