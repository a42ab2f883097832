package publish

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dcastillo/docrelay/internal/breaker"
	"github.com/dcastillo/docrelay/internal/config"
	"github.com/dcastillo/docrelay/internal/domain"
	"github.com/dcastillo/docrelay/internal/telemetry"
)

// retryBase is the first backoff delay; it doubles per attempt.
const retryBase = 100 * time.Millisecond

// Outcome is the terminal result of one destination's publish job.
type Outcome struct {
	Job      domain.PublishJob
	Duration time.Duration
}

// Publisher dispatches approved reviews to destination adapters. Safe for
// concurrent use; breaker state is shared across Publish calls.
type Publisher struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
	routes   map[string][]string // change source -> destination ids

	breakers    *breaker.Registry
	sink        telemetry.Sink
	callTimeout time.Duration
	retryCap    int
	sleep       func(context.Context, time.Duration) // backoff, ctx-aware
}

// Option configures the publisher.
type Option func(*Publisher)

// WithSink sets the telemetry sink.
func WithSink(s telemetry.Sink) Option {
	return func(p *Publisher) { p.sink = s }
}

// WithCallTimeout bounds each adapter call.
func WithCallTimeout(d time.Duration) Option {
	return func(p *Publisher) {
		if d > 0 {
			p.callTimeout = d
		}
	}
}

// WithRetryCap sets the max attempts per destination.
func WithRetryCap(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.retryCap = n
		}
	}
}

// WithSleep overrides the backoff sleep (for testing).
func WithSleep(fn func(context.Context, time.Duration)) Option {
	return func(p *Publisher) { p.sleep = fn }
}

// New creates a publisher using the shared breaker registry.
func New(breakers *breaker.Registry, opts ...Option) *Publisher {
	cfg := config.Get()
	p := &Publisher{
		adapters:    make(map[string]Adapter),
		routes:      make(map[string][]string),
		breakers:    breakers,
		sink:        telemetry.NopSink{},
		callTimeout: cfg.PublishTimeout,
		retryCap:    cfg.RetryCap,
		sleep:       sleepCtx,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RegisterAdapter binds a destination id to its adapter.
func (p *Publisher) RegisterAdapter(dest string, a Adapter) {
	p.mu.Lock()
	p.adapters[dest] = a
	p.mu.Unlock()
}

// Route declares which destinations receive changes from a source system.
func (p *Publisher) Route(source string, dests ...string) {
	p.mu.Lock()
	p.routes[source] = append(p.routes[source], dests...)
	p.mu.Unlock()
}

// DestinationsFor returns the destinations configured for a change source.
func (p *Publisher) DestinationsFor(source string) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]string(nil), p.routes[source]...)
}

// Publish fans the review's change set out to every destination configured
// for its change source. It returns once all jobs are terminal. One
// destination's failure never blocks or rolls back another; callers must
// inspect the per-destination map. The only errors returned are structural:
// a non-approved review or a destination with no registered adapter.
func (p *Publisher) Publish(ctx context.Context, review domain.Review) (map[string]Outcome, error) {
	if !review.Status.Approved() {
		return nil, fmt.Errorf("%w: review %s is %s", domain.ErrNotApproved, review.ID, review.Status)
	}

	dests := p.DestinationsFor(review.Source)
	p.mu.RLock()
	for _, d := range dests {
		if _, ok := p.adapters[d]; !ok {
			p.mu.RUnlock()
			return nil, fmt.Errorf("%w: %q", domain.ErrUnknownDestination, d)
		}
	}
	p.mu.RUnlock()

	ev := telemetry.NewEvent(telemetry.EventPublishStarted)
	ev.ReviewID = review.ID
	ev.Extra = map[string]any{"destinations": len(dests)}
	telemetry.Emit(p.sink, ev)

	outcomes := make(map[string]Outcome, len(dests))
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	for _, dest := range dests {
		wg.Add(1)
		go func(dest string) {
			defer wg.Done()
			out := p.runJob(ctx, review, dest)
			mu.Lock()
			outcomes[dest] = out
			mu.Unlock()
		}(dest)
	}

	wg.Wait()
	return outcomes, nil
}

// runJob drives one destination to a terminal status.
func (p *Publisher) runJob(ctx context.Context, review domain.Review, dest string) Outcome {
	started := time.Now()
	job := domain.PublishJob{
		ID:          uuid.New().String(),
		ReviewID:    review.ID,
		Destination: dest,
		Status:      domain.JobPending,
	}

	if !p.breakers.Allow(dest) {
		// Created directly in circuit_open, never dispatched. Expected, not
		// an anomaly.
		job.Status = domain.JobCircuitOpen
		job.CompletedAt = time.Now()
		return p.finish(job, started)
	}

	p.mu.RLock()
	adapter := p.adapters[dest]
	p.mu.RUnlock()

	// A half_open breaker admits exactly one trial call, no retries.
	attempts := p.retryCap
	if p.breakers.Get(dest).State == domain.BreakerHalfOpen {
		attempts = 1
	}

	job.Status = domain.JobInFlight
	changeSet := ChangeSet(review.ChangeSet)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		job.Attempts = attempt

		callCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
		err := adapter.Apply(callCtx, dest, changeSet)
		cancel()

		if err == nil {
			p.breakers.Success(dest)
			job.Status = domain.JobSucceeded
			job.LastError = ""
			job.CompletedAt = time.Now()
			return p.finish(job, started)
		}

		lastErr = err
		job.LastError = err.Error()

		if ctx.Err() != nil {
			// Publish call cancelled: stop retrying, do not start new calls.
			break
		}
		if attempt < attempts {
			p.sleep(ctx, retryBase<<(attempt-1))
		}
	}

	p.breakers.Failure(dest)
	job.Status = domain.JobFailed
	if lastErr != nil {
		job.LastError = lastErr.Error()
	}
	job.CompletedAt = time.Now()
	return p.finish(job, started)
}

func (p *Publisher) finish(job domain.PublishJob, started time.Time) Outcome {
	out := Outcome{Job: job, Duration: time.Since(started)}

	ev := telemetry.NewEvent(telemetry.EventPublishOutcome)
	ev.ReviewID = job.ReviewID
	ev.Dest = job.Destination
	ev.Status = string(job.Status)
	ev.Error = job.LastError
	ev.Duration = out.Duration.Milliseconds()
	telemetry.Emit(p.sink, ev)

	return out
}

// sleepCtx sleeps for d or until ctx is cancelled, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
