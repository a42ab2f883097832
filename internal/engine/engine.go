// Package engine wires decomposition, scheduling, review, and publication
// into the single entry point hosts consume.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/dcastillo/docrelay/internal/decompose"
	"github.com/dcastillo/docrelay/internal/domain"
	"github.com/dcastillo/docrelay/internal/publish"
	"github.com/dcastillo/docrelay/internal/review"
	"github.com/dcastillo/docrelay/internal/scheduler"
	"github.com/dcastillo/docrelay/internal/store"
	"github.com/dcastillo/docrelay/internal/telemetry"
)

// RunLog optionally records completed runs and publish jobs for audit.
type RunLog interface {
	SaveRun(ctx context.Context, rec store.RunRecord) error
	SaveJob(ctx context.Context, job domain.PublishJob) error
}

// Engine drives a change from ingestion to publication.
type Engine struct {
	decomposer decompose.Decomposer
	scheduler  *scheduler.Scheduler
	reviews    *review.Manager
	publisher  *publish.Publisher
	runLog     RunLog
	sink       telemetry.Sink
}

// Option configures the engine.
type Option func(*Engine)

// WithRunLog enables run and publish-job persistence.
func WithRunLog(l RunLog) Option {
	return func(e *Engine) { e.runLog = l }
}

// WithSink sets the telemetry sink.
func WithSink(s telemetry.Sink) Option {
	return func(e *Engine) { e.sink = s }
}

// New assembles an engine from its collaborators.
func New(d decompose.Decomposer, s *scheduler.Scheduler, r *review.Manager, p *publish.Publisher, opts ...Option) *Engine {
	e := &Engine{
		decomposer: d,
		scheduler:  s,
		reviews:    r,
		publisher:  p,
		sink:       telemetry.NopSink{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ProcessResult is the outcome of driving one change through generation
// and review creation.
type ProcessResult struct {
	Run    *scheduler.RunResult
	Review *domain.Review // nil when no task produced reviewable output
}

// Process decomposes a change, executes its task graph, and opens a review
// over the proposed change set. Task-level failures surface as run status,
// not as an error.
func (e *Engine) Process(ctx context.Context, change domain.ChangeEvent) (*ProcessResult, error) {
	spec, err := e.decomposer.Decompose(change)
	if err != nil {
		return nil, fmt.Errorf("decompose change %s: %w", change.ID(), err)
	}

	run, err := e.scheduler.Run(ctx, change, spec)
	if err != nil {
		return nil, err
	}

	e.recordRun(run)

	r, err := e.reviews.Open(ctx, change, run.Tasks)
	if err != nil {
		return nil, err
	}

	return &ProcessResult{Run: run, Review: r}, nil
}

// Release publishes an approved review to every configured destination and
// returns the per-destination outcome map.
func (e *Engine) Release(ctx context.Context, reviewID string) (map[string]publish.Outcome, error) {
	r, err := e.reviews.Get(ctx, reviewID)
	if err != nil {
		return nil, err
	}

	outcomes, err := e.publisher.Publish(ctx, *r)
	if err != nil {
		return nil, err
	}

	if e.runLog != nil {
		for _, out := range outcomes {
			_ = e.runLog.SaveJob(ctx, out.Job)
		}
	}
	return outcomes, nil
}

// Reviews exposes the review manager for action APIs.
func (e *Engine) Reviews() *review.Manager {
	return e.reviews
}

func (e *Engine) recordRun(run *scheduler.RunResult) {
	if e.runLog == nil {
		return
	}
	statuses := make(map[string]string, len(run.Tasks))
	for id, t := range run.Tasks {
		statuses[id] = string(t.Status)
	}
	rec := store.RunRecord{
		ChangeID:   run.ChangeID,
		Status:     string(run.Status),
		TaskStatus: statuses,
		DurationMs: run.Duration.Milliseconds(),
		CreatedAt:  time.Now().UTC(),
	}
	// Best effort: run history is audit data, not control flow.
	_ = e.runLog.SaveRun(context.Background(), rec)
}
