package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/dcastillo/docrelay/internal/capability"
	"github.com/dcastillo/docrelay/internal/config"
	"github.com/dcastillo/docrelay/internal/domain"
	"github.com/dcastillo/docrelay/internal/reasoning"
	"github.com/dcastillo/docrelay/internal/telemetry"
)

// RunResult is the outcome of one scheduler run over a change.
type RunResult struct {
	ChangeID string
	Status   domain.RunStatus
	Tasks    map[string]*domain.Task
	Duration time.Duration
}

// Scheduler drives a task graph to completion for one change at a time.
// Tasks are owned by the run that created them; no external synchronization
// is needed to read the returned RunResult.
type Scheduler struct {
	runner      *reasoning.Runner
	policy      reasoning.Policy
	sink        telemetry.Sink
	concurrency int
	taskTimeout time.Duration

	// Callbacks for progress reporting. Optional.
	OnTaskStarted  func(taskID string)
	OnTaskFinished func(taskID string, status domain.TaskStatus)
}

// Option configures the scheduler.
type Option func(*Scheduler)

// WithConcurrency caps how many tasks run at once.
func WithConcurrency(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithTaskTimeout bounds each task invocation.
func WithTaskTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.taskTimeout = d
		}
	}
}

// WithPolicy overrides the escalation policy.
func WithPolicy(p reasoning.Policy) Option {
	return func(s *Scheduler) { s.policy = p }
}

// WithSink sets the telemetry sink.
func WithSink(sink telemetry.Sink) Option {
	return func(s *Scheduler) { s.sink = sink }
}

// New creates a scheduler executing tasks through the given registry.
// predicate may be nil; see reasoning.NewRunner.
func New(reg *capability.Registry, predicate reasoning.CompletionPredicate, opts ...Option) *Scheduler {
	cfg := config.Get()
	s := &Scheduler{
		runner:      reasoning.NewRunner(reg, predicate),
		policy:      reasoning.NewPolicy(),
		sink:        telemetry.NopSink{},
		concurrency: cfg.Concurrency,
		taskTimeout: cfg.TaskTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// taskDone carries one task completion back to the run loop.
type taskDone struct {
	id         string
	result     capability.Result
	err        error
	startedAt  time.Time
	finishedAt time.Time
}

// Run executes the task graph for a change. It returns ErrCycleDetected
// before dispatching anything if the spec is not a DAG. Task-level failures
// never abort the run; they skip the failed task's transitive dependents
// and are reported through task statuses.
func (s *Scheduler) Run(ctx context.Context, change domain.ChangeEvent, spec GraphSpec) (*RunResult, error) {
	started := time.Now()

	g, err := buildGraph(spec)
	if err != nil {
		return nil, err
	}

	tasks := make(map[string]*domain.Task, len(spec.Tasks))
	for _, ts := range spec.Tasks {
		tasks[ts.ID] = &domain.Task{
			ID:           ts.ID,
			ChangeID:     change.ID(),
			Role:         ts.Role,
			Input:        ts.Input,
			Predecessors: g.preds[ts.ID],
			Status:       domain.TaskPending,
		}
	}

	ev := telemetry.NewEvent(telemetry.EventRunStarted)
	ev.ChangeID = change.ID()
	ev.Extra = map[string]any{"tasks": len(tasks)}
	telemetry.Emit(s.sink, ev)

	remaining := make(map[string]int, len(tasks))
	for id, ps := range g.preds {
		remaining[id] = len(ps)
	}

	var ready []string
	for _, id := range g.order {
		if remaining[id] == 0 {
			ready = append(ready, id)
			tasks[id].Status = domain.TaskReady
		}
	}

	done := make(chan taskDone)
	active := 0
	terminal := 0
	cancelled := false

	dispatch := func(id string) {
		t := tasks[id]
		t.Status = domain.TaskRunning
		active++
		if s.OnTaskStarted != nil {
			s.OnTaskStarted(id)
		}
		ev := telemetry.NewEvent(telemetry.EventTaskStarted)
		ev.ChangeID = change.ID()
		ev.TaskID = id
		telemetry.Emit(s.sink, ev)

		go s.execute(ctx, change, t, done)
	}

	skip := func(id string) {
		for _, dep := range g.transitiveDependents(id) {
			t := tasks[dep]
			if t.Status.Terminal() || t.Status == domain.TaskRunning {
				continue
			}
			t.Status = domain.TaskSkipped
			terminal++
			ev := telemetry.NewEvent(telemetry.EventTaskSkipped)
			ev.ChangeID = change.ID()
			ev.TaskID = dep
			telemetry.Emit(s.sink, ev)
			if s.OnTaskFinished != nil {
				s.OnTaskFinished(dep, domain.TaskSkipped)
			}
		}
	}

	for terminal < len(tasks) && !cancelled {
		// Dispatch as many ready tasks as the concurrency limit allows.
		for len(ready) > 0 && active < s.concurrency {
			id := ready[0]
			ready = ready[1:]
			dispatch(id)
		}

		if active == 0 {
			// Nothing running and nothing dispatchable: remaining tasks are
			// unreachable (all were skipped above). Loop guard keeps us safe.
			break
		}

		select {
		case <-ctx.Done():
			// Stop dispatching immediately; in-flight tasks finish or time
			// out on their own.
			cancelled = true
		case d := <-done:
			active--
			t := tasks[d.id]
			t.StartedAt = d.startedAt
			t.CompletedAt = d.finishedAt

			if d.err != nil {
				t.Status = domain.TaskFailed
				t.Error = taskError(d.err)
				terminal++
				s.finishTask(change, t)
				skip(d.id)
				continue
			}

			t.Status = domain.TaskSucceeded
			t.Result = d.result.Output
			t.Confidence = d.result.Confidence
			terminal++
			s.finishTask(change, t)

			for _, dep := range g.dependents[d.id] {
				remaining[dep]--
				if remaining[dep] == 0 && tasks[dep].Status == domain.TaskPending {
					tasks[dep].Status = domain.TaskReady
					ready = append(ready, dep)
				}
			}
		}
	}

	if cancelled {
		// Drain stragglers so no goroutine leaks, discarding results.
		for active > 0 {
			d := <-done
			active--
			tasks[d.id].Status = domain.TaskSkipped
		}
		for _, t := range tasks {
			if !t.Status.Terminal() {
				t.Status = domain.TaskSkipped
			}
		}
		res := &RunResult{
			ChangeID: change.ID(),
			Status:   domain.RunCancelled,
			Tasks:    tasks,
			Duration: time.Since(started),
		}
		return res, ctx.Err()
	}

	res := &RunResult{
		ChangeID: change.ID(),
		Status:   overallStatus(tasks),
		Tasks:    tasks,
		Duration: time.Since(started),
	}

	ev = telemetry.NewEvent(telemetry.EventRunFinished)
	ev.ChangeID = change.ID()
	ev.Status = string(res.Status)
	ev.Duration = res.Duration.Milliseconds()
	telemetry.Emit(s.sink, ev)

	return res, nil
}

// execute runs one task with its per-task timeout and reports completion.
func (s *Scheduler) execute(ctx context.Context, change domain.ChangeEvent, t *domain.Task, done chan<- taskDone) {
	startedAt := time.Now()

	tctx, cancel := context.WithTimeout(ctx, s.taskTimeout)
	defer cancel()

	dec := s.policy.Decide(*t, change)
	res, err := s.runner.Execute(tctx, t, dec)

	done <- taskDone{
		id:         t.ID,
		result:     res,
		err:        err,
		startedAt:  startedAt,
		finishedAt: time.Now(),
	}
}

func (s *Scheduler) finishTask(change domain.ChangeEvent, t *domain.Task) {
	ev := telemetry.NewEvent(telemetry.EventTaskFinished)
	ev.ChangeID = change.ID()
	ev.TaskID = t.ID
	ev.Status = string(t.Status)
	if t.Error != nil {
		ev.Error = t.Error.Message
	}
	if !t.StartedAt.IsZero() {
		ev.Duration = t.CompletedAt.Sub(t.StartedAt).Milliseconds()
	}
	telemetry.Emit(s.sink, ev)

	if s.OnTaskFinished != nil {
		s.OnTaskFinished(t.ID, t.Status)
	}
}

// taskError converts an execution error to a structured descriptor.
func taskError(err error) *domain.TaskError {
	kind := domain.ErrKindTaskFailure
	if errors.Is(err, context.DeadlineExceeded) {
		kind = domain.ErrKindTimeout
	}
	return &domain.TaskError{Kind: kind, Message: err.Error()}
}

// overallStatus aggregates task statuses: succeeded if everything succeeded,
// failed if nothing did, partial otherwise.
func overallStatus(tasks map[string]*domain.Task) domain.RunStatus {
	succeeded := 0
	for _, t := range tasks {
		if t.Status == domain.TaskSucceeded {
			succeeded++
		}
	}
	switch {
	case succeeded == len(tasks):
		return domain.RunSucceeded
	case succeeded == 0:
		return domain.RunFailed
	default:
		return domain.RunPartial
	}
}
