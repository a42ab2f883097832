package reasoning

import (
	"context"
	"strconv"

	"github.com/dcastillo/docrelay/internal/capability"
	"github.com/dcastillo/docrelay/internal/domain"
)

// CompletionPredicate reports whether a step's observation satisfies the
// task goal, ending the loop early. Supplied by the host.
type CompletionPredicate func(observation string) bool

// nonCompletionPenalty discounts confidence when the loop exhausts its step
// budget without satisfying the completion predicate.
const nonCompletionPenalty = 0.75

// Runner executes tasks against the capability registry, either single-shot
// or through the bounded reasoning loop.
type Runner struct {
	registry  *capability.Registry
	completed CompletionPredicate
}

// NewRunner creates a runner. predicate may be nil, in which case the loop
// always runs to its step bound.
func NewRunner(reg *capability.Registry, predicate CompletionPredicate) *Runner {
	return &Runner{registry: reg, completed: predicate}
}

// Execute runs one task according to the policy decision. In iterative mode
// each step appends to the task's ReasoningTrace; hitting the step bound
// without completion is not an error.
func (r *Runner) Execute(ctx context.Context, task *domain.Task, dec Decision) (capability.Result, error) {
	role := task.Role
	if dec.RoleOverride != "" {
		role = dec.RoleOverride
	}

	if dec.Mode != ModeIterative {
		return r.registry.Invoke(ctx, role, task.Input)
	}

	trace := &domain.ReasoningTrace{}
	task.Trace = trace

	var last capability.Result
	observation := ""

	// Explicit loop with a step counter: each cycle is one capability call.
	for step := 1; step <= dec.MaxSteps; step++ {
		input := make(map[string]string, len(task.Input)+2)
		for k, v := range task.Input {
			input[k] = v
		}
		input["step"] = strconv.Itoa(step)
		if observation != "" {
			input["previous_observation"] = observation
		}

		res, err := r.registry.Invoke(ctx, role, input)
		if err != nil {
			return capability.Result{}, err
		}
		last = res

		observation = res.Output["observation"]
		trace.Append(domain.ReasoningStep{
			Thought:     res.Output["thought"],
			Action:      res.Output["action"],
			Observation: observation,
		}, res.Confidence)

		if r.completed != nil && r.completed(observation) {
			trace.Completed = true
			return last, nil
		}

		select {
		case <-ctx.Done():
			return capability.Result{}, ctx.Err()
		default:
		}
	}

	// Bound reached without completion: still a success, lower confidence.
	last.Confidence *= nonCompletionPenalty
	trace.Confidence = last.Confidence
	return last, nil
}
