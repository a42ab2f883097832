package reasoning

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcastillo/docrelay/internal/capability"
	"github.com/dcastillo/docrelay/internal/domain"
)

// stepCapability emits a numbered observation per call.
func stepCapability(confidence float64) (*capability.Registry, *int) {
	calls := 0
	reg := capability.NewRegistry()
	reg.Register("work", capability.Func(func(ctx context.Context, input map[string]string) (capability.Result, error) {
		calls++
		return capability.Result{
			Output: map[string]string{
				"thought":     "considering step " + input["step"],
				"action":      "draft",
				"observation": "obs-" + strconv.Itoa(calls),
			},
			Confidence: confidence,
		}, nil
	}))
	return reg, &calls
}

func TestExecuteSingleMode(t *testing.T) {
	reg, calls := stepCapability(0.9)
	r := NewRunner(reg, nil)
	task := &domain.Task{ID: "t1", Role: "work"}

	res, err := r.Execute(context.Background(), task, Decision{Mode: ModeSingle, MaxSteps: 1})
	require.NoError(t, err)

	assert.Equal(t, 1, *calls)
	assert.Equal(t, 0.9, res.Confidence)
	assert.Nil(t, task.Trace, "single mode leaves no trace")
}

func TestExecuteIterativeStopsAtBound(t *testing.T) {
	reg, calls := stepCapability(0.8)
	r := NewRunner(reg, func(string) bool { return false })
	task := &domain.Task{ID: "t1", Role: "work"}

	res, err := r.Execute(context.Background(), task, Decision{Mode: ModeIterative, MaxSteps: 5})
	require.NoError(t, err)

	// Bound reached without completion: success with discounted confidence.
	assert.Equal(t, 5, *calls)
	require.NotNil(t, task.Trace)
	assert.Len(t, task.Trace.Steps, 5)
	assert.False(t, task.Trace.Completed)
	assert.InDelta(t, 0.8*nonCompletionPenalty, res.Confidence, 1e-9)
}

func TestExecuteIterativeStopsOnCompletion(t *testing.T) {
	reg, calls := stepCapability(0.8)
	r := NewRunner(reg, func(obs string) bool { return obs == "obs-2" })
	task := &domain.Task{ID: "t1", Role: "work"}

	res, err := r.Execute(context.Background(), task, Decision{Mode: ModeIterative, MaxSteps: 5})
	require.NoError(t, err)

	assert.Equal(t, 2, *calls)
	require.NotNil(t, task.Trace)
	assert.Len(t, task.Trace.Steps, 2)
	assert.True(t, task.Trace.Completed)
	assert.Equal(t, 0.8, res.Confidence, "early completion keeps full confidence")
}

func TestExecuteIterativeFeedsObservationForward(t *testing.T) {
	var seen []string
	reg := capability.NewRegistry()
	reg.Register("work", capability.Func(func(ctx context.Context, input map[string]string) (capability.Result, error) {
		seen = append(seen, input["previous_observation"])
		return capability.Result{
			Output:     map[string]string{"observation": "obs-" + input["step"]},
			Confidence: 1,
		}, nil
	}))

	r := NewRunner(reg, nil)
	task := &domain.Task{ID: "t1", Role: "work"}
	_, err := r.Execute(context.Background(), task, Decision{Mode: ModeIterative, MaxSteps: 3})
	require.NoError(t, err)

	assert.Equal(t, []string{"", "obs-1", "obs-2"}, seen)
}

func TestExecuteIterativePropagatesCapabilityError(t *testing.T) {
	reg := capability.NewRegistry()
	reg.Register("work", capability.Func(func(ctx context.Context, input map[string]string) (capability.Result, error) {
		return capability.Result{}, errors.New("backend unavailable")
	}))

	r := NewRunner(reg, nil)
	task := &domain.Task{ID: "t1", Role: "work"}
	_, err := r.Execute(context.Background(), task, Decision{Mode: ModeIterative, MaxSteps: 3})
	assert.Error(t, err)
}

func TestExecuteRoleOverride(t *testing.T) {
	reg := capability.NewRegistry()
	reg.Register("specialist", capability.Func(func(ctx context.Context, input map[string]string) (capability.Result, error) {
		return capability.Result{Output: map[string]string{"by": "specialist"}}, nil
	}))

	r := NewRunner(reg, nil)
	task := &domain.Task{ID: "t1", Role: "generalist"}

	res, err := r.Execute(context.Background(), task, Decision{Mode: ModeSingle, RoleOverride: "specialist"})
	require.NoError(t, err)
	assert.Equal(t, "specialist", res.Output["by"])
}

func TestExecuteUnknownRole(t *testing.T) {
	r := NewRunner(capability.NewRegistry(), nil)
	task := &domain.Task{ID: "t1", Role: "nope"}

	_, err := r.Execute(context.Background(), task, Decision{Mode: ModeSingle})
	assert.ErrorIs(t, err, domain.ErrUnknownRole)
}
