package capability

import (
	"context"
	"errors"
	"testing"

	"github.com/dcastillo/docrelay/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndInvoke(t *testing.T) {
	reg := NewRegistry()
	reg.Register("echo", Func(func(_ context.Context, input map[string]string) (Result, error) {
		return Result{Output: map[string]string{"got": input["msg"]}, Confidence: 1}, nil
	}))

	res, err := reg.Invoke(context.Background(), "echo", map[string]string{"msg": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", res.Output["got"])
	assert.Equal(t, 1.0, res.Confidence)
}

func TestLookupUnknownRole(t *testing.T) {
	reg := NewRegistry()

	_, err := reg.Lookup("nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUnknownRole))
	assert.Contains(t, err.Error(), "nope")

	_, err = reg.Invoke(context.Background(), "nope", nil)
	assert.True(t, errors.Is(err, domain.ErrUnknownRole))
}

func TestRegisterReplaces(t *testing.T) {
	reg := NewRegistry()
	reg.Register("r", Func(func(context.Context, map[string]string) (Result, error) {
		return Result{Confidence: 0.1}, nil
	}))
	reg.Register("r", Func(func(context.Context, map[string]string) (Result, error) {
		return Result{Confidence: 0.9}, nil
	}))

	res, err := reg.Invoke(context.Background(), "r", nil)
	require.NoError(t, err)
	assert.Equal(t, 0.9, res.Confidence)
}

func TestRolesSorted(t *testing.T) {
	reg := NewRegistry()
	for _, role := range []string{"zeta", "alpha", "mid"} {
		reg.Register(role, Func(func(context.Context, map[string]string) (Result, error) {
			return Result{}, nil
		}))
	}

	assert.Equal(t, []string{"alpha", "mid", "zeta"}, reg.Roles())
}

func TestInvokePropagatesError(t *testing.T) {
	reg := NewRegistry()
	boom := errors.New("boom")
	reg.Register("fail", Func(func(context.Context, map[string]string) (Result, error) {
		return Result{}, boom
	}))

	_, err := reg.Invoke(context.Background(), "fail", nil)
	assert.ErrorIs(t, err, boom)
}
