package publish

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcastillo/docrelay/internal/breaker"
	"github.com/dcastillo/docrelay/internal/domain"
)

func approvedReview() domain.Review {
	return domain.Review{
		ID:       "rev-1",
		ChangeID: "github/PR-1",
		Source:   "github",
		Status:   domain.ReviewApproved,
		ChangeSet: map[string]map[string]string{
			"generate-api-docs": {"content": "# Docs"},
		},
	}
}

func newTestPublisher(t *testing.T, threshold int) *Publisher {
	t.Helper()
	breakers := breaker.NewRegistry(threshold, time.Minute)
	return New(breakers,
		WithCallTimeout(time.Second),
		WithRetryCap(3),
		WithSleep(func(context.Context, time.Duration) {}),
	)
}

func TestPublishSingleDestination(t *testing.T) {
	p := newTestPublisher(t, 5)
	var got ChangeSet
	p.RegisterAdapter("wiki", AdapterFunc(func(ctx context.Context, dest string, cs ChangeSet) error {
		got = cs
		return nil
	}))
	p.Route("github", "wiki")

	outcomes, err := p.Publish(context.Background(), approvedReview())
	require.NoError(t, err)

	require.Len(t, outcomes, 1)
	assert.Equal(t, domain.JobSucceeded, outcomes["wiki"].Job.Status)
	assert.Equal(t, 1, outcomes["wiki"].Job.Attempts)
	assert.Equal(t, "# Docs", got["generate-api-docs"]["content"])
}

func TestPublishIsolatesFailures(t *testing.T) {
	p := newTestPublisher(t, 5)
	p.RegisterAdapter("always-fails", AdapterFunc(func(ctx context.Context, dest string, cs ChangeSet) error {
		return errors.New("destination down")
	}))
	p.RegisterAdapter("always-succeeds", AdapterFunc(func(ctx context.Context, dest string, cs ChangeSet) error {
		return nil
	}))
	p.Route("github", "always-fails", "always-succeeds")

	outcomes, err := p.Publish(context.Background(), approvedReview())
	require.NoError(t, err)

	assert.Equal(t, domain.JobFailed, outcomes["always-fails"].Job.Status)
	assert.Equal(t, 3, outcomes["always-fails"].Job.Attempts)
	assert.Contains(t, outcomes["always-fails"].Job.LastError, "destination down")
	assert.Equal(t, domain.JobSucceeded, outcomes["always-succeeds"].Job.Status)
}

func TestPublishRetriesThenSucceeds(t *testing.T) {
	p := newTestPublisher(t, 5)
	var calls atomic.Int32
	p.RegisterAdapter("flaky", AdapterFunc(func(ctx context.Context, dest string, cs ChangeSet) error {
		if calls.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	}))
	p.Route("github", "flaky")

	outcomes, err := p.Publish(context.Background(), approvedReview())
	require.NoError(t, err)

	assert.Equal(t, domain.JobSucceeded, outcomes["flaky"].Job.Status)
	assert.Equal(t, 3, outcomes["flaky"].Job.Attempts)
	assert.Empty(t, outcomes["flaky"].Job.LastError)
}

func TestPublishCircuitOpenShortCircuits(t *testing.T) {
	breakers := breaker.NewRegistry(2, time.Minute)
	p := New(breakers,
		WithCallTimeout(time.Second),
		WithRetryCap(1),
		WithSleep(func(context.Context, time.Duration) {}),
	)

	var calls atomic.Int32
	p.RegisterAdapter("wiki", AdapterFunc(func(ctx context.Context, dest string, cs ChangeSet) error {
		calls.Add(1)
		return errors.New("down")
	}))
	p.Route("github", "wiki")

	// Two failed publishes open the breaker.
	for i := 0; i < 2; i++ {
		outcomes, err := p.Publish(context.Background(), approvedReview())
		require.NoError(t, err)
		assert.Equal(t, domain.JobFailed, outcomes["wiki"].Job.Status)
	}
	before := calls.Load()

	// Next job is created in circuit_open and never dispatched.
	outcomes, err := p.Publish(context.Background(), approvedReview())
	require.NoError(t, err)
	assert.Equal(t, domain.JobCircuitOpen, outcomes["wiki"].Job.Status)
	assert.Equal(t, 0, outcomes["wiki"].Job.Attempts)
	assert.Equal(t, before, calls.Load())
}

func TestPublishHalfOpenSingleTrial(t *testing.T) {
	clock := time.Unix(1000, 0)
	now := func() time.Time { return clock }
	breakers := breaker.NewRegistry(1, time.Minute, breaker.WithClock(func() time.Time { return now() }))

	p := New(breakers,
		WithCallTimeout(time.Second),
		WithRetryCap(3),
		WithSleep(func(context.Context, time.Duration) {}),
	)

	var calls atomic.Int32
	p.RegisterAdapter("wiki", AdapterFunc(func(ctx context.Context, dest string, cs ChangeSet) error {
		calls.Add(1)
		return nil
	}))
	p.Route("github", "wiki")

	// Open the breaker directly.
	breakers.Failure("wiki")
	outcomes, err := p.Publish(context.Background(), approvedReview())
	require.NoError(t, err)
	assert.Equal(t, domain.JobCircuitOpen, outcomes["wiki"].Job.Status)

	// After the cooldown the trial call runs exactly once, then closes.
	clock = clock.Add(2 * time.Minute)
	outcomes, err = p.Publish(context.Background(), approvedReview())
	require.NoError(t, err)
	assert.Equal(t, domain.JobSucceeded, outcomes["wiki"].Job.Status)
	assert.Equal(t, 1, outcomes["wiki"].Job.Attempts)
	assert.Equal(t, int32(1), calls.Load())
}

func TestPublishRejectsUnapprovedReview(t *testing.T) {
	p := newTestPublisher(t, 5)
	review := approvedReview()
	review.Status = domain.ReviewRejected

	_, err := p.Publish(context.Background(), review)
	assert.ErrorIs(t, err, domain.ErrNotApproved)
}

func TestPublishRejectsUnknownDestination(t *testing.T) {
	p := newTestPublisher(t, 5)
	p.Route("github", "nowhere")

	_, err := p.Publish(context.Background(), approvedReview())
	assert.ErrorIs(t, err, domain.ErrUnknownDestination)
}

func TestPublishAutoApprovedReviewAllowed(t *testing.T) {
	p := newTestPublisher(t, 5)
	p.RegisterAdapter("wiki", AdapterFunc(func(ctx context.Context, dest string, cs ChangeSet) error {
		return nil
	}))
	p.Route("github", "wiki")

	review := approvedReview()
	review.Status = domain.ReviewAutoApproved

	outcomes, err := p.Publish(context.Background(), review)
	require.NoError(t, err)
	assert.Equal(t, domain.JobSucceeded, outcomes["wiki"].Job.Status)
}

func TestPublishCancelledContextStopsRetries(t *testing.T) {
	p := newTestPublisher(t, 100)
	ctx, cancel := context.WithCancel(context.Background())

	var calls atomic.Int32
	p.RegisterAdapter("wiki", AdapterFunc(func(ctx context.Context, dest string, cs ChangeSet) error {
		calls.Add(1)
		cancel()
		return errors.New("down")
	}))
	p.Route("github", "wiki")

	outcomes, err := p.Publish(ctx, approvedReview())
	require.NoError(t, err)
	assert.Equal(t, domain.JobFailed, outcomes["wiki"].Job.Status)
	assert.Equal(t, int32(1), calls.Load())
}
