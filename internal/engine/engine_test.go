package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcastillo/docrelay/internal/breaker"
	"github.com/dcastillo/docrelay/internal/capability"
	"github.com/dcastillo/docrelay/internal/decompose"
	"github.com/dcastillo/docrelay/internal/domain"
	"github.com/dcastillo/docrelay/internal/publish"
	"github.com/dcastillo/docrelay/internal/review"
	"github.com/dcastillo/docrelay/internal/scheduler"
	"github.com/dcastillo/docrelay/internal/store"
)

// memoryLog records run and job saves for assertions.
type memoryLog struct {
	mu   sync.Mutex
	runs []store.RunRecord
	jobs []domain.PublishJob
}

func (l *memoryLog) SaveRun(_ context.Context, rec store.RunRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.runs = append(l.runs, rec)
	return nil
}

func (l *memoryLog) SaveJob(_ context.Context, job domain.PublishJob) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.jobs = append(l.jobs, job)
	return nil
}

func newTestRegistry(confidence float64) *capability.Registry {
	reg := capability.NewRegistry()
	stub := func(role string) capability.Func {
		return func(_ context.Context, _ map[string]string) (capability.Result, error) {
			return capability.Result{
				Output:     map[string]string{"content": role + " output"},
				Confidence: confidence,
			}, nil
		}
	}
	for _, role := range []string{"change-analysis", "content-generation", "quality-check"} {
		reg.Register(role, stub(role))
	}
	return reg
}

func newTestEngine(t *testing.T, confidence, autoThreshold float64) (*Engine, *memoryLog) {
	t.Helper()

	sched := scheduler.New(newTestRegistry(confidence), nil, scheduler.WithConcurrency(2))
	reviews := review.NewManager(store.NewMemory(),
		review.WithAutoApprove(review.ConfidenceAbove(autoThreshold)))

	brk := breaker.NewRegistry(5, time.Minute)
	pub := publish.New(brk, publish.WithRetryCap(2))
	pub.RegisterAdapter("workspace", publish.AdapterFunc(func(context.Context, string, publish.ChangeSet) error {
		return nil
	}))
	pub.Route("github", "workspace")

	log := &memoryLog{}
	eng := New(decompose.NewRuleDecomposer(decompose.DefaultRules()...), sched, reviews, pub, WithRunLog(log))
	return eng, log
}

func testChange() domain.ChangeEvent {
	return domain.ChangeEvent{
		Source:     "github",
		ExternalID: "PR-7",
		Kind:       domain.KindCodeChange,
		Payload:    map[string]string{"artifacts": "api/handler.go\ndocs/usage.md"},
		ReceivedAt: time.Now().UTC(),
	}
}

func TestProcessOpensReview(t *testing.T) {
	eng, log := newTestEngine(t, 0.8, 0.95)

	res, err := eng.Process(context.Background(), testChange())
	require.NoError(t, err)
	require.NotNil(t, res.Run)
	assert.Equal(t, domain.RunSucceeded, res.Run.Status)

	require.NotNil(t, res.Review)
	assert.Equal(t, domain.ReviewPending, res.Review.Status)
	assert.Equal(t, "github/PR-7", res.Review.ChangeID)
	assert.NotEmpty(t, res.Review.ChangeSet)

	require.Len(t, log.runs, 1)
	assert.Equal(t, "github/PR-7", log.runs[0].ChangeID)
	assert.Equal(t, string(domain.RunSucceeded), log.runs[0].Status)
}

func TestProcessAutoApprovesConfidentRuns(t *testing.T) {
	eng, _ := newTestEngine(t, 0.98, 0.95)

	res, err := eng.Process(context.Background(), testChange())
	require.NoError(t, err)
	require.NotNil(t, res.Review)
	assert.Equal(t, domain.ReviewAutoApproved, res.Review.Status)
}

func TestReleasePublishesApprovedReview(t *testing.T) {
	eng, log := newTestEngine(t, 0.98, 0.95)

	res, err := eng.Process(context.Background(), testChange())
	require.NoError(t, err)
	require.True(t, res.Review.Status.Approved())

	outcomes, err := eng.Release(context.Background(), res.Review.ID)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, domain.JobSucceeded, outcomes["workspace"].Job.Status)

	require.Len(t, log.jobs, 1)
	assert.Equal(t, res.Review.ID, log.jobs[0].ReviewID)
}

func TestReleaseRejectsPendingReview(t *testing.T) {
	eng, _ := newTestEngine(t, 0.8, 0.95)

	res, err := eng.Process(context.Background(), testChange())
	require.NoError(t, err)
	require.Equal(t, domain.ReviewPending, res.Review.Status)

	_, err = eng.Release(context.Background(), res.Review.ID)
	assert.ErrorIs(t, err, domain.ErrNotApproved)
}

func TestReleaseUnknownReview(t *testing.T) {
	eng, _ := newTestEngine(t, 0.8, 0.95)

	_, err := eng.Release(context.Background(), "missing")
	assert.True(t, store.IsNotFound(err))
}

func TestProcessManualApproveThenRelease(t *testing.T) {
	eng, _ := newTestEngine(t, 0.8, 0.95)
	ctx := context.Background()

	res, err := eng.Process(ctx, testChange())
	require.NoError(t, err)

	_, err = eng.Reviews().Assign(ctx, res.Review.ID, "dana")
	require.NoError(t, err)
	approved, err := eng.Reviews().Approve(ctx, res.Review.ID, "dana", "looks right")
	require.NoError(t, err)
	assert.Equal(t, domain.ReviewApproved, approved.Status)

	outcomes, err := eng.Release(ctx, res.Review.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobSucceeded, outcomes["workspace"].Job.Status)
}
