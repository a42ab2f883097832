package breaker

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dcastillo/docrelay/internal/domain"
)

// testClock is a manual time source.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestRegistry(threshold int, cooldown time.Duration) (*Registry, *testClock) {
	clock := &testClock{now: time.Unix(1000, 0)}
	return NewRegistry(threshold, cooldown, WithClock(clock.Now)), clock
}

func TestBreakerStaysClosedBelowThreshold(t *testing.T) {
	r, _ := newTestRegistry(3, time.Minute)

	r.Failure("wiki")
	r.Failure("wiki")

	assert.True(t, r.Allow("wiki"))
	assert.Equal(t, domain.BreakerClosed, r.Get("wiki").State)
	assert.Equal(t, 2, r.Get("wiki").Failures)
}

func TestBreakerOpensAtThreshold(t *testing.T) {
	r, _ := newTestRegistry(3, time.Minute)

	for i := 0; i < 3; i++ {
		r.Failure("wiki")
	}

	assert.Equal(t, domain.BreakerOpen, r.Get("wiki").State)
	assert.False(t, r.Allow("wiki"))
}

func TestBreakerSuccessResetsFailures(t *testing.T) {
	r, _ := newTestRegistry(3, time.Minute)

	r.Failure("wiki")
	r.Failure("wiki")
	r.Success("wiki")
	r.Failure("wiki")
	r.Failure("wiki")

	// Consecutive count restarted; still closed.
	assert.Equal(t, domain.BreakerClosed, r.Get("wiki").State)
}

func TestBreakerHalfOpenAfterCooldown(t *testing.T) {
	r, clock := newTestRegistry(2, time.Minute)

	r.Failure("wiki")
	r.Failure("wiki")
	assert.False(t, r.Allow("wiki"))

	clock.Advance(61 * time.Second)

	// Exactly one trial call is admitted.
	assert.True(t, r.Allow("wiki"))
	assert.Equal(t, domain.BreakerHalfOpen, r.Get("wiki").State)
	assert.False(t, r.Allow("wiki"))
}

func TestBreakerTrialSuccessCloses(t *testing.T) {
	r, clock := newTestRegistry(2, time.Minute)

	r.Failure("wiki")
	r.Failure("wiki")
	clock.Advance(2 * time.Minute)

	assert.True(t, r.Allow("wiki"))
	r.Success("wiki")

	assert.Equal(t, domain.BreakerClosed, r.Get("wiki").State)
	assert.Equal(t, 0, r.Get("wiki").Failures)
	assert.True(t, r.Allow("wiki"))
}

func TestBreakerTrialFailureReopens(t *testing.T) {
	r, clock := newTestRegistry(2, time.Minute)

	r.Failure("wiki")
	r.Failure("wiki")
	clock.Advance(2 * time.Minute)

	assert.True(t, r.Allow("wiki"))
	r.Failure("wiki")

	assert.Equal(t, domain.BreakerOpen, r.Get("wiki").State)
	assert.False(t, r.Allow("wiki"))

	// A fresh cooldown applies after the failed trial.
	clock.Advance(2 * time.Minute)
	assert.True(t, r.Allow("wiki"))
}

func TestBreakerDestinationsIndependent(t *testing.T) {
	r, _ := newTestRegistry(1, time.Minute)

	r.Failure("wiki")

	assert.False(t, r.Allow("wiki"))
	assert.True(t, r.Allow("portal"))
}

func TestBreakerConcurrentFailuresNotLost(t *testing.T) {
	r, _ := newTestRegistry(1000, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				r.Failure("wiki")
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 500, r.Get("wiki").Failures)
}

func TestBreakerAll(t *testing.T) {
	r, _ := newTestRegistry(2, time.Minute)

	r.Allow("wiki")
	r.Failure("portal")

	snaps := r.All()
	assert.Len(t, snaps, 2)
	assert.Equal(t, domain.BreakerClosed, snaps["wiki"].State)
	assert.Equal(t, 1, snaps["portal"].Failures)
}
