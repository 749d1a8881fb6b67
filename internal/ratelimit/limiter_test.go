package ratelimit

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// testClock drives the limiter deterministically.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestLimiter() (*Limiter, *testClock) {
	clock := &testClock{t: time.Unix(1700000000, 0)}
	l := New()
	l.now = clock.Now
	return l, clock
}

func TestFirstRequestAlwaysAllowed(t *testing.T) {
	l, _ := newTestLimiter()

	allowed, msg := l.CheckAndRecord("session:first", 1, 10*time.Second, time.Second)
	require.True(t, allowed)
	require.Empty(t, msg)
}

func TestAllowsSequenceUnderLimit(t *testing.T) {
	l, clock := newTestLimiter()

	for i := 0; i < 5; i++ {
		allowed, msg := l.CheckAndRecord("session:seq", 5, 10*time.Second, 100*time.Millisecond)
		require.True(t, allowed, "request %d should be allowed", i+1)
		require.Empty(t, msg)
		clock.Advance(150 * time.Millisecond)
	}
}

func TestDeniesOverWindowLimit(t *testing.T) {
	l, clock := newTestLimiter()

	for i := 0; i < 5; i++ {
		allowed, _ := l.CheckAndRecord("session:over", 5, 10*time.Second, 100*time.Millisecond)
		require.True(t, allowed)
		clock.Advance(150 * time.Millisecond)
	}

	allowed, msg := l.CheckAndRecord("session:over", 5, 10*time.Second, 100*time.Millisecond)
	require.False(t, allowed)
	require.Contains(t, msg, "Rate limit exceeded")
}

func TestWindowDenialMessageReportsRetryAfter(t *testing.T) {
	l, clock := newTestLimiter()

	allowed, _ := l.CheckAndRecord("session:retry", 1, 10*time.Second, 0)
	require.True(t, allowed)

	// 4s into the window: the slot frees in 6s, reported as 7 (floor+1).
	clock.Advance(4 * time.Second)
	allowed, msg := l.CheckAndRecord("session:retry", 1, 10*time.Second, 0)
	require.False(t, allowed)
	require.Equal(t, "Rate limit exceeded. Please try again in 7 seconds.", msg)
}

func TestCooldownDenial(t *testing.T) {
	l, clock := newTestLimiter()

	allowed, _ := l.CheckAndRecord("session:cool", 10, time.Minute, time.Second)
	require.True(t, allowed)

	clock.Advance(500 * time.Millisecond)
	allowed, msg := l.CheckAndRecord("session:cool", 10, time.Minute, time.Second)
	require.False(t, allowed)
	require.Contains(t, msg, "Please wait")
	require.Equal(t, "Please wait 0.5 seconds before sending another message.", msg)

	clock.Advance(600 * time.Millisecond)
	allowed, _ = l.CheckAndRecord("session:cool", 10, time.Minute, time.Second)
	require.True(t, allowed)
}

func TestCooldownDenialDoesNotConsumeWindowSlot(t *testing.T) {
	l, clock := newTestLimiter()
	const max = 3

	allowed, _ := l.CheckAndRecord("session:slots", max, time.Minute, time.Second)
	require.True(t, allowed)

	// Denied by cooldown; must not count against the window.
	clock.Advance(200 * time.Millisecond)
	allowed, _ = l.CheckAndRecord("session:slots", max, time.Minute, time.Second)
	require.False(t, allowed)

	// Two more admissions still fit: the denial consumed nothing.
	clock.Advance(time.Second)
	allowed, _ = l.CheckAndRecord("session:slots", max, time.Minute, time.Second)
	require.True(t, allowed)

	clock.Advance(1100 * time.Millisecond)
	allowed, _ = l.CheckAndRecord("session:slots", max, time.Minute, time.Second)
	require.True(t, allowed)

	// Window is now genuinely full.
	clock.Advance(1100 * time.Millisecond)
	allowed, msg := l.CheckAndRecord("session:slots", max, time.Minute, time.Second)
	require.False(t, allowed)
	require.Contains(t, msg, "Rate limit exceeded")
}

func TestSlidingWindowReadmitsAfterExpiry(t *testing.T) {
	l, clock := newTestLimiter()

	for i := 0; i < 3; i++ {
		allowed, _ := l.CheckAndRecord("session:slide", 3, time.Second, 100*time.Millisecond)
		require.True(t, allowed)
		clock.Advance(150 * time.Millisecond)
	}

	allowed, _ := l.CheckAndRecord("session:slide", 3, time.Second, 100*time.Millisecond)
	require.False(t, allowed)

	// A sliding window, not a fixed reset: once the oldest admission
	// leaves the trailing window, a slot opens.
	clock.Advance(1200 * time.Millisecond)
	allowed, _ = l.CheckAndRecord("session:slide", 3, time.Second, 100*time.Millisecond)
	require.True(t, allowed)
}

func TestIdentifiersAreIndependent(t *testing.T) {
	l, clock := newTestLimiter()

	for i := 0; i < 5; i++ {
		allowed, _ := l.CheckAndRecord("user:a", 5, 10*time.Second, 100*time.Millisecond)
		require.True(t, allowed)
		clock.Advance(150 * time.Millisecond)
	}

	allowed, _ := l.CheckAndRecord("user:a", 5, 10*time.Second, 100*time.Millisecond)
	require.False(t, allowed)

	allowed, _ = l.CheckAndRecord("user:b", 5, 10*time.Second, 100*time.Millisecond)
	require.True(t, allowed)
}

func TestCleanupRemovesStaleKeepsFresh(t *testing.T) {
	l, clock := newTestLimiter()

	allowed, _ := l.CheckAndRecord("session:stale", 10, time.Hour, 0)
	require.True(t, allowed)

	clock.Advance(30 * time.Minute)
	allowed, _ = l.CheckAndRecord("session:fresh", 10, time.Hour, 0)
	require.True(t, allowed)

	clock.Advance(45 * time.Minute)
	removed := l.Cleanup(time.Hour)
	require.Equal(t, 1, removed)
	require.Equal(t, 1, l.TrackedClients())

	// The stale identifier starts from scratch; the fresh one kept its state.
	allowed, _ = l.CheckAndRecord("session:stale", 1, 2*time.Hour, 0)
	require.True(t, allowed)
	allowed, _ = l.CheckAndRecord("session:fresh", 1, 2*time.Hour, 0)
	require.False(t, allowed)
}

func TestCleanupResetsCooldownState(t *testing.T) {
	l, clock := newTestLimiter()

	allowed, _ := l.CheckAndRecord("session:gone", 10, time.Minute, time.Hour)
	require.True(t, allowed)

	clock.Advance(2 * time.Minute)
	l.Cleanup(time.Minute)

	// Record removed entirely, so the long cooldown no longer applies.
	allowed, _ = l.CheckAndRecord("session:gone", 10, time.Minute, time.Hour)
	require.True(t, allowed)
}

func TestInvalidPolicyPanics(t *testing.T) {
	l, _ := newTestLimiter()

	require.Panics(t, func() { l.CheckAndRecord("", 5, time.Minute, 0) })
	require.Panics(t, func() { l.CheckAndRecord("session:x", 0, time.Minute, 0) })
	require.Panics(t, func() { l.CheckAndRecord("session:x", 5, 0, 0) })
	require.Panics(t, func() { l.CheckAndRecord("session:x", 5, time.Minute, -time.Second) })
}

func TestEndToEndScenario(t *testing.T) {
	// Policy: 5 requests / 10s window / 1s cooldown.
	l, clock := newTestLimiter()

	for i := 0; i < 5; i++ {
		allowed, msg := l.CheckAndRecord("session:abc", 5, 10*time.Second, time.Second)
		require.True(t, allowed, "request %d: %s", i+1, msg)
		clock.Advance(1100 * time.Millisecond)
	}

	allowed, msg := l.CheckAndRecord("session:abc", 5, 10*time.Second, time.Second)
	require.False(t, allowed)
	require.Contains(t, msg, "Rate limit exceeded")
	require.Contains(t, msg, "try again in")

	var retryAfter int
	_, err := fmt.Sscanf(msg, "Rate limit exceeded. Please try again in %d seconds.", &retryAfter)
	require.NoError(t, err)
	require.Positive(t, retryAfter)

	// 10s after the first admission the window has slid past it.
	clock.Advance(10*time.Second - 5*1100*time.Millisecond)
	allowed, msg = l.CheckAndRecord("session:abc", 5, 10*time.Second, time.Second)
	require.True(t, allowed, msg)
}

func TestConcurrentSameIdentifierAdmitsExactlyMax(t *testing.T) {
	// No lost updates, no duplicate admissions: with cooldown disabled
	// and N goroutines racing on one identifier, exactly maxRequests
	// win.
	l, _ := newTestLimiter()
	const max = 7
	const workers = 50

	var wg sync.WaitGroup
	var admitted int64
	var mu sync.Mutex

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			allowed, _ := l.CheckAndRecord("session:race", max, time.Minute, 0)
			if allowed {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.EqualValues(t, max, admitted)
}

func TestConcurrentDistinctIdentifiers(t *testing.T) {
	l, _ := newTestLimiter()
	const workers = 32

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("ip:10.0.0.%d", n)
			allowed, _ := l.CheckAndRecord(id, 1, time.Minute, 0)
			require.True(t, allowed)
		}(i)
	}
	wg.Wait()

	require.Equal(t, workers, l.TrackedClients())
}
