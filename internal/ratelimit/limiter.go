// Package ratelimit implements admission control for chat requests: a
// sliding-window request cap combined with a minimum-spacing cooldown,
// tracked per client identifier in process-local memory.
//
// State does not survive restarts and is not shared across instances; a
// horizontally scaled deployment gets a looser effective limit than
// configured. That is a documented deployment limitation, not something
// this package tries to solve.
package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// clientRecord tracks admission state for one identifier.
//
// requests holds the timestamps of admitted requests still inside the
// active window at the time of the last prune, in chronological order.
// lastRequest is the most recent admitted timestamp and always equals
// the final element of requests when the slice is non-empty.
type clientRecord struct {
	requests    []time.Time
	lastRequest time.Time
}

// Limiter decides, per client identifier, whether a request may proceed.
// It is safe for concurrent use; a single mutex serializes the whole
// table, which is fine because every operation is O(window size) and
// never blocks.
//
// Construct with New and inject into handlers; do not share a package
// level instance.
type Limiter struct {
	mu      sync.Mutex
	records map[string]*clientRecord
	now     func() time.Time
}

// New returns an empty limiter using the wall clock.
func New() *Limiter {
	return &Limiter{
		records: make(map[string]*clientRecord),
		now:     time.Now,
	}
}

// CheckAndRecord evaluates the admission gates for identifier and, when
// the request is admitted, records it. It returns (true, "") on
// admission, or (false, msg) where msg is a human-phrased denial meant
// to be shown to the end user verbatim.
//
// Gates are evaluated in order and the first failing gate wins:
//
//  1. Cooldown: deny when the time since the last admitted request is
//     below cooldown. Checked first so a rapid double-submit gets the
//     specific "please wait" message instead of the generic window
//     message. A cooldown denial never consumes a window slot and never
//     updates the last-request time.
//  2. Sliding window: prune timestamps older than window, then deny
//     when the pruned count has reached maxRequests.
//
// Policy parameters are process configuration, not user input; invalid
// values are a bug at the call site and panic.
func (l *Limiter) CheckAndRecord(identifier string, maxRequests int, window, cooldown time.Duration) (bool, string) {
	if identifier == "" {
		panic("ratelimit: identifier must not be empty")
	}
	if maxRequests < 1 {
		panic(fmt.Sprintf("ratelimit: maxRequests must be >= 1, got %d", maxRequests))
	}
	if window <= 0 {
		panic(fmt.Sprintf("ratelimit: window must be positive, got %v", window))
	}
	if cooldown < 0 {
		panic(fmt.Sprintf("ratelimit: cooldown must not be negative, got %v", cooldown))
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	rec, exists := l.records[identifier]

	// Cooldown gate.
	if exists && !rec.lastRequest.IsZero() {
		sinceLast := now.Sub(rec.lastRequest)
		if sinceLast < cooldown {
			remaining := cooldown - sinceLast
			return false, fmt.Sprintf("Please wait %.1f seconds before sending another message.", remaining.Seconds())
		}
	}

	if !exists {
		rec = &clientRecord{}
		l.records[identifier] = rec
	}

	// Window gate. Pruning is lazy: it happens here, on the next check
	// for this identifier, never via a background timer.
	rec.requests = pruneBefore(rec.requests, now.Add(-window))

	if len(rec.requests) >= maxRequests {
		oldest := rec.requests[0]
		// +1 over-estimates the wait slightly so a client retrying at
		// exactly the reported mark is not denied again by clock skew.
		retryAfter := int(oldest.Add(window).Sub(now).Seconds()) + 1
		return false, fmt.Sprintf("Rate limit exceeded. Please try again in %d seconds.", retryAfter)
	}

	// Admission.
	rec.requests = append(rec.requests, now)
	rec.lastRequest = now
	return true, ""
}

// Cleanup sweeps every tracked identifier, prunes its timestamps with
// maxAge as the retention horizon, and removes identifiers left with no
// timestamps. The horizon is intentionally decoupled from any call's
// window since callers may apply different policies against the same
// limiter. It returns the number of identifiers removed.
//
// This is a maintenance operation meant to run periodically (hourly is
// plenty) to bound memory growth from one-off visitors and rotating IPs.
func (l *Limiter) Cleanup(maxAge time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-maxAge)

	removed := 0
	for identifier, rec := range l.records {
		rec.requests = pruneBefore(rec.requests, cutoff)
		if len(rec.requests) == 0 {
			delete(l.records, identifier)
			removed++
		}
	}
	return removed
}

// TrackedClients returns the number of identifiers currently tracked.
func (l *Limiter) TrackedClients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// pruneBefore retains timestamps strictly after cutoff, preserving order.
func pruneBefore(timestamps []time.Time, cutoff time.Time) []time.Time {
	// Timestamps are chronological, so find the first survivor and
	// reslice instead of filtering elementwise.
	keep := 0
	for keep < len(timestamps) && !timestamps[keep].After(cutoff) {
		keep++
	}
	if keep == 0 {
		return timestamps
	}
	return append(timestamps[:0], timestamps[keep:]...)
}
