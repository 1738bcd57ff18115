package websearch

import (
	"sync/atomic"
	"time"
)

// guard owns the shared mutable state of the search pipeline: the
// inter-request cooldown and the circuit breaker. All updates are atomic
// compare-and-set so concurrent searches serialize on the throttle
// decision without holding a lock across network I/O.
//
// Breaker policy: a single successful, unblocked fetch resets the
// consecutive-block counter; a tripped breaker stays open until the
// window elapses, with no half-open probe.
type guard struct {
	cooldown  time.Duration
	window    time.Duration
	threshold int32
	now       func() time.Time

	nextAllowed  atomic.Int64 // unix nanos of the next permitted fetch
	blockStreak  atomic.Int32
	trippedUntil atomic.Int64
}

func newGuard(cooldown, window time.Duration, threshold int, now func() time.Time) *guard {
	if now == nil {
		now = time.Now
	}
	return &guard{
		cooldown:  cooldown,
		window:    window,
		threshold: int32(threshold),
		now:       now,
	}
}

// reserve claims the next fetch slot and returns how long the caller
// must wait before issuing the request. Consecutive calls are spaced at
// least one cooldown apart regardless of which caller triggered them.
func (g *guard) reserve() time.Duration {
	for {
		now := g.now().UnixNano()
		next := g.nextAllowed.Load()
		start := now
		if next > now {
			start = next
		}
		if g.nextAllowed.CompareAndSwap(next, start+int64(g.cooldown)) {
			return time.Duration(start - now)
		}
	}
}

// open reports whether the breaker is currently tripped.
func (g *guard) open() bool {
	return g.now().UnixNano() < g.trippedUntil.Load()
}

// recordBlock counts a blocking signal and trips the breaker once the
// threshold of consecutive signals is reached. Returns true when this
// call tripped the breaker.
func (g *guard) recordBlock() bool {
	streak := g.blockStreak.Add(1)
	if streak >= g.threshold {
		g.trippedUntil.Store(g.now().Add(g.window).UnixNano())
		g.blockStreak.Store(0)
		return true
	}
	return false
}

// recordSuccess resets the consecutive-block counter.
func (g *guard) recordSuccess() {
	g.blockStreak.Store(0)
}
