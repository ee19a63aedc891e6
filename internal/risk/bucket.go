package risk

import "sync"

// TokenBucket is a continuously-refilling rate limiter gated on a Clock's
// timestamp rather than the wall clock, so it stays deterministic under a
// TestClock (§4.7 "No wall reads are permitted on a test-clock") — refill
// only advances when the caller hands it a fresh TsNowNs, typically the
// same clock.TimestampNs() value the rest of the engine is reacting to.
// One bucket backs one throttled endpoint (§4.10 "token-bucket per
// endpoint").
type TokenBucket struct {
	mu       sync.Mutex
	tokens   float64
	capacity float64
	rate     float64 // tokens per second
	lastNs   int64
}

// NewTokenBucket creates a bucket with the given burst capacity and
// steady-state refill rate (tokens per second), starting full as of nowNs.
func NewTokenBucket(capacity, ratePerSecond float64, nowNs int64) *TokenBucket {
	return &TokenBucket{
		tokens:   capacity,
		capacity: capacity,
		rate:     ratePerSecond,
		lastNs:   nowNs,
	}
}

// TryTake reports whether a token is immediately available as of nowNs,
// consuming it if so, without blocking — the kernel's cooperative
// single-threaded path always denies rather than stalls the event loop, so
// this is the only operation TokenBucket needs.
func (tb *TokenBucket) TryTake(nowNs int64) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	elapsed := float64(nowNs-tb.lastNs) / float64(1e9)
	if elapsed > 0 {
		tb.tokens += elapsed * tb.rate
		if tb.tokens > tb.capacity {
			tb.tokens = tb.capacity
		}
	}
	tb.lastNs = nowNs

	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}
	return false
}
