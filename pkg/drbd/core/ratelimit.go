package core

import (
	"sync"
	"time"
)

// RateLimiter is a simple token bucket gating resync/checksum request
// throughput per peer-device. spec.md 3 mentions "resync counters and
// rate-limit marks" on PeerDevice without specifying an algorithm
// (F.3 supplement); a token bucket is the standard shape for this kind
// of byte-rate cap and needs no dependency beyond time/sync.
type RateLimiter struct {
	mu         sync.Mutex
	capacity   int64
	tokens     int64
	refillRate int64 // bytes per second
	last       time.Time
}

// NewRateLimiter builds a limiter that admits up to ratePerSecond bytes
// per second, bursting up to one second's worth of credit.
func NewRateLimiter(ratePerSecond int64) *RateLimiter {
	if ratePerSecond <= 0 {
		return &RateLimiter{refillRate: 0}
	}
	return &RateLimiter{
		capacity:   ratePerSecond,
		tokens:     ratePerSecond,
		refillRate: ratePerSecond,
		last:       time.Now(),
	}
}

// Allow reports whether size bytes of resync traffic may proceed right
// now, deducting from the bucket if so. A zero-rate limiter (disabled)
// always allows.
func (r *RateLimiter) Allow(size uint32) bool {
	if r.refillRate == 0 {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	elapsed := now.Sub(r.last).Seconds()
	r.last = now
	r.tokens += int64(elapsed * float64(r.refillRate))
	if r.tokens > r.capacity {
		r.tokens = r.capacity
	}
	if r.tokens < int64(size) {
		return false
	}
	r.tokens -= int64(size)
	return true
}
