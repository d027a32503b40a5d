// Package ratelimit provides per-key token bucket rate limiting for
// follow-mode benchmark reports. Denied keys are remembered so a caller can
// flush them once their bucket refills and no update is lost.
package ratelimit

import (
	"sort"
	"sync"
	"time"
)

// Limiter implements a per-key token bucket rate limiter.
// Each key gets its own bucket with the configured rate and burst.
// It is safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	pending map[string]bool
	rate    float64          // tokens per second
	burst   int              // max burst size (also initial token count)
	nowFunc func() time.Time // injectable clock for testing
}

type bucket struct {
	tokens    float64
	lastCheck time.Time
}

// NewLimiter creates a rate limiter with the given rate (tokens/sec) and burst size.
// The burst size also serves as the initial number of tokens available.
func NewLimiter(rate float64, burst int) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		pending: make(map[string]bool),
		rate:    rate,
		burst:   burst,
		nowFunc: time.Now,
	}
}

// Allow checks if a request for the given key should be allowed.
// Returns true if allowed; a rejected key becomes pending until Due
// returns it or a later Allow succeeds.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.take(key, l.nowFunc()) {
		delete(l.pending, key)
		return true
	}
	l.pending[key] = true
	return false
}

// Due returns the pending keys whose buckets have refilled, sorted, and
// consumes a token for each.
func (l *Limiter) Due() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFunc()
	var due []string
	for key := range l.pending {
		if l.take(key, now) {
			delete(l.pending, key)
			due = append(due, key)
		}
	}
	sort.Strings(due)
	return due
}

// Pending reports how many keys are waiting for a refill.
func (l *Limiter) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// take refills key's bucket up to now and consumes one token if available.
func (l *Limiter) take(key string, now time.Time) bool {
	b, ok := l.buckets[key]
	if !ok {
		// First request for this key: start with full burst
		b = &bucket{
			tokens:    float64(l.burst),
			lastCheck: now,
		}
		l.buckets[key] = b
	}

	// Refill tokens based on elapsed time
	elapsed := now.Sub(b.lastCheck).Seconds()
	if elapsed > 0 {
		b.tokens += l.rate * elapsed
		if b.tokens > float64(l.burst) {
			b.tokens = float64(l.burst)
		}
		b.lastCheck = now
	}

	if b.tokens < 1.0 {
		return false
	}
	b.tokens--
	return true
}
