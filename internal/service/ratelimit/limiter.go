// Package ratelimit provides per-key token buckets for inbound requests.
package ratelimit

import (
	"sync"
	"time"
)

type bucket struct {
	tokens float64
	last   time.Time
}

// Limiter holds one token bucket per key. Buckets start full.
type Limiter struct {
	capacity   float64
	refillRate float64 // tokens per second
	now        func() time.Time

	mu        sync.Mutex
	m         map[string]*bucket
	lastSweep time.Time
}

// sweepEvery bounds how often Allow drops idle buckets.
const sweepEvery = time.Minute

func New(capacity int, refillPerSec float64) *Limiter {
	return &Limiter{
		capacity:   float64(capacity),
		refillRate: refillPerSec,
		now:        time.Now,
		m:          make(map[string]*bucket),
	}
}

// WithClock replaces time.Now, for tests.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Allow consumes one token for key and reports whether one was available.
func (l *Limiter) Allow(key string) bool {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) >= sweepEvery {
		l.sweepLocked(now, l.refillTime())
		l.lastSweep = now
	}

	b, ok := l.m[key]
	if !ok {
		b = &bucket{tokens: l.capacity, last: now}
		l.m[key] = b
	}
	if elapsed := now.Sub(b.last).Seconds(); elapsed > 0 {
		b.tokens = min(l.capacity, b.tokens+elapsed*l.refillRate)
		b.last = now
	}
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// Sweep drops buckets idle for at least idle; they would be full again anyway.
func (l *Limiter) Sweep(idle time.Duration) int {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sweepLocked(now, idle)
}

// refillTime is how long an empty bucket takes to fill up again.
func (l *Limiter) refillTime() time.Duration {
	if l.refillRate <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(l.capacity / l.refillRate * float64(time.Second))
}

func (l *Limiter) sweepLocked(now time.Time, idle time.Duration) int {
	n := 0
	for k, b := range l.m {
		if now.Sub(b.last) >= idle {
			delete(l.m, k)
			n++
		}
	}
	return n
}
