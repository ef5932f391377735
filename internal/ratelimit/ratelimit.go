// Package ratelimit shields the public endpoints from abusive clients. The
// limiter uses a sliding window per client IP; a fixed window would let a
// burst straddle the boundary and double the effective rate.
package ratelimit

import (
	"sync"
	"time"
)

// Result reports one limit check.
type Result struct {
	Allowed   bool
	Remaining int
	Limit     int
	ResetAt   time.Time
}

// Limiter tracks request timestamps per key in memory. One instance guards
// one endpoint class; the registration and booking surfaces carry separate
// limiters so a booking storm cannot lock citizens out of registration.
type Limiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	buckets map[string]*slidingWindow
	now     func() time.Time
}

type slidingWindow struct {
	timestamps []time.Time
}

func NewLimiter(limit int, window time.Duration) *Limiter {
	return &Limiter{
		limit:   limit,
		window:  window,
		buckets: make(map[string]*slidingWindow),
		now:     time.Now,
	}
}

// Allow records one request for the key and reports whether it fits the
// window.
func (l *Limiter) Allow(key string) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	bucket := l.buckets[key]
	if bucket == nil {
		bucket = &slidingWindow{}
		l.buckets[key] = bucket
	}
	bucket.trim(now.Add(-l.window))

	if len(bucket.timestamps) >= l.limit {
		return Result{
			Allowed: false,
			Limit:   l.limit,
			ResetAt: bucket.timestamps[0].Add(l.window),
		}
	}

	bucket.timestamps = append(bucket.timestamps, now)
	return Result{
		Allowed:   true,
		Remaining: l.limit - len(bucket.timestamps),
		Limit:     l.limit,
		ResetAt:   bucket.timestamps[0].Add(l.window),
	}
}

// Reset clears the window for a key.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
}

func (w *slidingWindow) trim(cutoff time.Time) {
	i := 0
	for ; i < len(w.timestamps); i++ {
		if w.timestamps[i].After(cutoff) {
			break
		}
	}
	w.timestamps = w.timestamps[i:]
}
