// Package ratelimit implements per-caller request limits with lazily refilled
// token buckets. Buckets hold a minute's worth of requests and refill
// continuously; there is no background goroutine.
package ratelimit

import (
	"math"
	"sync"
	"time"
)

// Result is the outcome of a single Allow call.
type Result struct {
	Allowed    bool
	Limit      int64 // requests per minute, 0 when unlimited
	Remaining  int64
	RetryAfter time.Duration // zero when allowed
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds for the
// Retry-After header.
func (r Result) RetryAfterSeconds() int64 {
	return int64(math.Ceil(r.RetryAfter.Seconds()))
}

type bucket struct {
	tokens   float64
	capacity float64
	perSec   float64
	filled   time.Time
}

func newBucket(rpm int64, now time.Time) bucket {
	return bucket{
		tokens:   float64(rpm),
		capacity: float64(rpm),
		perSec:   float64(rpm) / 60,
		filled:   now,
	}
}

func (b *bucket) take(now time.Time) (Result, bool) {
	if dt := now.Sub(b.filled).Seconds(); dt > 0 {
		b.tokens = min(b.capacity, b.tokens+dt*b.perSec)
		b.filled = now
	}
	if b.tokens >= 1 {
		b.tokens--
		return Result{Allowed: true, Remaining: int64(b.tokens)}, true
	}
	wait := (1 - b.tokens) / b.perSec
	return Result{RetryAfter: time.Duration(wait * float64(time.Second))}, false
}

type limiter struct {
	mu       sync.Mutex
	rpm      int64
	b        bucket
	lastUsed time.Time
}

// Registry tracks one bucket per caller key. It is safe for concurrent use.
type Registry struct {
	now func() time.Time

	mu       sync.RWMutex
	limiters map[string]*limiter
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		now:      time.Now,
		limiters: make(map[string]*limiter),
	}
}

// Allow consumes one request from key's bucket. A non-positive rpm means
// unlimited and allocates nothing. When rpm changes for an existing key its
// bucket starts over full.
func (r *Registry) Allow(key string, rpm int64) Result {
	if rpm <= 0 {
		return Result{Allowed: true}
	}
	now := r.now()
	l := r.get(key, rpm, now)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastUsed = now
	res, _ := l.b.take(now)
	res.Limit = rpm
	return res
}

func (r *Registry) get(key string, rpm int64, now time.Time) *limiter {
	r.mu.RLock()
	l, ok := r.limiters[key]
	r.mu.RUnlock()
	if ok && l.rpm == rpm {
		return l
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.limiters[key]; ok && l.rpm == rpm {
		return l
	}
	l = &limiter{rpm: rpm, b: newBucket(rpm, now), lastUsed: now}
	r.limiters[key] = l
	return l
}

// EvictStale drops buckets idle since before cutoff and returns how many
// were removed. A dropped bucket was full again long before cutoff, so
// forgetting it loses nothing.
func (r *Registry) EvictStale(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for k, l := range r.limiters {
		l.mu.Lock()
		idle := l.lastUsed.Before(cutoff)
		l.mu.Unlock()
		if idle {
			delete(r.limiters, k)
			n++
		}
	}
	return n
}

// Len returns the number of tracked keys.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.limiters)
}
