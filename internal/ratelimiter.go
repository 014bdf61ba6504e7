package internal

import (
	"sync"
	"time"
)

// RateLimiter allows at most limit hits per key inside a sliding window.
type RateLimiter struct {
	mu     sync.Mutex
	hits   map[string][]time.Time
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		hits:   make(map[string][]time.Time),
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	recent := r.prune(key, now.Add(-r.window))
	if len(recent) >= r.limit {
		return false
	}
	r.hits[key] = append(recent, now)
	return true
}

// prune keeps only hits newer than cutoff and forgets idle keys.
func (r *RateLimiter) prune(key string, cutoff time.Time) []time.Time {
	kept := r.hits[key][:0]
	for _, ts := range r.hits[key] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) == 0 {
		delete(r.hits, key)
		return nil
	}
	r.hits[key] = kept
	return kept
}
