package internal

import (
	"net/http"
	"sync"
	"time"
)

// RateLimiter provides simple in-memory per-IP rate limiting for the public
// webhook endpoint.
type RateLimiter struct {
	mu           sync.Mutex
	requests     map[string]*bucket
	limit        int
	window       time.Duration
	requestCount int
	cleanupEvery int
}

type bucket struct {
	count   int
	resetAt time.Time
}

// NewRateLimiter creates a rate limiter allowing limit requests per window
// per client IP.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests:     make(map[string]*bucket),
		limit:        limit,
		window:       window,
		cleanupEvery: 100,
	}
}

func (rl *RateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()

	// Lazy cleanup: sweep expired buckets every N requests so the map
	// cannot grow without bound.
	rl.requestCount++
	if rl.requestCount%rl.cleanupEvery == 0 || len(rl.requests) > 2*rl.cleanupEvery {
		for key, b := range rl.requests {
			if now.After(b.resetAt) {
				delete(rl.requests, key)
			}
		}
	}

	b, exists := rl.requests[ip]
	if !exists || now.After(b.resetAt) {
		rl.requests[ip] = &bucket{count: 1, resetAt: now.Add(rl.window)}
		return true
	}
	if b.count >= rl.limit {
		return false
	}
	b.count++
	return true
}

// Middleware wraps an HTTP handler with rate limiting.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(GetClientIP(r)) {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
