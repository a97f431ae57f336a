// Package ratelimit enforces per-user request budgets on the HTTP
// surface. Automation runs are user-initiated and expensive; the budget
// keeps one user from monopolizing browser capacity.
package ratelimit

import (
	"sync"

	"golang.org/x/time/rate"
)

// Limiter manages token buckets keyed by user id.
type Limiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
}

// NewLimiter creates a limiter allowing requestsPerHour sustained
// requests per user with the given burst.
func NewLimiter(requestsPerHour, burst int) *Limiter {
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(float64(requestsPerHour) / 3600.0),
		burst:    burst,
	}
}

func (l *Limiter) limiterFor(userID string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, ok := l.limiters[userID]
	if !ok {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters[userID] = limiter
	}
	return limiter
}

// Allow reports whether a request for the user fits the budget.
func (l *Limiter) Allow(userID string) bool {
	return l.limiterFor(userID).Allow()
}

// Tokens returns the user's currently available tokens.
func (l *Limiter) Tokens(userID string) float64 {
	return l.limiterFor(userID).Tokens()
}
