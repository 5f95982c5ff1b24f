package chat

import (
	"sync"
	"time"
)

// RateLimiter is a per-connection sliding-window counter for inbound frames.
type RateLimiter struct {
	mu     sync.Mutex
	stamps []time.Time
	limit  int
	window time.Duration
}

// NewRateLimiter constructs a limiter allowing limit frames per window.
// Invalid inputs fall back to the package defaults.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = rateLimitFrames
	}
	if window <= 0 {
		window = rateLimitWindow
	}
	return &RateLimiter{
		stamps: make([]time.Time, 0, limit),
		limit:  limit,
		window: window,
	}
}

// Allow reports whether a frame arriving at now fits the budget, recording
// it when it does.
func (l *RateLimiter) Allow(now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Stamps are appended in arrival order, so everything before the first
	// one inside the window has expired.
	cut := now.Add(-l.window)
	expired := 0
	for expired < len(l.stamps) && !l.stamps[expired].After(cut) {
		expired++
	}
	if expired > 0 {
		l.stamps = append(l.stamps[:0], l.stamps[expired:]...)
	}

	if len(l.stamps) >= l.limit {
		return false
	}
	l.stamps = append(l.stamps, now)
	return true
}
