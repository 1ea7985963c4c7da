package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// AttemptThrottle is a token bucket per key, used to slow down repeated
// code guesses from one member.
type AttemptThrottle struct {
	every rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewAttemptThrottle refills perMinute tokens each minute up to burst.
func NewAttemptThrottle(perMinute, burst int) *AttemptThrottle {
	return &AttemptThrottle{
		every:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Allow consumes one token for key at now.
func (t *AttemptThrottle) Allow(key string, now time.Time) bool {
	t.mu.Lock()
	lim, ok := t.limiters[key]
	if !ok {
		lim = rate.NewLimiter(t.every, t.burst)
		t.limiters[key] = lim
	}
	t.mu.Unlock()
	return lim.AllowN(now, 1)
}

// Sweep drops keys whose bucket has refilled completely at now; a fresh
// limiter for such a key behaves identically.
func (t *AttemptThrottle) Sweep(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, lim := range t.limiters {
		if lim.TokensAt(now) >= float64(t.burst) {
			delete(t.limiters, key)
		}
	}
}

// Len reports how many keys are tracked.
func (t *AttemptThrottle) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.limiters)
}
