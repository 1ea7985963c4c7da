// Package ratelimit bounds how often a key may perform an action within a
// rolling window. Limiters never block; they answer allow or deny.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter admits at most a fixed number of events per key within a rolling
// window ending at now. A denied call records nothing.
type Limiter interface {
	Allow(ctx context.Context, key string, now time.Time) (bool, error)
}

// MemoryLimiter keeps a log of admitted timestamps per key.
type MemoryLimiter struct {
	limit  int
	window time.Duration

	mu   sync.Mutex
	logs map[string][]time.Time
}

// NewMemoryLimiter admits limit events per key in any window of the given length.
func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{limit: limit, window: window, logs: make(map[string][]time.Time)}
}

var _ Limiter = (*MemoryLimiter)(nil)

func (l *MemoryLimiter) Allow(_ context.Context, key string, now time.Time) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-l.window)
	kept := l.logs[key][:0]
	for _, ts := range l.logs[key] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= l.limit {
		l.logs[key] = kept
		return false, nil
	}
	kept = append(kept, now)
	l.logs[key] = kept
	return true, nil
}

// Sweep drops keys with no admissions inside the window ending at now.
func (l *MemoryLimiter) Sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := now.Add(-l.window)
	for key, log := range l.logs {
		if len(log) == 0 || !log[len(log)-1].After(cutoff) {
			delete(l.logs, key)
		}
	}
}
