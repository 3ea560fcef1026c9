package httpapi

import (
	"sync"
	"time"
)

// KeyedLimiter allows at most limit events per key inside a sliding window.
type KeyedLimiter struct {
	window time.Duration
	limit  int
	now    func() time.Time

	mu     sync.Mutex
	events map[string][]time.Time
}

// NewKeyedLimiter builds a limiter. A non-positive window or limit disables it.
func NewKeyedLimiter(window time.Duration, limit int, timeSource func() time.Time) *KeyedLimiter {
	if timeSource == nil {
		timeSource = time.Now
	}
	return &KeyedLimiter{window: window, limit: limit, now: timeSource, events: make(map[string][]time.Time)}
}

// Allow records an attempt for key and reports whether it fits the budget.
func (l *KeyedLimiter) Allow(key string) bool {
	if l == nil || l.limit <= 0 || l.window <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)
	kept := l.events[key][:0]
	for _, ts := range l.events[key] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.limit {
		l.events[key] = kept
		return false
	}
	l.events[key] = append(kept, now)
	return true
}
