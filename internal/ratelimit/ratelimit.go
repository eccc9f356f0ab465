// Package ratelimit is a per-key sliding-window admission check.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter admits at most limit events per key within any trailing window.
type Limiter struct {
	window time.Duration
	limit  int
	now    func() time.Time

	mu   sync.Mutex
	logs map[string][]time.Time
}

func New(limit int, window time.Duration) *Limiter {
	return &Limiter{
		window: window,
		limit:  limit,
		now:    time.Now,
		logs:   make(map[string][]time.Time),
	}
}

// Window is the trailing interval quotas are counted over.
func (l *Limiter) Window() time.Duration { return l.window }

// Allow records an attempt for key and reports whether it is within quota.
// Rejected attempts are not recorded.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	log := trim(l.logs[key], now.Add(-l.window))
	if len(log) >= l.limit {
		l.logs[key] = log
		return false
	}
	l.logs[key] = append(log, now)
	return true
}

// trim drops entries at or before cutoff. log is in ascending order.
func trim(log []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(log) && !log[i].After(cutoff) {
		i++
	}
	return log[i:]
}

// Prune forgets keys with no attempts inside the window.
func (l *Limiter) Prune() {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-l.window)
	for key, log := range l.logs {
		log = trim(log, cutoff)
		if len(log) == 0 {
			delete(l.logs, key)
			continue
		}
		l.logs[key] = log
	}
}

// Run prunes once per window until ctx is done.
func (l *Limiter) Run(ctx context.Context) {
	ticker := time.NewTicker(l.window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Prune()
		}
	}
}

func (l *Limiter) keys() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.logs)
}
