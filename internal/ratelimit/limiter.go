package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// CheckResult is the outcome of a rate limit check.
type CheckResult struct {
	Exceeded bool
	Key      string
	Current  int
	Limit    int
	Reason   string
}

// Limiter applies one Limit independently to each key. A nil *Limiter allows
// everything.
type Limiter struct {
	limit Limit

	mu      sync.Mutex
	windows map[string]*window
}

// New returns a limiter, or nil when the limit is not enabled.
func New(limit Limit) *Limiter {
	if !limit.Enabled() {
		return nil
	}
	return &Limiter{limit: limit, windows: make(map[string]*window)}
}

// Allow checks the key's window and counts the request when it passes.
func (l *Limiter) Allow(key string, now time.Time) CheckResult {
	if l == nil {
		return CheckResult{Key: key}
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	w := l.windows[key]
	if w == nil {
		w = &window{start: now}
		l.windows[key] = w
	}
	count := w.snapshot(l.limit.Window, now)
	if count >= l.limit.MaxRequests {
		return CheckResult{
			Exceeded: true,
			Key:      key,
			Current:  count,
			Limit:    l.limit.MaxRequests,
			Reason: fmt.Sprintf("rate limit exceeded: %d/%d %s in %s window",
				count, l.limit.MaxRequests, key, l.limit.Window),
		}
	}
	w.count++
	return CheckResult{Key: key, Current: w.count, Limit: l.limit.MaxRequests}
}
