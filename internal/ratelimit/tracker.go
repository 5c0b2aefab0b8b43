package ratelimit

import "time"

// window is the counter state for one key.
type window struct {
	start time.Time
	count int
}

// snapshot returns the count in the current window, resetting it when the
// window has expired.
func (w *window) snapshot(length time.Duration, now time.Time) int {
	if now.Sub(w.start) >= length {
		w.start = now
		w.count = 0
	}
	return w.count
}
