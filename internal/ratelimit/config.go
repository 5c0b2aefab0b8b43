// Package ratelimit throttles repeated notifications with a fixed window per
// key, such as the same violation alert fired on every watch cycle.
package ratelimit

import "time"

// Limit allows MaxRequests per Window. Zero values mean no limit.
type Limit struct {
	MaxRequests int           `yaml:"max_requests"`
	Window      time.Duration `yaml:"window"`
}

// Enabled returns true if the limit is configured.
func (l Limit) Enabled() bool {
	return l.MaxRequests > 0 && l.Window > 0
}
