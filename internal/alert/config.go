package alert

// Event types a webhook can subscribe to.
const (
	EventViolation       = "violation"
	EventCancelSucceeded = "cancellation_succeeded"
	EventCancelFailed    = "cancellation_failed"
)

// AlertConfig defines a webhook alert destination.
type AlertConfig struct {
	URL     string            `yaml:"url"     json:"url"`
	Format  string            `yaml:"format"  json:"format"` // "generic", "slack", "pagerduty"
	Events  []string          `yaml:"events"  json:"events"` // empty subscribes to every event
	Headers map[string]string `yaml:"headers" json:"headers"`
}

// AlertEvent is the payload sent to webhook endpoints.
type AlertEvent struct {
	Timestamp  string         `json:"timestamp"`
	RunID      string         `json:"run_id"`
	Type       string         `json:"type"`
	Mode       string         `json:"mode,omitempty"`
	Counts     map[string]int `json:"counts,omitempty"`
	Sessions   []string       `json:"sessions,omitempty"`
	Strategy   string         `json:"strategy,omitempty"`
	Detail     string         `json:"detail,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	Repository string         `json:"repository,omitempty"`
}

// Total returns the number of reported sessions across all checks.
func (e AlertEvent) Total() int {
	n := 0
	for _, c := range e.Counts {
		n += c
	}
	return n
}
