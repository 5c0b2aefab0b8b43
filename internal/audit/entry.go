package audit

// Audit event names.
const (
	EventRunStarted   = "run_started"
	EventViolation    = "violation"
	EventCancellation = "cancellation"
)

// Counts holds per-check session counts for a violation entry.
type Counts struct {
	Whitelist int `json:"whitelist"`
	Blacklist int `json:"blacklist"`
	Anomaly   int `json:"anomaly"`
}

// Total returns the sum of all checks.
func (c Counts) Total() int {
	return c.Whitelist + c.Blacklist + c.Anomaly
}

// Entry is one line in the hash-chained JSONL audit log.
// All fields are structs (no map[string]any) to guarantee deterministic
// json.Marshal field order for reproducible hashing.
type Entry struct {
	Timestamp string   `json:"ts"`
	RunID     string   `json:"run_id"`
	Event     string   `json:"event"`
	Mode      string   `json:"mode,omitempty"`
	Counts    *Counts  `json:"counts,omitempty"`
	Sessions  []string `json:"sessions,omitempty"`
	Strategy  string   `json:"strategy,omitempty"`
	Succeeded bool     `json:"succeeded,omitempty"`
	Detail    string   `json:"detail,omitempty"`
	PrevHash  string   `json:"prev_hash"`
}
