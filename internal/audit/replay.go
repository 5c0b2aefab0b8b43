package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// ReplayFilter holds filtering criteria for replaying one or more runs.
// Empty and zero fields match everything.
type ReplayFilter struct {
	RunID string
	Event string // run_started, violation or cancellation
	Mode  string // scan, watch or halt
	From  time.Time
	To    time.Time
}

func (f ReplayFilter) match(e Entry) bool {
	if f.RunID != "" && e.RunID != f.RunID {
		return false
	}
	if f.Event != "" && e.Event != f.Event {
		return false
	}
	if f.Mode != "" && e.Mode != f.Mode {
		return false
	}
	return inRange(e.Timestamp, f)
}

// ReplaySummary holds event counts for the replayed entries.
type ReplaySummary struct {
	Total          int    `json:"total"`
	Runs           int    `json:"runs"`
	Violations     int    `json:"violations"`
	Flagged        int    `json:"flagged"`
	Cancellations  int    `json:"cancellations"`
	CancelFailures int    `json:"cancel_failures"`
	FirstTimestamp string `json:"first_timestamp"`
	LastTimestamp  string `json:"last_timestamp"`
}

// ReplayResult holds filtered entries and summary.
type ReplayResult struct {
	RunID   string        `json:"run_id,omitempty"`
	Entries []Entry       `json:"entries"`
	Summary ReplaySummary `json:"summary"`
}

// Replay reads the audit log and returns entries matching the filter.
func Replay(path string, filter ReplayFilter) (*ReplayResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("audit: open log: %w", err)
	}
	defer f.Close()

	result := &ReplayResult{RunID: filter.RunID}

	scanner := newScanner(f)
	for scanner.Scan() {
		var entry Entry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue // skip malformed lines
		}
		if !filter.match(entry) {
			continue
		}
		result.Entries = append(result.Entries, entry)
		updateSummary(&result.Summary, entry)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("audit: read log: %w", err)
	}
	return result, nil
}

func inRange(ts string, filter ReplayFilter) bool {
	if filter.From.IsZero() && filter.To.IsZero() {
		return true
	}
	t, err := time.Parse(TimestampFormat, ts)
	if err != nil {
		return false
	}
	if !filter.From.IsZero() && t.Before(filter.From) {
		return false
	}
	if !filter.To.IsZero() && t.After(filter.To) {
		return false
	}
	return true
}

func updateSummary(s *ReplaySummary, entry Entry) {
	s.Total++
	switch entry.Event {
	case EventRunStarted:
		s.Runs++
	case EventViolation:
		s.Violations++
		if entry.Counts != nil {
			s.Flagged += entry.Counts.Total()
		}
	case EventCancellation:
		s.Cancellations++
		if !entry.Succeeded {
			s.CancelFailures++
		}
	}

	if s.FirstTimestamp == "" {
		s.FirstTimestamp = entry.Timestamp
	}
	s.LastTimestamp = entry.Timestamp
}
