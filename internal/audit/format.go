package audit

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const separator = "──────────────────────────────────────────────────────────────────"

// FormatTimeline renders a ReplayResult as a human-readable text timeline.
func FormatTimeline(result *ReplayResult) string {
	label := result.RunID
	if label == "" {
		label = "all runs"
	}
	if len(result.Entries) == 0 {
		return fmt.Sprintf("Run: %s | No entries found.\n", label)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Run: %s | %s - %s UTC\n", label,
		formatDateTime(result.Summary.FirstTimestamp), formatTimeOnly(result.Summary.LastTimestamp))
	b.WriteString(separator + "\n")

	for _, e := range result.Entries {
		fmt.Fprintf(&b, "%-10s %-13s %-6s %s\n",
			formatTimeOnly(e.Timestamp), e.Event, e.Mode, describe(e))
	}

	b.WriteString(separator + "\n")
	b.WriteString(formatSummary(result.Summary))
	return b.String()
}

// FormatJSON renders a ReplayResult as indented JSON.
func FormatJSON(result *ReplayResult) (string, error) {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("audit: marshal replay result: %w", err)
	}
	return string(data), nil
}

func describe(e Entry) string {
	switch e.Event {
	case EventViolation:
		if e.Counts == nil {
			return fmt.Sprintf("%d sessions", len(e.Sessions))
		}
		return fmt.Sprintf("whitelist=%d blacklist=%d anomaly=%d",
			e.Counts.Whitelist, e.Counts.Blacklist, e.Counts.Anomaly)
	case EventCancellation:
		status := "FAILED"
		if e.Succeeded {
			status = "ok"
		}
		return truncate(fmt.Sprintf("%s %s %s", e.Strategy, status, e.Detail), 60)
	default:
		return truncate(e.Detail, 60)
	}
}

func formatDateTime(ts string) string {
	t, err := time.Parse(TimestampFormat, ts)
	if err != nil {
		return ts
	}
	return t.Format("2006-01-02 15:04:05")
}

func formatTimeOnly(ts string) string {
	t, err := time.Parse(TimestampFormat, ts)
	if err != nil {
		return ts
	}
	return t.Format("15:04:05")
}

func formatSummary(s ReplaySummary) string {
	return fmt.Sprintf("Summary: %d runs, %d violations (%d sessions), %d cancellations (%d failed)\n",
		s.Runs, s.Violations, s.Flagged, s.Cancellations, s.CancelFailures)
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
