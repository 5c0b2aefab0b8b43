package alert

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// FormatPayload builds the webhook body for the given format.
func FormatPayload(format string, event AlertEvent) ([]byte, error) {
	switch format {
	case "slack":
		return formatSlack(event)
	case "pagerduty":
		return formatPagerDuty(event)
	default:
		return formatGeneric(event)
	}
}

func formatGeneric(event AlertEvent) ([]byte, error) {
	return json.Marshal(event)
}

func formatSlack(event AlertEvent) ([]byte, error) {
	fields := []any{
		map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Run:* %s", event.RunID)},
		map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Mode:* %s", orDash(event.Mode))},
	}
	switch event.Type {
	case EventViolation:
		fields = append(fields,
			map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Sessions:* %d", event.Total())},
			map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Checks:* %s", countsLabel(event.Counts))},
		)
	default:
		fields = append(fields,
			map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Strategy:* %s", orDash(event.Strategy))},
			map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Detail:* %s", orDash(event.Detail))},
		)
	}

	payload := map[string]any{
		"blocks": []any{
			map[string]any{
				"type": "header",
				"text": map[string]any{
					"type": "plain_text",
					"text": fmt.Sprintf("egresswatch: %s", event.Type),
				},
			},
			map[string]any{
				"type":   "section",
				"fields": fields,
			},
		},
	}
	return json.Marshal(payload)
}

func formatPagerDuty(event AlertEvent) ([]byte, error) {
	severity := "warning"
	summary := fmt.Sprintf("egresswatch %s", event.Type)
	switch event.Type {
	case EventViolation:
		severity = "error"
		summary = fmt.Sprintf("egresswatch violation: %d sessions (%s)", event.Total(), countsLabel(event.Counts))
	case EventCancelFailed:
		severity = "critical"
		summary = fmt.Sprintf("egresswatch could not cancel pipeline: %s", orDash(event.Detail))
	case EventCancelSucceeded:
		severity = "info"
		summary = fmt.Sprintf("egresswatch cancelled pipeline via %s", event.Strategy)
	}

	payload := map[string]any{
		"event_action": "trigger",
		"payload": map[string]any{
			"summary":  summary,
			"severity": severity,
			"source":   "egresswatch",
			"custom_details": map[string]any{
				"run_id":     event.RunID,
				"mode":       event.Mode,
				"counts":     event.Counts,
				"sessions":   event.Sessions,
				"strategy":   event.Strategy,
				"detail":     event.Detail,
				"reason":     event.Reason,
				"repository": event.Repository,
			},
		},
	}
	return json.Marshal(payload)
}

// countsLabel renders counts as "blacklist=2, whitelist=1" in key order.
func countsLabel(counts map[string]int) string {
	if len(counts) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%d", k, counts[k])
	}
	return strings.Join(parts, ", ")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
