// Package report renders violation reports and session sets for operators
// and machines.
package report

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ppiankov/egresswatch/internal/session"
	"github.com/ppiankov/egresswatch/internal/violation"
)

// Section headings, in render order.
const (
	SectionWhitelist = "Whitelist exceptions"
	SectionBlacklist = "Blacklisted sessions"
	SectionAnomaly   = "Anomalous sessions"
)

const (
	headerClean     = "egress report: no violations"
	headerViolation = "egress report: VIOLATION detected (%d sessions)"
	noneLine        = "  (none)"
)

// Render returns the human-readable lines for a report. Every section is
// always present so an empty report is distinguishable from an omitted one.
func Render(r violation.Report) []string {
	var lines []string
	if r.HasViolation {
		lines = append(lines, fmt.Sprintf(headerViolation, r.Count()))
	} else {
		lines = append(lines, headerClean)
	}

	sections := []struct {
		title    string
		sessions []session.Session
	}{
		{SectionWhitelist, r.WhitelistExceptions},
		{SectionBlacklist, r.Blacklisted},
		{SectionAnomaly, r.Anomalous},
	}
	for _, sec := range sections {
		lines = append(lines, fmt.Sprintf("%s (%d):", sec.title, len(sec.sessions)))
		if len(sec.sessions) == 0 {
			lines = append(lines, noneLine)
			continue
		}
		for _, l := range RenderSessions(sec.sessions) {
			lines = append(lines, "  "+l)
		}
	}
	return lines
}

// SessionReportHeader opens the full session listing printed after a scan.
const SessionReportHeader = "=== Session Report ==="

// RenderSessionReport returns the header followed by one line per session.
func RenderSessionReport(sessions []session.Session) []string {
	lines := []string{"", SessionReportHeader}
	if len(sessions) == 0 {
		return append(lines, "(no sessions observed)")
	}
	return append(lines, RenderSessions(sessions)...)
}

// RenderSessions returns one line per session, in input order.
func RenderSessions(sessions []session.Session) []string {
	lines := make([]string, 0, len(sessions))
	for _, s := range sessions {
		lines = append(lines, Line(s))
	}
	return lines
}

// Line formats a single session. The session ID always comes first.
func Line(s session.Session) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s %s:%s -> %s:%s",
		s.ID, strings.ToUpper(s.Protocol), s.SrcIP, s.SrcPort, s.Destination(), s.DstPort)
	if s.HasDomain() && s.DstIP != "" {
		fmt.Fprintf(&b, " (%s)", s.DstIP)
	}
	if s.Process.Name != "" {
		fmt.Fprintf(&b, " process=%s", s.Process.Name)
		if s.Process.PID > 0 {
			fmt.Fprintf(&b, "[%d]", s.Process.PID)
		}
	}
	if s.Container != nil && s.Container.Image != "" {
		fmt.Fprintf(&b, " container=%s", s.Container.Image)
	}
	fmt.Fprintf(&b, " conns=%d", s.Connections)
	if s.Reason != "" {
		fmt.Fprintf(&b, " reason=%q", s.Reason)
	}
	if s.Criticality != "" {
		fmt.Fprintf(&b, " tag=%s", s.Criticality)
	}
	return b.String()
}

// SessionsJSON serializes sessions in input order.
func SessionsJSON(sessions []session.Session) ([]byte, error) {
	if sessions == nil {
		sessions = []session.Session{}
	}
	out, err := json.MarshalIndent(sessions, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("report: marshal sessions: %w", err)
	}
	return out, nil
}

// ReportJSON serializes a full report.
func ReportJSON(r violation.Report) ([]byte, error) {
	out, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("report: marshal report: %w", err)
	}
	return out, nil
}
