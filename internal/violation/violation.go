// Package violation aggregates whitelist, blacklist and anomaly signals into
// a single per-cycle report.
package violation

import (
	"github.com/ppiankov/egresswatch/internal/engine"
	"github.com/ppiankov/egresswatch/internal/session"
)

// Check names, used as metric labels and in audit entries.
const (
	CheckWhitelist = "whitelist"
	CheckBlacklist = "blacklist"
	CheckAnomaly   = "anomaly"
)

// Checks selects which signals contribute to a report.
type Checks struct {
	Whitelist bool
	Blacklist bool
	Anomaly   bool
}

// All returns a Checks with every signal enabled.
func All() Checks {
	return Checks{Whitelist: true, Blacklist: true, Anomaly: true}
}

// None reports whether every check is disabled.
func (c Checks) None() bool {
	return !c.Whitelist && !c.Blacklist && !c.Anomaly
}

// Report is the result of one evaluation. Construct it with NewReport so
// HasViolation always agrees with the session sets.
type Report struct {
	HasViolation        bool              `json:"has_violation"`
	WhitelistExceptions []session.Session `json:"whitelist_exceptions"`
	Blacklisted         []session.Session `json:"blacklisted"`
	Anomalous           []session.Session `json:"anomalous"`
}

// NewReport builds a report from the three sets.
func NewReport(exceptions, blacklisted, anomalous []session.Session) Report {
	return Report{
		HasViolation:        len(exceptions)+len(blacklisted)+len(anomalous) > 0,
		WhitelistExceptions: orEmpty(exceptions),
		Blacklisted:         orEmpty(blacklisted),
		Anomalous:           orEmpty(anomalous),
	}
}

// All returns every reported session in section order. A session flagged by
// more than one check appears once per check.
func (r Report) All() []session.Session {
	out := make([]session.Session, 0, r.Count())
	out = append(out, r.WhitelistExceptions...)
	out = append(out, r.Blacklisted...)
	return append(out, r.Anomalous...)
}

// Count returns the number of entries across all sections.
func (r Report) Count() int {
	return len(r.WhitelistExceptions) + len(r.Blacklisted) + len(r.Anomalous)
}

// Counts returns per-check entry counts for the non-empty sections.
func (r Report) Counts() map[string]int {
	out := make(map[string]int, 3)
	if n := len(r.WhitelistExceptions); n > 0 {
		out[CheckWhitelist] = n
	}
	if n := len(r.Blacklisted); n > 0 {
		out[CheckBlacklist] = n
	}
	if n := len(r.Anomalous); n > 0 {
		out[CheckAnomaly] = n
	}
	return out
}

// Aggregator pulls violation sets from the engine.
type Aggregator struct {
	capture  engine.Capture
	analyzer engine.Analyzer
}

// NewAggregator creates an aggregator over the given collaborators.
func NewAggregator(capture engine.Capture, analyzer engine.Analyzer) *Aggregator {
	return &Aggregator{capture: capture, analyzer: analyzer}
}

// Aggregate builds a report from the enabled checks. Disabled checks are not
// queried and contribute nothing.
func (a *Aggregator) Aggregate(checks Checks) Report {
	var exceptions, blacklisted, anomalous []session.Session
	if checks.Whitelist && !a.capture.WhitelistConformance() {
		exceptions = a.capture.WhitelistExceptions()
	}
	if checks.Blacklist {
		blacklisted = a.capture.BlacklistedSessions()
	}
	if checks.Anomaly {
		anomalous = a.analyzer.AnomalousSessions()
	}
	return NewReport(exceptions, blacklisted, anomalous)
}

func orEmpty(s []session.Session) []session.Session {
	if s == nil {
		return []session.Session{}
	}
	return s
}
