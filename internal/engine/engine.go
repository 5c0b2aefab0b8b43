// Package engine defines the contract between the monitor and the traffic
// classification engine, and ships a file-backed engine that classifies the
// JSONL connection feed written by a runner-side egress agent.
//
// The monitor only talks to Capture and Analyzer. Both are expected to carry
// their own synchronization; callers never lock them.
package engine

import (
	"context"

	"github.com/ppiankov/egresswatch/internal/session"
)

// Capture observes sessions and evaluates them against whitelist and
// blacklist policy.
type Capture interface {
	// Start begins observing the given sources.
	Start(ctx context.Context, sources []string) error
	// Sessions returns observed sessions. With incremental set, only sessions
	// first seen since the previous incremental call are returned.
	Sessions(incremental bool) []session.Session
	// SetCustomWhitelist replaces the active whitelist with a JSON document.
	// On error the previous whitelist stays active.
	SetCustomWhitelist(doc string) error
	WhitelistConformance() bool
	WhitelistExceptions() []session.Session
	BlacklistedSessions() []session.Session
	// CreateCustomWhitelist renders a whitelist document allowing every
	// observed session.
	CreateCustomWhitelist() (string, error)
	// AugmentCustomWhitelist merges observed sessions into the active custom
	// whitelist and returns the document and the number of endpoints added.
	AugmentCustomWhitelist() (string, int, error)
}

// Analyzer scores sessions for anomalous behaviour.
type Analyzer interface {
	Start(ctx context.Context) error
	// AnalyzeSessions annotates the given sessions in place.
	AnalyzeSessions(sessions []session.Session)
	AnomalousSessions() []session.Session
}
