// Package poll drives sampling: it waits out a scan window or ticks on a
// watch cadence, runs one evaluation per tick, and returns an explicit exit
// decision instead of exiting the process.
package poll

import (
	"github.com/ppiankov/egresswatch/internal/cancel"
	"github.com/ppiankov/egresswatch/internal/violation"
)

// Exit codes carried by decisions.
const (
	ExitOK        = 0
	ExitViolation = 1
	ExitFatal     = 1
)

// State is the controller's position after a cycle.
type State int

const (
	// StatePolling is non-terminal: keep sampling.
	StatePolling State = iota
	// StateViolationHalted is terminal: a violation ended the run.
	StateViolationHalted
	// StateFatalError is terminal: setup or a collaborator failed.
	StateFatalError
)

func (s State) String() string {
	switch s {
	case StatePolling:
		return "polling"
	case StateViolationHalted:
		return "violation_halted"
	case StateFatalError:
		return "fatal_error"
	default:
		return "unknown"
	}
}

// Terminal reports whether the run must stop.
func (s State) Terminal() bool {
	return s != StatePolling
}

// Decision is the outcome of a cycle or a run.
type Decision struct {
	State    State
	ExitCode int
	Report   violation.Report
	// Outcome is set when cancellation was attempted.
	Outcome *cancel.Outcome
}

func continuePolling(r violation.Report) Decision {
	return Decision{State: StatePolling, ExitCode: ExitOK, Report: r}
}

func fatal() Decision {
	return Decision{State: StateFatalError, ExitCode: ExitFatal}
}
