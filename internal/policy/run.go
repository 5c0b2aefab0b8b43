// Package policy holds the run configuration chosen once at start and the
// YAML file config that supplies its defaults.
package policy

import (
	"errors"
	"fmt"
	"time"

	"github.com/ppiankov/egresswatch/internal/violation"
)

// Mode selects how the monitor samples.
type Mode string

const (
	ModeScan  Mode = "scan"
	ModeWatch Mode = "watch"
)

// Output selects what a scan prints after its report.
type Output string

const (
	OutputNone       Output = ""
	OutputWhitelist  Output = "whitelist"
	OutputReport     Output = "report"
	OutputViolations Output = "violations"
)

// Configuration errors.
var (
	ErrZeroCadence = errors.New("policy: poll interval must be greater than zero")
	ErrZeroWindow  = errors.New("policy: scan duration must be greater than zero")
	ErrNoSources   = errors.New("policy: at least one feed source is required")
)

// Config is the immutable run configuration.
type Config struct {
	Mode            Mode
	Checks          violation.Checks
	CancelOnFailure bool
	PollEvery       time.Duration // watch
	Duration        time.Duration // scan
	UntilSignal     bool          // scan
	Output          Output        // scan
	CustomWhitelist string
	Sources         []string
}

// Validate rejects configurations that cannot run. It is called before any
// capture starts.
func (c Config) Validate() error {
	switch c.Mode {
	case ModeWatch:
		if c.PollEvery <= 0 {
			return ErrZeroCadence
		}
	case ModeScan:
		if !c.UntilSignal && c.Duration <= 0 {
			return ErrZeroWindow
		}
		switch c.Output {
		case OutputNone, OutputWhitelist, OutputReport, OutputViolations:
		default:
			return fmt.Errorf("policy: unknown output %q (want whitelist, report or violations)", c.Output)
		}
	default:
		return fmt.Errorf("policy: unknown mode %q", c.Mode)
	}
	if len(c.Sources) == 0 {
		return ErrNoSources
	}
	return nil
}
