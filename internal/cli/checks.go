package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ppiankov/egresswatch/internal/anomaly"
	"github.com/ppiankov/egresswatch/internal/policy"
	"github.com/ppiankov/egresswatch/internal/poll"
	"github.com/ppiankov/egresswatch/internal/ratelimit"
	"github.com/ppiankov/egresswatch/internal/violation"
)

// checkFlags are the flags scan and watch share.
type checkFlags struct {
	noWhitelist     bool
	noBlacklist     bool
	noAnomaly       bool
	noCancel        bool
	customWhitelist string
	sources         []string
	blacklist       string
}

func addCheckFlags(cmd *cobra.Command, f *checkFlags) {
	cmd.Flags().BoolVar(&f.noWhitelist, "no-whitelist", false, "Disable the whitelist check")
	cmd.Flags().BoolVar(&f.noBlacklist, "no-blacklist", false, "Disable the blacklist check")
	cmd.Flags().BoolVar(&f.noAnomaly, "no-anomaly", false, "Disable the anomaly check")
	cmd.Flags().BoolVar(&f.noCancel, "no-cancel", false, "Report violations without cancelling the pipeline")
	cmd.Flags().StringVar(&f.customWhitelist, "custom-whitelist", "", "Path to a custom whitelist JSON document")
	cmd.Flags().StringArrayVar(&f.sources, "source", nil, "Connection feed to read (repeatable, overrides config)")
	cmd.Flags().StringVar(&f.blacklist, "blacklist", "", "Path to blacklist YAML (overrides config)")
}

func (f *checkFlags) checks() violation.Checks {
	return violation.Checks{
		Whitelist: !f.noWhitelist,
		Blacklist: !f.noBlacklist,
		Anomaly:   !f.noAnomaly,
	}
}

// secondsArg parses an optional positional seconds argument.
func secondsArg(args []string, def int) (int, error) {
	if len(args) == 0 {
		return def, nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid seconds %q: want a non-negative integer", args[0])
	}
	return n, nil
}

// newMonitor builds the polling controller for one run.
func newMonitor(rt *runtime, p policy.Config, f *checkFlags, out io.Writer, stop <-chan os.Signal) (*poll.Controller, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	capture, err := rt.newCapture(f.blacklist)
	if err != nil {
		return nil, err
	}
	return poll.New(poll.Config{
		Policy:     p,
		Capture:    capture,
		Analyzer:   anomaly.New(rt.file.Anomaly),
		Canceller:  rt.newCanceller(out),
		RunID:      rt.runID,
		Repository: repository(),
		Audit:      rt.audit,
		Alerts:     rt.alerts,
		AlertLimit: ratelimit.New(rt.file.AlertLimit),
		Metrics:    rt.metrics,
		Tracer:     rt.tracing.Tracer,
		Logger:     rt.logger,
		Out:        out,
		Stop:       stop,
	})
}

// commandContext returns the command's context, or Background when the
// command runs outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
