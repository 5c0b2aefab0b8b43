package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/egresswatch/internal/policy"
)

const defaultScanSeconds = 120

var (
	scanFlags       checkFlags
	scanUntilSignal bool
	scanOutput      string
)

func init() {
	rootCmd.AddCommand(scanCmd)
	addCheckFlags(scanCmd, &scanFlags)
	scanCmd.Flags().BoolVar(&scanUntilSignal, "until-signal", false, "Sample until SIGINT or SIGTERM instead of a fixed window")
	scanCmd.Flags().StringVar(&scanOutput, "output", "", "Print after the report (whitelist|report|violations)")
}

var scanCmd = &cobra.Command{
	Use:   "scan [seconds]",
	Short: "Sample egress for a window and evaluate it once",
	Long: "Collects sessions for a fixed window (default 120s) or until interrupted,\n" +
		"prints the violation report and exits 1 on any violation, cancelling the\n" +
		"pipeline first unless --no-cancel is set.",
	Args: cobra.MaximumNArgs(1),
	RunE: runScan,
}

func runScan(cmd *cobra.Command, args []string) error {
	seconds, err := secondsArg(args, defaultScanSeconds)
	if err != nil {
		return err
	}
	rt, err := setup(cmd)
	if err != nil {
		return err
	}
	defer rt.close()

	p := policy.Config{
		Mode:            policy.ModeScan,
		Checks:          scanFlags.checks(),
		CancelOnFailure: !scanFlags.noCancel,
		Duration:        time.Duration(seconds) * time.Second,
		UntilSignal:     scanUntilSignal,
		Output:          policy.Output(scanOutput),
		CustomWhitelist: scanFlags.customWhitelist,
		Sources:         rt.sources(scanFlags.sources),
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()
	mon, err := newMonitor(rt, p, &scanFlags, cmd.OutOrStdout(), stop)
	if err != nil {
		return err
	}
	decision, err := mon.RunOnce(ctx)
	if err != nil {
		return err
	}
	return exitWith(decision.ExitCode)
}
