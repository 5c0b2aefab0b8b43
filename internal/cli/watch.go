package cli

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/egresswatch/internal/policy"
)

const defaultPollSeconds = 30

var watchFlags checkFlags

func init() {
	rootCmd.AddCommand(watchCmd)
	addCheckFlags(watchCmd, &watchFlags)
}

var watchCmd = &cobra.Command{
	Use:   "watch [poll_seconds]",
	Short: "Continuously evaluate egress on a fixed cadence",
	Long: "Evaluates new sessions every poll_seconds (default 30). A violation\n" +
		"cancels the pipeline and exits 1; with --no-cancel it is reported and\n" +
		"watching continues until SIGINT or SIGTERM.",
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	seconds, err := secondsArg(args, defaultPollSeconds)
	if err != nil {
		return err
	}
	rt, err := setup(cmd)
	if err != nil {
		return err
	}
	defer rt.close()

	p := policy.Config{
		Mode:            policy.ModeWatch,
		Checks:          watchFlags.checks(),
		CancelOnFailure: !watchFlags.noCancel,
		PollEvery:       time.Duration(seconds) * time.Second,
		CustomWhitelist: watchFlags.customWhitelist,
		Sources:         rt.sources(watchFlags.sources),
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mon, err := newMonitor(rt, p, &watchFlags, cmd.OutOrStdout(), nil)
	if err != nil {
		return err
	}
	decision, err := mon.Run(ctx)
	if err != nil {
		return err
	}
	return exitWith(decision.ExitCode)
}
