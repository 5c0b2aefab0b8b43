package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/egresswatch/internal/audit"
)

var (
	replayRun    string
	replayEvent  string
	replayMode   string
	replayFrom   string
	replayTo     string
	replayFormat string
)

func init() {
	auditCmd.AddCommand(replayCmd)
	replayCmd.Flags().StringVar(&replayRun, "run", "", "Only show entries for this run ID")
	replayCmd.Flags().StringVar(&replayEvent, "event", "", "Only show one event type (run_started|violation|cancellation)")
	replayCmd.Flags().StringVar(&replayMode, "mode", "", "Only show entries from one mode (scan|watch|halt)")
	replayCmd.Flags().StringVar(&replayFrom, "from", "", "Start time filter (RFC3339 or YYYY-MM-DD)")
	replayCmd.Flags().StringVar(&replayTo, "to", "", "End time filter (RFC3339 or YYYY-MM-DD, a date includes the whole day)")
	replayCmd.Flags().StringVarP(&replayFormat, "format", "f", "text", "Output format (text|json)")
}

var replayCmd = &cobra.Command{
	Use:   "replay <path>",
	Short: "Replay runs from the audit log",
	Long:  "Reads the audit log, filters by run, event, mode and time range,\nand renders a timeline of violations and cancellations with a summary.",
	Args:  cobra.ExactArgs(1),
	RunE:  runReplay,
}

func runReplay(cmd *cobra.Command, args []string) error {
	switch replayFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid --format %q: want text or json", replayFormat)
	}
	switch replayEvent {
	case "", audit.EventRunStarted, audit.EventViolation, audit.EventCancellation:
	default:
		return fmt.Errorf("invalid --event %q", replayEvent)
	}

	filter := audit.ReplayFilter{RunID: replayRun, Event: replayEvent, Mode: replayMode}
	var err error
	if filter.From, err = parseBound("--from", replayFrom, false); err != nil {
		return err
	}
	if filter.To, err = parseBound("--to", replayTo, true); err != nil {
		return err
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return fmt.Errorf("--to %s is before --from %s", replayTo, replayFrom)
	}

	result, err := audit.Replay(args[0], filter)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if replayFormat == "json" {
		data, err := audit.FormatJSON(result)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, data)
		return nil
	}
	fmt.Fprint(out, audit.FormatTimeline(result))
	return nil
}

// parseBound reads a replay time bound. A bare date as an upper bound
// covers that whole day.
func parseBound(flag, value string, upper bool) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	day, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s time %q: want RFC3339 or YYYY-MM-DD", flag, value)
	}
	if upper {
		return day.Add(24*time.Hour - time.Millisecond), nil
	}
	return day, nil
}
