package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/egresswatch/internal/alert"
	"github.com/ppiankov/egresswatch/internal/audit"
)

func init() {
	rootCmd.AddCommand(haltCmd)
}

var haltCmd = &cobra.Command{
	Use:   "halt <reason>",
	Short: "Cancel the enclosing CI pipeline now",
	Long: "Runs the cancellation chain directly: the cancel script if present, then\n" +
		"GitHub Actions (gh run cancel), then the GitLab pipelines API.\n" +
		"Exits 0 when a strategy succeeded, 1 otherwise.",
	Args: cobra.MinimumNArgs(1),
	RunE: runHalt,
}

func runHalt(cmd *cobra.Command, args []string) error {
	reason := strings.Join(args, " ")
	rt, err := setup(cmd)
	if err != nil {
		return err
	}
	defer rt.close()

	ctx := commandContext(cmd)
	out := rt.newCanceller(cmd.OutOrStdout()).Cancel(ctx, reason)

	if err := rt.audit.Record(audit.Entry{
		RunID:     rt.runID,
		Event:     audit.EventCancellation,
		Mode:      "halt",
		Strategy:  out.Strategy,
		Succeeded: out.Succeeded,
		Detail:    out.Detail,
	}); err != nil {
		rt.logger.Warn("audit record failed", "error", err)
	}

	typ := alert.EventCancelFailed
	if out.Succeeded {
		typ = alert.EventCancelSucceeded
	}
	for _, err := range rt.alerts.Dispatch(ctx, alert.AlertEvent{
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		RunID:      rt.runID,
		Type:       typ,
		Mode:       "halt",
		Strategy:   out.Strategy,
		Detail:     out.Detail,
		Reason:     reason,
		Repository: repository(),
	}) {
		rt.logger.Warn("alert delivery failed", "error", err)
	}

	if !out.Succeeded {
		fmt.Fprintf(cmd.ErrOrStderr(), "halt failed: %s\n", out.Detail)
		return exitWith(1)
	}
	return nil
}
