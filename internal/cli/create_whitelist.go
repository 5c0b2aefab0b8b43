package cli

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/egresswatch/internal/policy"
)

const defaultCaptureSeconds = 60

var (
	whitelistFile    string
	whitelistSources []string
)

func init() {
	rootCmd.AddCommand(createWhitelistCmd)
	createWhitelistCmd.Flags().StringVar(&whitelistFile, "file", "", "Write the document here instead of stdout (augment reads it first)")
	createWhitelistCmd.Flags().StringArrayVar(&whitelistSources, "source", nil, "Connection feed to read (repeatable, overrides config)")
}

var createWhitelistCmd = &cobra.Command{
	Use:   "create-whitelist [seconds] [augment]",
	Short: "Capture a window and emit a whitelist allowing what was seen",
	Long: "Samples sessions for seconds (default 60), then renders a custom whitelist\n" +
		"document. With augment=true the sessions are merged into the existing\n" +
		"document at --file instead of starting fresh.",
	Args: cobra.MaximumNArgs(2),
	RunE: runCreateWhitelist,
}

func runCreateWhitelist(cmd *cobra.Command, args []string) error {
	seconds, err := secondsArg(args, defaultCaptureSeconds)
	if err != nil {
		return err
	}
	if seconds == 0 {
		return policy.ErrZeroWindow
	}
	augment := false
	if len(args) == 2 {
		augment, err = strconv.ParseBool(args[1])
		if err != nil {
			return fmt.Errorf("invalid augment %q: want true or false", args[1])
		}
	}

	rt, err := setup(cmd)
	if err != nil {
		return err
	}
	defer rt.close()

	capture, err := rt.newCapture("")
	if err != nil {
		return err
	}
	if augment && whitelistFile != "" {
		data, err := os.ReadFile(whitelistFile)
		switch {
		case os.IsNotExist(err):
			rt.logger.Info("no existing whitelist, starting fresh", "path", whitelistFile)
		case err != nil:
			return fmt.Errorf("read whitelist: %w", err)
		default:
			if err := capture.SetCustomWhitelist(string(data)); err != nil {
				rt.logger.Warn("existing whitelist rejected, starting fresh", "path", whitelistFile, "error", err)
			}
		}
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := capture.Start(ctx, rt.sources(whitelistSources)); err != nil {
		return err
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "capturing for %ds...\n", seconds)
	timer := time.NewTimer(time.Duration(seconds) * time.Second)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}

	var doc string
	if augment {
		var added int
		doc, added, err = capture.AugmentCustomWhitelist()
		if err == nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "added %d endpoints\n", added)
		}
	} else {
		doc, err = capture.CreateCustomWhitelist()
	}
	if err != nil {
		return err
	}

	if whitelistFile == "" {
		fmt.Fprintln(cmd.OutOrStdout(), doc)
		return nil
	}
	if err := os.WriteFile(whitelistFile, []byte(doc+"\n"), 0o644); err != nil {
		return fmt.Errorf("write whitelist: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "whitelist written to %s\n", whitelistFile)
	return nil
}
