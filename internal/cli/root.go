package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/egresswatch/internal/telemetry"
)

var (
	verbosity    int
	configPath   string
	logFormat    string
	otelEnabled  bool
	otelEndpoint string
	otelProtocol string
	otelInsecure bool
	metricsAddr  string
	auditLogPath string
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.CountVarP(&verbosity, "verbose", "v", "Increase log verbosity (-v info, -vv debug, -vvv debug with source)")
	flags.StringVar(&configPath, "config", "", "Path to config YAML (default ~/.egresswatch/config.yaml)")
	flags.StringVar(&logFormat, "log-format", "text", "Log format (text|json)")
	flags.BoolVar(&otelEnabled, "otel", false, "Export OpenTelemetry traces")
	flags.StringVar(&otelEndpoint, "otel-endpoint", "", "OTLP endpoint (default OTEL_EXPORTER_OTLP_ENDPOINT)")
	flags.BoolVar(&otelInsecure, "otel-insecure", false, "Disable TLS for the OTLP exporter")
	flags.StringVar(&otelProtocol, "otel-protocol", telemetry.ProtocolHTTP, "OTLP protocol (otlphttp|otlpgrpc)")
	flags.StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	flags.StringVar(&auditLogPath, "audit-log", "", "Path to audit log JSONL file (overrides config)")
}

var rootCmd = &cobra.Command{
	Use:   "egresswatch",
	Short: "CI egress monitor that halts pipelines on policy violations",
	Long: "Samples outbound network sessions of a CI job, evaluates them against a\n" +
		"whitelist, a blacklist and an anomaly model, and cancels the enclosing\n" +
		"pipeline when a violation is found.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// exitError carries a non-zero exit code out of a command without printing.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// exitWith maps a decision exit code to a command result.
func exitWith(code int) error {
	if code == 0 {
		return nil
	}
	return &exitError{code: code}
}

// Execute runs the root command and exits with its status.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
