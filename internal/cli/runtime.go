package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/ppiankov/egresswatch/internal/alert"
	"github.com/ppiankov/egresswatch/internal/audit"
	"github.com/ppiankov/egresswatch/internal/blacklist"
	"github.com/ppiankov/egresswatch/internal/cancel"
	"github.com/ppiankov/egresswatch/internal/engine"
	"github.com/ppiankov/egresswatch/internal/logging"
	"github.com/ppiankov/egresswatch/internal/policy"
	"github.com/ppiankov/egresswatch/internal/telemetry"
)

// runtime holds what every monitoring command shares for one process run.
type runtime struct {
	runID    string
	logger   *slog.Logger
	file     *policy.FileConfig
	tracing  *telemetry.Handle
	registry *prometheus.Registry
	metrics  *telemetry.Metrics
	audit    audit.Recorder
	auditLog *audit.Log
	alerts   *alert.Dispatcher

	stopMetrics context.CancelFunc
}

// setup builds the runtime from the persistent flags and the file config.
func setup(cmd *cobra.Command) (*runtime, error) {
	logger, err := logging.New(logging.Options{
		Verbosity: verbosity,
		Format:    logFormat,
		Writer:    cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, err
	}

	path := configPath
	if path == "" {
		path = policy.DefaultConfigPath()
	}
	file, err := policy.LoadFileConfig(path)
	if err != nil {
		return nil, err
	}

	rt := &runtime{
		runID:  uuid.New().String(),
		logger: logger,
		file:   file,
		audit:  audit.Nop{},
		alerts: alert.NewDispatcher(file.Alerts),
	}
	rt.logger = logger.With("run_id", rt.runID)

	tc := telemetry.DefaultTraceConfig()
	tc.Enabled = otelEnabled
	tc.Endpoint = otelEndpoint
	tc.Protocol = otelProtocol
	tc.Insecure = otelInsecure
	tc.ServiceVersion = version
	if err := tc.Validate(); err != nil {
		return nil, err
	}
	rt.tracing, err = telemetry.InitTracing(cmd.Context(), tc)
	if err != nil {
		return nil, err
	}

	rt.registry = prometheus.NewRegistry()
	rt.metrics = telemetry.NewMetrics(rt.registry)
	if metricsAddr != "" {
		ctx, stop := context.WithCancel(context.Background())
		rt.stopMetrics = stop
		go func() {
			if err := telemetry.Serve(ctx, metricsAddr, rt.registry, rt.logger); err != nil {
				rt.logger.Warn("metrics server failed", "addr", metricsAddr, "error", err)
			}
		}()
	}

	logPath := auditLogPath
	if logPath == "" {
		logPath = file.AuditLog
	}
	if logPath != "" {
		l, err := audit.Open(logPath)
		if err != nil {
			rt.close()
			return nil, err
		}
		rt.auditLog = l
		rt.audit = l
	}
	return rt, nil
}

// close flushes traces and releases the audit log and metrics listener.
func (rt *runtime) close() {
	if rt.stopMetrics != nil {
		rt.stopMetrics()
	}
	if rt.auditLog != nil {
		if err := rt.auditLog.Close(); err != nil {
			rt.logger.Warn("close audit log", "error", err)
		}
	}
	if rt.tracing != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rt.tracing.Shutdown(ctx); err != nil {
			rt.logger.Warn("flush traces", "error", err)
		}
	}
}

// sources returns flag sources when given, else the file config's.
func (rt *runtime) sources(flagged []string) []string {
	if len(flagged) > 0 {
		return flagged
	}
	return rt.file.Sources
}

// newCapture builds the feed capture with the blacklist from the flag, the
// file config, or the built-in list, in that order.
func (rt *runtime) newCapture(blacklistPath string) (*engine.FeedCapture, error) {
	if blacklistPath == "" {
		blacklistPath = rt.file.Blacklist
	}
	bl := blacklist.NewDefault()
	if blacklistPath != "" {
		loaded, err := blacklist.Load(blacklistPath)
		if err != nil {
			return nil, err
		}
		bl = loaded
	}
	return engine.NewFeedCapture(engine.FeedConfig{Blacklist: bl, Logger: rt.logger}), nil
}

// newCanceller builds the cancellation chain. Operator lines go to out.
func (rt *runtime) newCanceller(out io.Writer) *cancel.Controller {
	return cancel.NewController(cancel.Config{
		ScriptPath:   rt.file.CancelScript,
		GitLabAPIURL: rt.file.GitLabAPIURL,
		Runner:       cancel.ExecRunner{},
		Client:       &http.Client{Timeout: 30 * time.Second},
		Logger:       rt.logger,
		Tracer:       rt.tracing.Tracer,
		Metrics:      rt.metrics,
		Out:          out,
	})
}

// repository names the CI project for alert payloads.
func repository() string {
	if repo := os.Getenv(cancel.EnvGitHubRepo); repo != "" {
		return repo
	}
	if id := os.Getenv(cancel.EnvGitLabProject); id != "" {
		return fmt.Sprintf("gitlab project %s", id)
	}
	return ""
}
