package poll

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ppiankov/egresswatch/internal/alert"
	"github.com/ppiankov/egresswatch/internal/audit"
	"github.com/ppiankov/egresswatch/internal/cancel"
	"github.com/ppiankov/egresswatch/internal/engine"
	"github.com/ppiankov/egresswatch/internal/logging"
	"github.com/ppiankov/egresswatch/internal/policy"
	"github.com/ppiankov/egresswatch/internal/ratelimit"
	"github.com/ppiankov/egresswatch/internal/report"
	"github.com/ppiankov/egresswatch/internal/session"
	"github.com/ppiankov/egresswatch/internal/telemetry"
	"github.com/ppiankov/egresswatch/internal/violation"
)

// Canceller halts the CI pipeline. *cancel.Controller implements it.
type Canceller interface {
	Cancel(ctx context.Context, reason string) cancel.Outcome
}

// Config wires a Controller. Policy, Capture, Analyzer and Canceller are
// required; the rest take no-op defaults.
type Config struct {
	Policy    policy.Config
	Capture   engine.Capture
	Analyzer  engine.Analyzer
	Canceller Canceller

	RunID string
	// Repository names the CI project in alerts.
	Repository string
	Audit      audit.Recorder
	Alerts     *alert.Dispatcher
	// AlertLimit throttles alerts per event type. Nil sends every alert.
	AlertLimit *ratelimit.Limiter
	Metrics    *telemetry.Metrics
	Tracer     trace.Tracer
	Logger     *slog.Logger

	// Out receives the rendered report and scan output.
	Out io.Writer
	// Stop ends a scan wait early, typically fed by signal.Notify.
	Stop <-chan os.Signal
	// ReadFile loads the custom whitelist. Defaults to os.ReadFile.
	ReadFile func(string) ([]byte, error)
	Now      func() time.Time
}

// Controller runs the sampling loop.
type Controller struct {
	cfg      Config
	agg      *violation.Aggregator
	prepared bool
}

// New validates the policy and builds a controller.
func New(cfg Config) (*Controller, error) {
	if err := cfg.Policy.Validate(); err != nil {
		return nil, err
	}
	if cfg.Capture == nil || cfg.Analyzer == nil || cfg.Canceller == nil {
		return nil, errors.New("poll: capture, analyzer and canceller are required")
	}
	if cfg.Audit == nil {
		cfg.Audit = audit.Nop{}
	}
	if cfg.Tracer == nil {
		cfg.Tracer = noop.NewTracerProvider().Tracer(telemetry.TracerName)
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	if cfg.Out == nil {
		cfg.Out = io.Discard
	}
	if cfg.ReadFile == nil {
		cfg.ReadFile = os.ReadFile
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Controller{
		cfg: cfg,
		agg: violation.NewAggregator(cfg.Capture, cfg.Analyzer),
	}, nil
}

// Prepare loads the custom whitelist and starts the collaborators. A missing
// or malformed whitelist is a warning; failing to start is fatal.
func (c *Controller) Prepare(ctx context.Context) error {
	if c.prepared {
		return nil
	}
	p := c.cfg.Policy
	c.loadCustomWhitelist(p.CustomWhitelist)

	if err := c.cfg.Capture.Start(ctx, p.Sources); err != nil {
		return fmt.Errorf("poll: start capture: %w", err)
	}
	if err := c.cfg.Analyzer.Start(ctx); err != nil {
		return fmt.Errorf("poll: start analyzer: %w", err)
	}
	if p.Checks.None() {
		c.cfg.Logger.Warn("all checks disabled; violations will never be reported")
	}

	c.record(audit.Entry{RunID: c.cfg.RunID, Event: audit.EventRunStarted, Mode: string(p.Mode),
		Detail: fmt.Sprintf("sources=%v", p.Sources)})
	c.cfg.Logger.Info("monitor started", "run_id", c.cfg.RunID, "mode", p.Mode, "sources", p.Sources)
	c.prepared = true
	return nil
}

func (c *Controller) loadCustomWhitelist(path string) {
	if path == "" {
		return
	}
	data, err := c.cfg.ReadFile(path)
	if err != nil {
		c.cfg.Logger.Warn("custom whitelist not loaded, using default", "path", path, "error", err)
		return
	}
	if err := c.cfg.Capture.SetCustomWhitelist(string(data)); err != nil {
		c.cfg.Logger.Warn("custom whitelist rejected, using default", "path", path, "error", err)
		return
	}
	c.cfg.Logger.Info("custom whitelist loaded", "path", path)
}

// Cycle runs one evaluation and decides what happens next. The report is
// always rendered. On a violation, scan mode always halts; watch mode halts
// only when cancellation is enabled.
func (c *Controller) Cycle(ctx context.Context, mode policy.Mode) Decision {
	ctx, span := c.cfg.Tracer.Start(ctx, "egresswatch.cycle",
		trace.WithAttributes(
			attribute.String("egresswatch.run_id", c.cfg.RunID),
			attribute.String("egresswatch.mode", string(mode)),
		))
	defer span.End()
	logger := logging.WithTrace(ctx, c.cfg.Logger)

	fresh := c.cfg.Capture.Sessions(true)
	c.cfg.Analyzer.AnalyzeSessions(fresh)
	r := c.agg.Aggregate(c.cfg.Policy.Checks)

	for _, line := range report.Render(r) {
		fmt.Fprintln(c.cfg.Out, line)
	}
	c.cfg.Metrics.RecordCycle(len(fresh), r.Counts())
	span.SetAttributes(
		attribute.Int("egresswatch.sessions", len(fresh)),
		attribute.Bool("egresswatch.violation", r.HasViolation),
	)
	logger.Debug("cycle complete", "sessions", len(fresh), "violation", r.HasViolation)

	if !r.HasViolation {
		return continuePolling(r)
	}

	span.SetStatus(codes.Error, "policy violation")
	c.onViolation(ctx, mode, r)

	if mode == policy.ModeWatch && !c.cfg.Policy.CancelOnFailure {
		logger.Warn("policy violation detected, cancellation disabled; continuing", "sessions", r.Count())
		return continuePolling(r)
	}

	d := Decision{State: StateViolationHalted, ExitCode: ExitViolation, Report: r}
	if c.cfg.Policy.CancelOnFailure {
		out := c.cfg.Canceller.Cancel(ctx, reasonFor(r))
		c.onCancellation(ctx, mode, out)
		d.Outcome = &out
	}
	return d
}

// RunOnce runs a scan: wait out the window or a stop signal, evaluate once,
// then print the requested output.
func (c *Controller) RunOnce(ctx context.Context) (Decision, error) {
	p := c.cfg.Policy
	if p.Mode != policy.ModeScan {
		return fatal(), fmt.Errorf("poll: RunOnce needs scan mode, got %q", p.Mode)
	}
	if err := c.Prepare(ctx); err != nil {
		return fatal(), err
	}

	if err := c.wait(ctx); err != nil {
		return fatal(), err
	}

	d := c.Cycle(ctx, policy.ModeScan)
	sessions := c.cfg.Capture.Sessions(false)
	for _, line := range report.RenderSessionReport(sessions) {
		fmt.Fprintln(c.cfg.Out, line)
	}
	if err := c.writeOutput(sessions, d.Report); err != nil {
		return fatal(), err
	}
	return d, nil
}

func (c *Controller) wait(ctx context.Context) error {
	p := c.cfg.Policy
	if p.UntilSignal {
		c.cfg.Logger.Info("scanning until stop signal")
		select {
		case sig := <-c.cfg.Stop:
			c.cfg.Logger.Info("stop signal received", "signal", sig)
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	c.cfg.Logger.Info("scanning", "duration", p.Duration)
	timer := time.NewTimer(p.Duration)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case sig := <-c.cfg.Stop:
		c.cfg.Logger.Info("stop signal received, ending scan early", "signal", sig)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) writeOutput(sessions []session.Session, r violation.Report) error {
	var (
		data []byte
		err  error
	)
	switch c.cfg.Policy.Output {
	case policy.OutputWhitelist:
		var doc string
		if doc, err = c.cfg.Capture.CreateCustomWhitelist(); err != nil {
			return fmt.Errorf("poll: create whitelist: %w", err)
		}
		data = []byte(doc)
	case policy.OutputReport:
		data, err = report.SessionsJSON(sessions)
	case policy.OutputViolations:
		data, err = report.ReportJSON(r)
	default:
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(c.cfg.Out, string(data))
	return nil
}

// Run watches on the configured cadence until a terminal decision or ctx is
// cancelled. Cancellation of ctx is an operator stop and exits cleanly.
func (c *Controller) Run(ctx context.Context) (Decision, error) {
	p := c.cfg.Policy
	if p.Mode != policy.ModeWatch {
		return fatal(), fmt.Errorf("poll: Run needs watch mode, got %q", p.Mode)
	}
	if err := c.Prepare(ctx); err != nil {
		return fatal(), err
	}

	ticker := time.NewTicker(p.PollEvery)
	defer ticker.Stop()

	last := continuePolling(violation.NewReport(nil, nil, nil))
	for {
		select {
		case <-ctx.Done():
			c.cfg.Logger.Info("monitor stopped", "run_id", c.cfg.RunID)
			return last, nil
		case <-ticker.C:
			d := c.Cycle(ctx, policy.ModeWatch)
			if d.State.Terminal() {
				return d, nil
			}
			last = d
		}
	}
}

func (c *Controller) onViolation(ctx context.Context, mode policy.Mode, r violation.Report) {
	ids := session.IDs(r.All())
	counts := &audit.Counts{
		Whitelist: len(r.WhitelistExceptions),
		Blacklist: len(r.Blacklisted),
		Anomaly:   len(r.Anomalous),
	}
	c.record(audit.Entry{RunID: c.cfg.RunID, Event: audit.EventViolation, Mode: string(mode), Counts: counts, Sessions: ids})
	c.alert(ctx, alert.AlertEvent{
		Type:     alert.EventViolation,
		Mode:     string(mode),
		Counts:   r.Counts(),
		Sessions: ids,
		Reason:   reasonFor(r),
	})
}

func (c *Controller) onCancellation(ctx context.Context, mode policy.Mode, out cancel.Outcome) {
	c.record(audit.Entry{
		RunID:     c.cfg.RunID,
		Event:     audit.EventCancellation,
		Mode:      string(mode),
		Strategy:  out.Strategy,
		Succeeded: out.Succeeded,
		Detail:    out.Detail,
	})
	typ := alert.EventCancelFailed
	if out.Succeeded {
		typ = alert.EventCancelSucceeded
	}
	c.alert(ctx, alert.AlertEvent{Type: typ, Mode: string(mode), Strategy: out.Strategy, Detail: out.Detail})
}

func (c *Controller) record(e audit.Entry) {
	if err := c.cfg.Audit.Record(e); err != nil {
		c.cfg.Logger.Warn("audit record failed", "event", e.Event, "error", err)
	}
}

func (c *Controller) alert(ctx context.Context, e alert.AlertEvent) {
	if c.cfg.Alerts == nil {
		return
	}
	now := c.cfg.Now()
	if r := c.cfg.AlertLimit.Allow(e.Type, now); r.Exceeded {
		c.cfg.Logger.Debug("alert suppressed", "type", e.Type, "reason", r.Reason)
		return
	}
	e.RunID = c.cfg.RunID
	e.Repository = c.cfg.Repository
	e.Timestamp = now.UTC().Format(time.RFC3339)
	for _, err := range c.cfg.Alerts.Dispatch(ctx, e) {
		c.cfg.Logger.Warn("alert delivery failed", "type", e.Type, "error", err)
	}
}

func reasonFor(r violation.Report) string {
	return fmt.Sprintf("egresswatch: %d policy violations (whitelist=%d blacklist=%d anomaly=%d)",
		r.Count(), len(r.WhitelistExceptions), len(r.Blacklisted), len(r.Anomalous))
}
