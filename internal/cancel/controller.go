package cancel

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ppiankov/egresswatch/internal/logging"
	"github.com/ppiankov/egresswatch/internal/telemetry"
)

// Config configures a Controller. Zero fields take defaults.
type Config struct {
	// Strategies overrides the default chain (script, github, gitlab).
	Strategies []Strategy
	// Environ returns a fresh environment snapshot for every attempt.
	Environ func() map[string]string
	// ScriptPath and GitLabAPIURL fill in for unset environment variables.
	ScriptPath   string
	GitLabAPIURL string

	Runner  Runner
	Client  *http.Client
	Logger  *slog.Logger
	Tracer  trace.Tracer
	Metrics *telemetry.Metrics
	// Out receives one line per attempt for the operator.
	Out io.Writer
}

// Controller runs the cancellation chain.
type Controller struct {
	cfg Config
}

// NewController creates a controller with the default chain unless
// cfg.Strategies is set.
func NewController(cfg Config) *Controller {
	if cfg.Runner == nil {
		cfg.Runner = ExecRunner{}
	}
	if cfg.Strategies == nil {
		cfg.Strategies = DefaultChain(cfg.Runner, cfg.Client)
	}
	if cfg.Environ == nil {
		cfg.Environ = OSEnviron
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = noop.NewTracerProvider().Tracer(telemetry.TracerName)
	}
	if cfg.Out == nil {
		cfg.Out = io.Discard
	}
	return &Controller{cfg: cfg}
}

// DefaultChain returns script, github and gitlab strategies in that order.
func DefaultChain(runner Runner, client *http.Client) []Strategy {
	return []Strategy{
		ScriptStrategy{Runner: runner},
		GitHubStrategy{Runner: runner},
		GitLabStrategy{Client: client},
	}
}

// Cancel tries each applicable strategy in order and stops at the first
// success. It never returns an error or panics; failures are reported in the
// outcome.
func (c *Controller) Cancel(ctx context.Context, reason string) Outcome {
	ctx, span := c.cfg.Tracer.Start(ctx, "egresswatch.cancel",
		trace.WithAttributes(attribute.String("egresswatch.cancel.reason", reason)))
	defer span.End()
	logger := logging.WithTrace(ctx, c.cfg.Logger)

	env := DetectEnvironment(c.snapshot())
	span.SetAttributes(attribute.String("egresswatch.ci.provider", string(env.Provider)))

	var attempts []Outcome
	for _, s := range c.cfg.Strategies {
		if !c.applicable(s, env, logger) {
			logger.Debug("cancellation strategy not applicable", "strategy", s.Name())
			continue
		}
		fmt.Fprintf(c.cfg.Out, "cancel: trying %s\n", s.Name())
		out := c.attempt(ctx, s, reason, env)
		attempts = append(attempts, out)
		c.cfg.Metrics.RecordCancellation(out.Strategy, out.Succeeded)

		if out.Succeeded {
			fmt.Fprintf(c.cfg.Out, "cancel: %s succeeded: %s\n", out.Strategy, out.Detail)
			logger.Info("pipeline cancelled", "strategy", out.Strategy, "detail", out.Detail)
			span.SetStatus(codes.Ok, out.Strategy)
			out.Attempts = attempts
			return out
		}
		fmt.Fprintf(c.cfg.Out, "cancel: %s FAILED: %s\n", out.Strategy, out.Detail)
		logger.Warn("cancellation strategy failed", "strategy", out.Strategy, "detail", out.Detail)
	}

	detail := "no applicable cancellation strategy"
	if len(attempts) > 0 {
		detail = fmt.Sprintf("all %d cancellation strategies failed", len(attempts))
	}
	fmt.Fprintf(c.cfg.Out, "cancel: FAILED: %s\n", detail)
	logger.Error("pipeline not cancelled", "detail", detail, "provider", env.Provider)
	c.cfg.Metrics.RecordCancellation(StrategyNone, false)
	span.SetStatus(codes.Error, detail)

	return Outcome{Strategy: StrategyNone, Detail: detail, Attempts: attempts}
}

func (c *Controller) snapshot() map[string]string {
	env := c.cfg.Environ()
	if env == nil {
		env = make(map[string]string)
	}
	if _, ok := env[EnvScript]; !ok && c.cfg.ScriptPath != "" {
		env[EnvScript] = c.cfg.ScriptPath
	}
	if _, ok := env[EnvGitLabAPI]; !ok && c.cfg.GitLabAPIURL != "" {
		env[EnvGitLabAPI] = c.cfg.GitLabAPIURL
	}
	return env
}

func (c *Controller) applicable(s Strategy, env Environment, logger *slog.Logger) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("cancellation strategy panicked", "strategy", s.Name(), "panic", r)
			ok = false
		}
	}()
	return s.Applicable(env)
}

func (c *Controller) attempt(ctx context.Context, s Strategy, reason string, env Environment) (out Outcome) {
	ctx, span := c.cfg.Tracer.Start(ctx, "egresswatch.cancel."+s.Name())
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			out = failed(s.Name(), fmt.Sprintf("panic: %v", r))
		}
		span.SetAttributes(attribute.Bool("egresswatch.cancel.succeeded", out.Succeeded))
		if !out.Succeeded {
			span.SetStatus(codes.Error, out.Detail)
		}
	}()

	out = s.Attempt(ctx, reason, env)
	if out.Strategy == "" {
		out.Strategy = s.Name()
	}
	return out
}
