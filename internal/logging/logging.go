// Package logging builds the process logger. Diagnostics go to stderr;
// report output is written separately to stdout by the CLI.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

// Formats accepted by New.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Options configures New.
type Options struct {
	Verbosity int    // count of -v flags
	Format    string // text or json
	Writer    io.Writer
}

// LevelFor maps a -v count to a level: none is warn, -v info, -vv and above
// debug.
func LevelFor(verbosity int) slog.Level {
	switch {
	case verbosity <= 0:
		return slog.LevelWarn
	case verbosity == 1:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

// New creates a logger. -vvv adds source locations.
func New(opts Options) (*slog.Logger, error) {
	if opts.Writer == nil {
		return nil, fmt.Errorf("logging: no writer")
	}
	hopts := &slog.HandlerOptions{
		Level:     LevelFor(opts.Verbosity),
		AddSource: opts.Verbosity >= 3,
	}
	switch opts.Format {
	case "", FormatText:
		return slog.New(slog.NewTextHandler(opts.Writer, hopts)), nil
	case FormatJSON:
		return slog.New(slog.NewJSONHandler(opts.Writer, hopts)), nil
	default:
		return nil, fmt.Errorf("logging: unknown format %q (want text or json)", opts.Format)
	}
}

// WithTrace returns logger with the trace and span IDs of the span in ctx,
// or logger unchanged when ctx carries no recording span.
func WithTrace(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if ctx == nil {
		return logger
	}
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return logger
	}
	return logger.With("trace_id", sc.TraceID().String(), "span_id", sc.SpanID().String())
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}
