package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "egresswatch"

// Metrics holds the monitor's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	// Cycles counts completed evaluation cycles.
	Cycles prometheus.Counter

	// Violations counts flagged sessions per check.
	// Labels: check (whitelist, blacklist, anomaly)
	Violations *prometheus.CounterVec

	// Cancellations counts cancellation attempts.
	// Labels: strategy (script, github, gitlab, none), result (success, failure)
	Cancellations *prometheus.CounterVec

	// SessionsObserved is the number of sessions pulled in the last cycle.
	SessionsObserved prometheus.Gauge
}

// NewMetrics creates and registers collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Cycles: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "cycles_total",
			Help:      "Total number of evaluation cycles",
		}),
		Violations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "violations_total",
			Help:      "Total number of flagged sessions by check",
		}, []string{"check"}),
		Cancellations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "cancellations_total",
			Help:      "Total number of pipeline cancellation attempts by strategy and result",
		}, []string{"strategy", "result"}),
		SessionsObserved: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "sessions_observed",
			Help:      "Sessions pulled from the engine in the last cycle",
		}),
	}
}

// RecordCycle counts one cycle and the sessions it observed.
func (m *Metrics) RecordCycle(observed int, counts map[string]int) {
	if m == nil {
		return
	}
	m.Cycles.Inc()
	m.SessionsObserved.Set(float64(observed))
	for check, n := range counts {
		m.Violations.WithLabelValues(check).Add(float64(n))
	}
}

// RecordCancellation counts one cancellation attempt.
func (m *Metrics) RecordCancellation(strategy string, succeeded bool) {
	if m == nil {
		return
	}
	result := "failure"
	if succeeded {
		result = "success"
	}
	m.Cancellations.WithLabelValues(strategy, result).Inc()
}

// Handler returns the /metrics handler for g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(g))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	logger.Info("metrics server listening", "addr", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
