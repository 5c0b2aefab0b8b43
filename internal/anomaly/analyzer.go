package anomaly

import (
	"context"
	"math"
	"strings"
	"sync"

	"github.com/ppiankov/egresswatch/internal/session"
)

// Criticality annotations written by the analyzer.
const (
	TagRawIPPort = "anomaly:raw-ip-port"
	TagBurst     = "anomaly:connection-burst"
)

// commonPorts are destination ports expected for build traffic.
var commonPorts = map[string]bool{
	"22": true, "53": true, "80": true, "123": true, "443": true, "9418": true,
}

// Config tunes the analyzer.
type Config struct {
	MinSamples int     `yaml:"min_samples"`
	ZThreshold float64 `yaml:"z_threshold"`
}

// DefaultConfig returns the built-in analyzer settings.
func DefaultConfig() Config {
	return Config{MinSamples: 20, ZThreshold: 3.0}
}

// Analyzer flags sessions that deviate from what the run has seen so far.
// Two signals are used: direct-to-IP egress on an uncommon port, and a
// per-session connection count far above the running mean.
type Analyzer struct {
	cfg Config

	mu        sync.Mutex
	n         int
	mean      float64
	m2        float64
	anomalous []session.Session
	index     map[string]int
}

// New creates an analyzer. Zero config fields take defaults.
func New(cfg Config) *Analyzer {
	def := DefaultConfig()
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = def.MinSamples
	}
	if cfg.ZThreshold <= 0 {
		cfg.ZThreshold = def.ZThreshold
	}
	return &Analyzer{cfg: cfg, index: make(map[string]int)}
}

// Start resets the baseline.
func (a *Analyzer) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.n, a.mean, a.m2 = 0, 0, 0
	a.anomalous = nil
	a.index = make(map[string]int)
	return nil
}

// AnalyzeSessions scores sessions and writes Criticality annotations in place.
func (a *Analyzer) AnalyzeSessions(sessions []session.Session) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i := range sessions {
		s := &sessions[i]
		tag := a.score(*s)
		a.observe(float64(s.Connections))
		if tag == "" {
			continue
		}
		s.Criticality = tag
		if pos, ok := a.index[s.ID]; ok {
			a.anomalous[pos] = *s
			continue
		}
		a.index[s.ID] = len(a.anomalous)
		a.anomalous = append(a.anomalous, *s)
	}
}

// AnomalousSessions returns every session flagged so far, in flag order.
func (a *Analyzer) AnomalousSessions() []session.Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return session.Clone(a.anomalous)
}

// score must be called with mu held, before the sample joins the baseline.
func (a *Analyzer) score(s session.Session) string {
	if !s.HasDomain() && !commonPorts[s.DstPort] && !isLocal(s.DstIP) {
		return TagRawIPPort
	}
	if a.n >= a.cfg.MinSamples {
		std := math.Sqrt(a.m2 / float64(a.n-1))
		if std > 0 && (float64(s.Connections)-a.mean)/std > a.cfg.ZThreshold {
			return TagBurst
		}
	}
	return ""
}

// observe folds x into the running mean/variance (Welford).
func (a *Analyzer) observe(x float64) {
	a.n++
	delta := x - a.mean
	a.mean += delta / float64(a.n)
	a.m2 += delta * (x - a.mean)
}

func isLocal(ip string) bool {
	return strings.HasPrefix(ip, "127.") || ip == "::1"
}
