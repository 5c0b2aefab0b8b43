package policy

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/egresswatch/internal/alert"
	"github.com/ppiankov/egresswatch/internal/anomaly"
	"github.com/ppiankov/egresswatch/internal/engine"
	"github.com/ppiankov/egresswatch/internal/ratelimit"
)

// FileConfig holds the settings read from the YAML config file.
type FileConfig struct {
	Sources      []string            `yaml:"sources"`
	Blacklist    string              `yaml:"blacklist"`
	AuditLog     string              `yaml:"audit_log"`
	CancelScript string              `yaml:"cancel_script"`
	GitLabAPIURL string              `yaml:"gitlab_api_url"`
	Alerts       []alert.AlertConfig `yaml:"alerts"`
	AlertLimit   ratelimit.Limit     `yaml:"alert_limit"`
	Anomaly      anomaly.Config      `yaml:"anomaly"`
}

// DefaultFileConfig returns the built-in file config.
func DefaultFileConfig() *FileConfig {
	return &FileConfig{
		Sources: []string{engine.DefaultFeed},
		Anomaly: anomaly.DefaultConfig(),
	}
}

// DefaultConfigPath returns ~/.egresswatch/config.yaml, or "" when the home
// directory cannot be resolved.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".egresswatch", "config.yaml")
}

// LoadFileConfig loads configuration from a YAML file.
// Empty path falls back to ~/.egresswatch/config.yaml.
// Missing file returns defaults. Invalid YAML returns an error.
func LoadFileConfig(path string) (*FileConfig, error) {
	if path == "" {
		path = DefaultConfigPath()
		if path == "" {
			return DefaultFileConfig(), nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultFileConfig(), nil
		}
		return nil, fmt.Errorf("policy: read config: %w", err)
	}

	// Start with defaults, YAML overwrites only specified fields
	cfg := DefaultFileConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("policy: parse config %s: %w", path, err)
	}
	if len(cfg.Sources) == 0 {
		cfg.Sources = []string{engine.DefaultFeed}
	}
	return cfg, nil
}
