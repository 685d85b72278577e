package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	DefaultBackendURL            = "http://localhost:8000"
	DefaultRequestTimeoutSeconds = 30
	DefaultPollIntervalSeconds   = 3
	DefaultImagePollAttempts     = 200
	DefaultVideoPollAttempts     = 120
	DefaultRegenAttempts         = 150
	DefaultRegenIntervalSeconds  = 2
	DefaultReconcileSeconds      = 3
	DefaultLogLevel              = "info"
)

// Config is the on-disk client configuration.
type Config struct {
	Backend struct {
		BaseURL               string `yaml:"base_url"`
		Token                 string `yaml:"token,omitempty"`
		RequestTimeoutSeconds int    `yaml:"request_timeout_seconds,omitempty"`
	} `yaml:"backend"`
	Polling struct {
		ImageAttempts        int `yaml:"image_attempts,omitempty"`
		VideoAttempts        int `yaml:"video_attempts,omitempty"`
		IntervalSeconds      int `yaml:"interval_seconds,omitempty"`
		RegenAttempts        int `yaml:"regen_attempts,omitempty"`
		RegenIntervalSeconds int `yaml:"regen_interval_seconds,omitempty"`
		ReconcileSeconds     int `yaml:"reconcile_seconds,omitempty"`
	} `yaml:"polling,omitempty"`
	Log struct {
		Level string `yaml:"level,omitempty"`
		File  string `yaml:"file,omitempty"`
	} `yaml:"log,omitempty"`
}

func Default() Config {
	var cfg Config
	cfg.Backend.BaseURL = DefaultBackendURL
	cfg.Backend.RequestTimeoutSeconds = DefaultRequestTimeoutSeconds
	cfg.Polling.ImageAttempts = DefaultImagePollAttempts
	cfg.Polling.VideoAttempts = DefaultVideoPollAttempts
	cfg.Polling.IntervalSeconds = DefaultPollIntervalSeconds
	cfg.Polling.RegenAttempts = DefaultRegenAttempts
	cfg.Polling.RegenIntervalSeconds = DefaultRegenIntervalSeconds
	cfg.Polling.ReconcileSeconds = DefaultReconcileSeconds
	cfg.Log.Level = DefaultLogLevel
	return cfg
}

// DefaultPath returns the standard config file location, honoring the
// CHRONOREEL_CONFIG override.
func DefaultPath() string {
	if env := strings.TrimSpace(os.Getenv("CHRONOREEL_CONFIG")); env != "" {
		return env
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "chronoreel.yaml"
	}
	return filepath.Join(home, ".config", "chronoreel", "config.yaml")
}

// Load reads the config at path, applying defaults for absent fields and
// environment overrides (CHRONOREEL_BACKEND_URL, CHRONOREEL_TOKEN) on top.
// A missing file yields the defaults, not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	p := strings.TrimSpace(path)
	if p == "" {
		p = DefaultPath()
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("read config %s: %w", p, err)
		}
	} else {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", p, err)
		}
	}
	applyEnvOverrides(&cfg)
	return normalize(cfg), nil
}

// Save writes the config back to path, creating parent directories.
func Save(path string, cfg Config) error {
	p := strings.TrimSpace(path)
	if p == "" {
		p = DefaultPath()
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("create config directory for %s: %w", p, err)
	}
	data, err := yaml.Marshal(normalize(cfg))
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(p, data, 0o600); err != nil {
		return fmt.Errorf("write config %s: %w", p, err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("CHRONOREEL_BACKEND_URL")); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("CHRONOREEL_TOKEN")); v != "" {
		cfg.Backend.Token = v
	}
}

func normalize(raw Config) Config {
	cfg := raw
	cfg.Backend.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.Backend.BaseURL), "/")
	if cfg.Backend.BaseURL == "" {
		cfg.Backend.BaseURL = DefaultBackendURL
	}
	cfg.Backend.Token = strings.TrimSpace(cfg.Backend.Token)
	if cfg.Backend.RequestTimeoutSeconds <= 0 {
		cfg.Backend.RequestTimeoutSeconds = DefaultRequestTimeoutSeconds
	}
	if cfg.Polling.ImageAttempts <= 0 {
		cfg.Polling.ImageAttempts = DefaultImagePollAttempts
	}
	if cfg.Polling.VideoAttempts <= 0 {
		cfg.Polling.VideoAttempts = DefaultVideoPollAttempts
	}
	if cfg.Polling.IntervalSeconds <= 0 {
		cfg.Polling.IntervalSeconds = DefaultPollIntervalSeconds
	}
	if cfg.Polling.RegenAttempts <= 0 {
		cfg.Polling.RegenAttempts = DefaultRegenAttempts
	}
	if cfg.Polling.RegenIntervalSeconds <= 0 {
		cfg.Polling.RegenIntervalSeconds = DefaultRegenIntervalSeconds
	}
	if cfg.Polling.ReconcileSeconds <= 0 {
		cfg.Polling.ReconcileSeconds = DefaultReconcileSeconds
	}
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	return cfg
}

func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Backend.RequestTimeoutSeconds) * time.Second
}

func (c Config) PollInterval() time.Duration {
	return time.Duration(c.Polling.IntervalSeconds) * time.Second
}

func (c Config) RegenInterval() time.Duration {
	return time.Duration(c.Polling.RegenIntervalSeconds) * time.Second
}

func (c Config) ReconcileInterval() time.Duration {
	return time.Duration(c.Polling.ReconcileSeconds) * time.Second
}
