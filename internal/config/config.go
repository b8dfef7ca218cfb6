// Package config handles reading and writing .triage/config.yaml.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level structure for .triage/config.yaml.
type Config struct {
	Version int           `yaml:"version"`
	Backend BackendConfig `yaml:"backend"`
	Session SessionConfig `yaml:"session"`
	Collect CollectConfig `yaml:"collect"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
	Server  ServerConfig  `yaml:"server"`
}

// BackendConfig locates the diagnosis service.
type BackendConfig struct {
	URL           string `yaml:"url"`
	Timeout       int    `yaml:"timeout"`        // seconds
	TimeoutPolicy string `yaml:"timeout_policy"` // "restore" | "escalate"
}

// SessionConfig controls the follow-up dialogue.
type SessionConfig struct {
	MaxFollowUps int `yaml:"max_follow_ups"`
}

// CollectConfig controls how the default file selection is gathered.
type CollectConfig struct {
	Enabled     bool     `yaml:"enabled"`
	TestCommand string   `yaml:"test_command"` // empty = detect from package.json
	ReportPath  string   `yaml:"report_path"`
	Query       string   `yaml:"query"` // jq expression yielding failure records
	Exclude     []string `yaml:"exclude"`
}

// LogConfig controls operational logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// MetricsConfig controls the call metrics ledger.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// ServerConfig controls the local diagnosis service.
type ServerConfig struct {
	Addr          string `yaml:"addr"`
	OpenAIBaseURL string `yaml:"openai_base_url,omitempty"`
	// OpenAIKey comes only from the environment and is never written out.
	OpenAIKey string `yaml:"-"`
}

const configDir = ".triage"
const configFile = "config.yaml"

// Environment overrides.
const (
	EnvBackendURL = "TRIAGE_BACKEND_URL"
	EnvTimeout    = "TRIAGE_TIMEOUT"
	EnvLogLevel   = "TRIAGE_LOG_LEVEL"
	EnvOpenAIKey  = "OPENAI_API_KEY"
)

// DefaultFailureQuery extracts failing assertions from a vitest or jest JSON report.
const DefaultFailureQuery = `.testResults[]? | .name as $file | .assertionResults[]? | select(.status == "failed") | {title: (.fullName // .title), file: $file, failureMessages: (.failureMessages // [])}`

// ReadConfig reads .triage/config.yaml from the given project directory.
// dir is the project root (not .triage/ itself).
// Returns an error if the file is not found or YAML is malformed.
func ReadConfig(dir string) (*Config, error) {
	path := filepath.Join(dir, configDir, configFile)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// WriteConfig writes cfg to .triage/config.yaml in the given project directory.
// Creates the .triage/ directory if it does not exist.
func WriteConfig(dir string, cfg *Config) error {
	dirPath := filepath.Join(dir, configDir)
	if err := os.MkdirAll(dirPath, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}

	path := filepath.Join(dirPath, configFile)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: 1,
		Backend: BackendConfig{
			URL:           "http://localhost:8000",
			Timeout:       120,
			TimeoutPolicy: "restore",
		},
		Session: SessionConfig{
			MaxFollowUps: 3,
		},
		Collect: CollectConfig{
			Enabled:    true,
			ReportPath: ".triage/test-report.json",
			Query:      DefaultFailureQuery,
			Exclude:    []string{"**/node_modules/**", ".triage/**"},
		},
		Log: LogConfig{
			Level: "warn",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    ".triage/metrics.db",
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8000",
		},
	}
}

// Load reads the project config, falling back to defaults when the file is
// absent, then applies overrides from dir/.env and the process environment.
// Variables already set in the environment win over .env.
func Load(dir string) (*Config, error) {
	cfg, err := ReadConfig(dir)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		cfg = DefaultConfig()
	}

	envPath := filepath.Join(dir, ".env")
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			return nil, fmt.Errorf("loading %s: %w", envPath, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := strings.TrimSpace(os.Getenv(EnvBackendURL)); v != "" {
		c.Backend.URL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvTimeout)); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvTimeout, err)
		}
		c.Backend.Timeout = secs
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		c.Log.Level = v
	}
	c.Server.OpenAIKey = strings.TrimSpace(os.Getenv(EnvOpenAIKey))
	return nil
}

// Validate checks values that would otherwise fail later at runtime.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Backend.URL) == "" {
		return fmt.Errorf("invalid config: backend.url is empty")
	}
	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("invalid config: backend.timeout must be positive seconds, got %d", c.Backend.Timeout)
	}
	switch strings.ToLower(c.Backend.TimeoutPolicy) {
	case "", "restore", "escalate":
	default:
		return fmt.Errorf("invalid config: backend.timeout_policy %q (want restore or escalate)", c.Backend.TimeoutPolicy)
	}
	if c.Session.MaxFollowUps <= 0 {
		return fmt.Errorf("invalid config: session.max_follow_ups must be positive, got %d", c.Session.MaxFollowUps)
	}
	return nil
}

// CallTimeout returns the per-call bound as a duration.
func (c *Config) CallTimeout() time.Duration {
	return time.Duration(c.Backend.Timeout) * time.Second
}

// Path returns the location of a config-relative path inside the project.
func Path(dir, rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(dir, rel)
}
