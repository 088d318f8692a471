// ABOUTME: Configuration loading and parsing for courier
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Acquisition modes.
const (
	ModePolling = "polling"
	ModeWebhook = "webhook"
)

// Config represents the complete courier configuration.
type Config struct {
	API          APIConfig          `yaml:"api"`
	Polling      PollingConfig      `yaml:"polling"`
	Webhook      WebhookConfig      `yaml:"webhook"`
	Dispatch     DispatchConfig     `yaml:"dispatch"`
	Conversation ConversationConfig `yaml:"conversation"`
	Database     DatabaseConfig     `yaml:"database"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// APIConfig identifies the platform API and the acquisition mode.
type APIConfig struct {
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token"`
	Mode    string `yaml:"mode"` // "polling" (default) or "webhook"
}

// PollingConfig tunes the long-poll acquisition loop.
type PollingConfig struct {
	Timeout     time.Duration `yaml:"-"`
	BackoffBase time.Duration `yaml:"-"`
	BackoffCap  time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	TimeoutRaw     string `yaml:"timeout"`
	BackoffBaseRaw string `yaml:"backoff_base"`
	BackoffCapRaw  string `yaml:"backoff_cap"`
}

// WebhookConfig tunes the pushed-batch acquisition server.
type WebhookConfig struct {
	Addr   string `yaml:"addr"`
	Secret string `yaml:"secret"`
}

// DispatchConfig tunes the dispatch engine.
type DispatchConfig struct {
	Workers       int           `yaml:"workers"`
	ShutdownGrace time.Duration `yaml:"-"`

	ShutdownGraceRaw string `yaml:"shutdown_grace"`
}

// ConversationConfig tunes conversation state tracking.
type ConversationConfig struct {
	DefaultTimeout time.Duration `yaml:"-"`
	IdleEviction   time.Duration `yaml:"-"`

	// TimedOutState is the terminal state applied when a key's deadline
	// elapses. Defaults to "timed_out".
	TimedOutState string `yaml:"timed_out_state"`

	// FlowFile is an optional TOML flow definition loaded at startup.
	FlowFile string `yaml:"flow_file"`

	DefaultTimeoutRaw string `yaml:"default_timeout"`
	IdleEvictionRaw   string `yaml:"idle_eviction"`
}

// DatabaseConfig holds persistence configuration. An empty path disables
// persistence (memory-only cursor and states).
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed
// Config. Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. Unset variables become empty strings.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills unset fields with defaults.
func (c *Config) applyDefaults() {
	if c.API.Mode == "" {
		c.API.Mode = ModePolling
	}
	if c.Conversation.TimedOutState == "" {
		c.Conversation.TimedOutState = "timed_out"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks that all required configuration fields are present and
// valid. Returns an error describing the first validation failure.
func (c *Config) Validate() error {
	switch c.API.Mode {
	case ModePolling:
		if c.API.BaseURL == "" {
			return fmt.Errorf("api.base_url is required in polling mode")
		}
		if c.API.Token == "" {
			return fmt.Errorf("api.token is required in polling mode")
		}
	case ModeWebhook:
		if c.Webhook.Addr == "" {
			return fmt.Errorf("webhook.addr is required in webhook mode")
		}
	default:
		return fmt.Errorf("api.mode must be %q or %q, got %q", ModePolling, ModeWebhook, c.API.Mode)
	}

	if c.Dispatch.Workers < 0 {
		return fmt.Errorf("dispatch.workers must not be negative")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values.
func parseDurations(cfg *Config) error {
	fields := []struct {
		raw  string
		name string
		dst  *time.Duration
	}{
		{cfg.Polling.TimeoutRaw, "polling.timeout", &cfg.Polling.Timeout},
		{cfg.Polling.BackoffBaseRaw, "polling.backoff_base", &cfg.Polling.BackoffBase},
		{cfg.Polling.BackoffCapRaw, "polling.backoff_cap", &cfg.Polling.BackoffCap},
		{cfg.Dispatch.ShutdownGraceRaw, "dispatch.shutdown_grace", &cfg.Dispatch.ShutdownGrace},
		{cfg.Conversation.DefaultTimeoutRaw, "conversation.default_timeout", &cfg.Conversation.DefaultTimeout},
		{cfg.Conversation.IdleEvictionRaw, "conversation.idle_eviction", &cfg.Conversation.IdleEviction},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}
