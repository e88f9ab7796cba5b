package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete application configuration
type Config struct {
	Journal     JournalConfig    `json:"journal" yaml:"journal"`
	Screenshots ScreenshotConfig `json:"screenshots" yaml:"screenshots"`
	Autosave    AutosaveConfig   `json:"autosave" yaml:"autosave"`
	Server      ServerConfig     `json:"server" yaml:"server"`
	Logging     LoggingConfig    `json:"logging" yaml:"logging"`
	// Preferences is the path of the client-local preferences file.
	Preferences string `json:"preferences" yaml:"preferences"`
}

// JournalConfig selects the analysis store
type JournalConfig struct {
	Type   string `json:"type" yaml:"type"` // "sqlite"
	DBPath string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
	// Migrate creates missing tables on open.
	Migrate bool `json:"migrate" yaml:"migrate"`
}

// ScreenshotConfig contains blob storage parameters
type ScreenshotConfig struct {
	Dir        string `json:"dir" yaml:"dir"`
	BaseURL    string `json:"base_url" yaml:"base_url"`
	SigningKey string `json:"signing_key,omitempty" yaml:"signing_key,omitempty"`
	TTL        string `json:"ttl" yaml:"ttl"` // e.g., "1h"
}

// AutosaveConfig contains draft engine timings
type AutosaveConfig struct {
	Delay        string `json:"delay" yaml:"delay"`                 // e.g., "1.5s"
	SavedWindow  string `json:"saved_window" yaml:"saved_window"`   // e.g., "2.5s"
	PollInterval string `json:"poll_interval" yaml:"poll_interval"` // e.g., "1m"
}

// Timings parses the three autosave durations.
func (a AutosaveConfig) Timings() (delay, saved, poll time.Duration, err error) {
	if delay, err = parseDuration("autosave.delay", a.Delay); err != nil {
		return
	}
	if saved, err = parseDuration("autosave.saved_window", a.SavedWindow); err != nil {
		return
	}
	poll, err = parseDuration("autosave.poll_interval", a.PollInterval)
	return
}

// ServerConfig contains HTTP listener parameters
type ServerConfig struct {
	Addr           string   `json:"addr" yaml:"addr"`
	AllowedOrigins []string `json:"allowed_origins,omitempty" yaml:"allowed_origins,omitempty"`
}

// LoggingConfig selects the log level and handler
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // text or json
}

// Environment overrides applied by ApplyEnv.
const (
	EnvDB         = "TRADELOG_DB"
	EnvAddr       = "TRADELOG_ADDR"
	EnvLogLevel   = "TRADELOG_LOG_LEVEL"
	EnvSigningKey = "TRADELOG_SIGNING_KEY"
)

// LoadFromFile loads configuration from a file (YAML, falling back to JSON)
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	// Try YAML first, fall back to JSON
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		cfg = Default()
		err = json.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SaveToFile saves configuration to a file (JSON or YAML based on extension)
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}

	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// ApplyEnv overrides fields from TRADELOG_* environment variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvDB); v != "" {
		c.Journal.DBPath = v
	}
	if v := os.Getenv(EnvAddr); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(EnvSigningKey); v != "" {
		c.Screenshots.SigningKey = v
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Journal.Type != "sqlite" {
		return fmt.Errorf("journal.type must be 'sqlite'")
	}
	if c.Journal.DBPath == "" {
		return fmt.Errorf("journal db_path required for SQLite type")
	}
	if c.Screenshots.Dir == "" {
		return fmt.Errorf("screenshots.dir is required")
	}
	if _, err := parseDuration("screenshots.ttl", c.Screenshots.TTL); err != nil {
		return err
	}
	if _, _, _, err := c.Autosave.Timings(); err != nil {
		return err
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error")
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be 'text' or 'json'")
	}
	return nil
}

// ScreenshotTTL returns the signed link lifetime.
func (c *Config) ScreenshotTTL() time.Duration {
	d, err := parseDuration("screenshots.ttl", c.Screenshots.TTL)
	if err != nil || d == 0 {
		return time.Hour
	}
	return d
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Journal: JournalConfig{
			Type:    "sqlite",
			DBPath:  "./tradelog.db",
			Migrate: true,
		},
		Screenshots: ScreenshotConfig{
			Dir:     "./blobs",
			BaseURL: "http://localhost:8080/blobs",
			TTL:     "1h",
		},
		Autosave: AutosaveConfig{
			Delay:        "1.5s",
			SavedWindow:  "2.5s",
			PollInterval: "1m",
		},
		Server: ServerConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Preferences: "./preferences.yaml",
	}
}

func parseDuration(name, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative", name)
	}
	return d, nil
}
