package config

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gatescrape/gatescrape/fastgate"
	"github.com/gatescrape/gatescrape/technicolor"
	"github.com/gatescrape/gatescrape/tplink"
)

// Config represents the complete application configuration
type Config struct {
	Router    RouterConfig    `yaml:"router"`
	Transport TransportConfig `yaml:"transport"`
	Session   SessionConfig   `yaml:"session"`
	Log       LogConfig       `yaml:"log"`
}

// RouterConfig identifies the router to scrape and how to authenticate
type RouterConfig struct {
	Model    string `yaml:"model"`    // router model identifier (e.g. "fastgate-dn8245f2")
	Host     string `yaml:"host"`     // router address, host or host:port
	Username string `yaml:"username"` // login username (not used by password-only models)
	Password string `yaml:"password"` // login password
}

// TransportConfig tunes the HTTP transport
type TransportConfig struct {
	TimeoutSeconds int     `yaml:"timeout_seconds"` // per-request timeout
	RateLimit      float64 `yaml:"rate_limit"`      // max requests per second
	WebDriverURL   string  `yaml:"webdriver_url"`   // WebDriver endpoint for browser-driven models
}

// SessionConfig defines session snapshot persistence
type SessionConfig struct {
	SnapshotFile string `yaml:"snapshot_file"` // where exported sessions are stored, empty disables persistence
}

// LogConfig defines logging settings
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// validModels are the router models an adapter exists for.
var validModels = map[string]bool{
	fastgate.Model:    true,
	technicolor.Model: true,
	tplink.Model:      true,
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Transport: TransportConfig{
			TimeoutSeconds: 10,
			RateLimit:      4,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// applyEnvOverrides applies environment variable overrides
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("GATESCRAPE_ROUTER_MODEL"); v != "" {
		c.Router.Model = v
	}
	if v := os.Getenv("GATESCRAPE_ROUTER_HOST"); v != "" {
		c.Router.Host = v
	}
	if v := os.Getenv("GATESCRAPE_ROUTER_USERNAME"); v != "" {
		c.Router.Username = v
	}
	if v := os.Getenv("GATESCRAPE_ROUTER_PASSWORD"); v != "" {
		c.Router.Password = v
	}

	if v := os.Getenv("GATESCRAPE_SESSION_SNAPSHOT_FILE"); v != "" {
		c.Session.SnapshotFile = v
	}

	if v := os.Getenv("GATESCRAPE_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("GATESCRAPE_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Router.Model == "" {
		return fmt.Errorf("router.model is required")
	}
	if !validModels[c.Router.Model] {
		return fmt.Errorf("router.model %q is not a supported model", c.Router.Model)
	}

	if c.Router.Host == "" {
		return fmt.Errorf("router.host is required")
	}
	if c.Router.Password == "" {
		return fmt.Errorf("router.password is required")
	}
	// The M7000 login form asks for a password only.
	if c.Router.Username == "" && c.Router.Model != tplink.Model {
		return fmt.Errorf("router.username is required for model %s", c.Router.Model)
	}

	if c.Transport.TimeoutSeconds <= 0 {
		return fmt.Errorf("transport.timeout_seconds must be positive")
	}
	if c.Transport.RateLimit <= 0 {
		return fmt.Errorf("transport.rate_limit must be positive")
	}
	if c.Router.Model == tplink.Model && c.Transport.WebDriverURL == "" {
		return fmt.Errorf("transport.webdriver_url is required for model %s", tplink.Model)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("log.level must be one of: debug, info, warn, error")
	}

	validFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validFormats[c.Log.Format] {
		return fmt.Errorf("log.format must be one of: json, text")
	}

	return nil
}

// SetupLogging configures the global slog logger based on the LogConfig.
func SetupLogging(cfg *LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}

// Redact returns a copy of the config with secrets redacted for safe logging
func (c *Config) Redact() *Config {
	redacted := *c
	if redacted.Router.Password != "" {
		redacted.Router.Password = "[REDACTED]"
	}
	return &redacted
}
