package config

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Transport.TimeoutSeconds != 10 {
		t.Errorf("expected timeout 10, got %d", cfg.Transport.TimeoutSeconds)
	}

	if cfg.Transport.RateLimit != 4 {
		t.Errorf("expected rate limit 4, got %v", cfg.Transport.RateLimit)
	}

	if cfg.Log.Level != "info" {
		t.Errorf("expected log level info, got %s", cfg.Log.Level)
	}

	if cfg.Log.Format != "text" {
		t.Errorf("expected log format text, got %s", cfg.Log.Format)
	}
}

func TestLoadConfig(t *testing.T) {
	tests := []struct {
		name        string
		configYAML  string
		wantErr     bool
		errContains string
	}{
		{
			name: "valid config",
			configYAML: `
router:
  model: "fastgate-dn8245f2"
  host: "192.168.1.1"
  username: "admin"
  password: "s3cret"
log:
  level: "info"
  format: "text"
`,
			wantErr: false,
		},
		{
			name: "missing model",
			configYAML: `
router:
  host: "192.168.1.1"
  username: "admin"
  password: "s3cret"
`,
			wantErr:     true,
			errContains: "model is required",
		},
		{
			name: "unknown model",
			configYAML: `
router:
  model: "netgear-r7000"
  host: "192.168.1.1"
  username: "admin"
  password: "s3cret"
`,
			wantErr:     true,
			errContains: "not a supported model",
		},
		{
			name: "missing host",
			configYAML: `
router:
  model: "fastgate-dn8245f2"
  username: "admin"
  password: "s3cret"
`,
			wantErr:     true,
			errContains: "host is required",
		},
		{
			name: "missing password",
			configYAML: `
router:
  model: "fastgate-dn8245f2"
  host: "192.168.1.1"
  username: "admin"
`,
			wantErr:     true,
			errContains: "password is required",
		},
		{
			name: "missing username for form login model",
			configYAML: `
router:
  model: "technicolor-tg789vacv2"
  host: "192.168.1.1"
  password: "s3cret"
`,
			wantErr:     true,
			errContains: "username is required",
		},
		{
			name: "browser model needs webdriver endpoint",
			configYAML: `
router:
  model: "tplink-m7000"
  host: "192.168.0.1"
  password: "s3cret"
`,
			wantErr:     true,
			errContains: "webdriver_url is required",
		},
		{
			name: "browser model with webdriver and no username",
			configYAML: `
router:
  model: "tplink-m7000"
  host: "192.168.0.1"
  password: "s3cret"
transport:
  webdriver_url: "http://127.0.0.1:4444"
`,
			wantErr: false,
		},
		{
			name: "invalid log level",
			configYAML: `
router:
  model: "fastgate-dn8245f2"
  host: "192.168.1.1"
  username: "admin"
  password: "s3cret"
log:
  level: "verbose"
`,
			wantErr:     true,
			errContains: "log.level must be one of",
		},
		{
			name: "invalid yaml",
			configYAML: `
this is not: valid: yaml:
  bad: [syntax
`,
			wantErr:     true,
			errContains: "failed to parse",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpfile, err := os.CreateTemp("", "config-*.yaml")
			if err != nil {
				t.Fatal(err)
			}
			defer func() { _ = os.Remove(tmpfile.Name()) }()

			if _, err := tmpfile.Write([]byte(tt.configYAML)); err != nil {
				t.Fatal(err)
			}
			if err := tmpfile.Close(); err != nil {
				t.Fatal(err)
			}

			cfg, err := Load(tmpfile.Name())

			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error containing '%s', got nil", tt.errContains)
				} else if tt.errContains != "" && !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("error = %v, want error containing %v", err, tt.errContains)
				}
			} else {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				if cfg == nil {
					t.Error("expected config, got nil")
				}
			}
		})
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("GATESCRAPE_ROUTER_PASSWORD", "env-secret")
	t.Setenv("GATESCRAPE_LOG_LEVEL", "debug")

	configYAML := `
router:
  model: "fastgate-dn8245f2"
  host: "192.168.1.1"
  username: "admin"
  password: "yaml-secret"
log:
  level: "info"
`

	tmpfile, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Remove(tmpfile.Name()) }()
	if _, err := tmpfile.Write([]byte(configYAML)); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(tmpfile.Name())
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Router.Password != "env-secret" {
		t.Errorf("expected password 'env-secret', got '%s'", cfg.Router.Password)
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("expected log level 'debug', got '%s'", cfg.Log.Level)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.Router = RouterConfig{
			Model:    "fastgate-dn8245f2",
			Host:     "192.168.1.1",
			Username: "admin",
			Password: "s3cret",
		}
		return cfg
	}

	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "timeout zero",
			modify: func(c *Config) {
				c.Transport.TimeoutSeconds = 0
			},
			wantErr: true,
			errMsg:  "timeout_seconds must be positive",
		},
		{
			name: "negative rate limit",
			modify: func(c *Config) {
				c.Transport.RateLimit = -1
			},
			wantErr: true,
			errMsg:  "rate_limit must be positive",
		},
		{
			name: "invalid log format",
			modify: func(c *Config) {
				c.Log.Format = "xml"
			},
			wantErr: true,
			errMsg:  "log.format must be one of",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error containing '%s', got nil", tt.errMsg)
				} else if !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("error = %v, want error containing %v", err, tt.errMsg)
				}
			} else {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
			}
		})
	}
}

func TestRedact(t *testing.T) {
	cfg := &Config{
		Router: RouterConfig{
			Password: "super-secret",
		},
	}

	redacted := cfg.Redact()

	if redacted.Router.Password != "[REDACTED]" {
		t.Errorf("expected [REDACTED], got %s", redacted.Router.Password)
	}

	// Original should be unchanged
	if cfg.Router.Password != "super-secret" {
		t.Errorf("original was modified")
	}
}

func TestSetupLogging(t *testing.T) {
	old := slog.Default()
	t.Cleanup(func() {
		slog.SetDefault(old)
	})

	SetupLogging(&LogConfig{Level: "debug", Format: "json"})
	if !slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		t.Error("expected debug logs to be enabled")
	}

	SetupLogging(&LogConfig{Level: "error", Format: "text"})
	if slog.Default().Enabled(context.Background(), slog.LevelInfo) {
		t.Error("expected info logs to be disabled at error level")
	}
	if !slog.Default().Enabled(context.Background(), slog.LevelError) {
		t.Error("expected error logs to be enabled")
	}
}
