package authclient

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.RateLimit.Threshold != 5 {
		t.Fatalf("expected default threshold 5, got %d", cfg.RateLimit.Threshold)
	}
	if cfg.RateLimit.Window != 10*time.Second {
		t.Fatalf("expected default window 10s, got %v", cfg.RateLimit.Window)
	}
}

func TestConfigValidate(t *testing.T) {
	yes := true
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name:      "https base url",
			mutate:    func(c *Config) { c.BaseURL = "https://api.example.com/" },
			wantValid: true,
		},
		{
			name:      "non http base url",
			mutate:    func(c *Config) { c.BaseURL = "ftp://example.com" },
			wantValid: false,
		},
		{
			name:      "blank refresh route",
			mutate:    func(c *Config) { c.Coordinator.RefreshRoute = "  " },
			wantValid: false,
		},
		{
			name:      "zero refresh timeout",
			mutate:    func(c *Config) { c.Coordinator.RefreshTimeout = 0 },
			wantValid: false,
		},
		{
			name:      "negative store ttl",
			mutate:    func(c *Config) { c.Session.StoreTTL = -time.Second },
			wantValid: false,
		},
		{
			name: "redis without key",
			mutate: func(c *Config) {
				c.Session.RedisAddr = "127.0.0.1:6379"
				c.Session.StoreKey = ""
			},
			wantValid: false,
		},
		{
			name:      "zero threshold",
			mutate:    func(c *Config) { c.RateLimit.Threshold = 0 },
			wantValid: false,
		},
		{
			name:      "zero window",
			mutate:    func(c *Config) { c.RateLimit.Window = 0 },
			wantValid: false,
		},
		{
			name: "known action override",
			mutate: func(c *Config) {
				c.RateLimit.Actions = map[Action]ActionLimit{
					ActionLogin: {Threshold: 3, ResetOnSuccess: &yes},
				}
			},
			wantValid: true,
		},
		{
			name: "unknown action override",
			mutate: func(c *Config) {
				c.RateLimit.Actions = map[Action]ActionLimit{"upload": {Threshold: 3}}
			},
			wantValid: false,
		},
		{
			name: "histograms without metrics",
			mutate: func(c *Config) {
				c.Metrics.Enabled = false
				c.Metrics.EnableLatencyHistograms = true
			},
			wantValid: false,
		},
		{
			name: "audit enabled without buffer",
			mutate: func(c *Config) {
				c.Audit.Enabled = true
				c.Audit.BufferSize = 0
			},
			wantValid: false,
		},
		{
			name:      "bad log level",
			mutate:    func(c *Config) { c.Log.Level = "loud" },
			wantValid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantValid && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tt.wantValid {
				if err == nil {
					t.Fatal("expected invalid config")
				}
				if !errors.Is(err, ErrInvalidConfig) {
					t.Fatalf("expected ErrInvalidConfig, got %v", err)
				}
			}
		})
	}
}

func TestGateConfigsApplyOverrides(t *testing.T) {
	no := false
	cfg := DefaultConfig().RateLimit
	cfg.Actions = map[Action]ActionLimit{
		ActionLogin: {Threshold: 3},
		ActionLike:  {Window: time.Minute, ResetOnSuccess: &no},
	}

	defaults, overrides := cfg.gateConfigs()
	if defaults.Threshold != 5 || !defaults.ResetOnSuccess {
		t.Fatalf("unexpected defaults %+v", defaults)
	}
	login := overrides["login"]
	if login.Threshold != 3 || login.Window != defaults.Window {
		t.Fatalf("unexpected login override %+v", login)
	}
	like := overrides["like"]
	if like.Threshold != 5 || like.Window != time.Minute || like.ResetOnSuccess {
		t.Fatalf("unexpected like override %+v", like)
	}
}

func TestLoadConfigFromYAMLAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "authclient.yaml")
	yaml := `
base_url: http://localhost:5000/
coordinator:
  refresh_timeout: 5s
rate_limit:
  threshold: 3
  actions:
    like:
      window: 30s
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("AUTHCLIENT_LOG_LEVEL", "warn")
	t.Setenv("AUTHCLIENT_REDIS_ADDR", "127.0.0.1:6390")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.BaseURL != "http://localhost:5000/" {
		t.Fatalf("unexpected base url %q", cfg.BaseURL)
	}
	if cfg.Coordinator.RefreshTimeout != 5*time.Second {
		t.Fatalf("unexpected refresh timeout %v", cfg.Coordinator.RefreshTimeout)
	}
	if cfg.Coordinator.RefreshRoute != "api/refresh" {
		t.Fatalf("expected default refresh route kept, got %q", cfg.Coordinator.RefreshRoute)
	}
	if cfg.RateLimit.Threshold != 3 || cfg.RateLimit.Actions[ActionLike].Window != 30*time.Second {
		t.Fatalf("unexpected rate limit section %+v", cfg.RateLimit)
	}
	if cfg.Log.Level != "warn" {
		t.Fatalf("expected env to override log level, got %q", cfg.Log.Level)
	}
	if cfg.Session.RedisAddr != "127.0.0.1:6390" {
		t.Fatalf("expected env redis addr, got %q", cfg.Session.RedisAddr)
	}
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.RateLimit.Threshold != DefaultConfig().RateLimit.Threshold {
		t.Fatal("expected defaults for a missing file")
	}
}

func TestLoadConfigRejectsBadEnvDuration(t *testing.T) {
	t.Setenv("AUTHCLIENT_REFRESH_TIMEOUT", "soon")
	if _, err := LoadConfig(""); err == nil {
		t.Fatal("expected bad duration to fail")
	}
}

func TestNewLoggerLevels(t *testing.T) {
	if _, err := NewLogger("debug"); err != nil {
		t.Fatalf("debug logger: %v", err)
	}
	if _, err := NewLogger(""); err != nil {
		t.Fatalf("default logger: %v", err)
	}
	if _, err := NewLogger("chatty"); err == nil {
		t.Fatal("expected unknown level to fail")
	}
}
