package authclient

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MrEthical07/authclient/internal/coordinator"
	"github.com/MrEthical07/authclient/internal/limiters"
	"github.com/MrEthical07/authclient/internal/rate"
	"github.com/MrEthical07/authclient/session"
)

// Config is the complete client configuration. It is read once by
// [Builder.Build] and treated as immutable afterwards.
type Config struct {
	BaseURL     string            `yaml:"base_url"`
	Coordinator CoordinatorConfig `yaml:"coordinator"`
	Session     SessionConfig     `yaml:"session"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Audit       AuditConfig       `yaml:"audit"`
	Log         LogConfig         `yaml:"log"`
}

/*
====================================
COORDINATOR CONFIG
====================================
*/

// CoordinatorConfig controls token refresh.
type CoordinatorConfig struct {
	// RefreshRoute is resolved against BaseURL.
	RefreshRoute   string        `yaml:"refresh_route"`
	RefreshTimeout time.Duration `yaml:"refresh_timeout"`
	// RequestTimeout is applied to the default HTTP client. Zero disables it.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls where the access token is persisted.
type SessionConfig struct {
	StoreKey string        `yaml:"store_key"`
	StoreTTL time.Duration `yaml:"store_ttl"`
	// RedisAddr selects a Redis token store when no store or client is
	// supplied to the builder.
	RedisAddr string `yaml:"redis_addr"`
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// ActionLimit overrides the defaults for one action class. Zero fields
// inherit from RateLimitConfig.
type ActionLimit struct {
	Threshold      int           `yaml:"threshold"`
	Window         time.Duration `yaml:"window"`
	ResetOnSuccess *bool         `yaml:"reset_on_success"`
}

// RateLimitConfig controls the per-action attempt gates.
type RateLimitConfig struct {
	Threshold      int                    `yaml:"threshold"`
	Window         time.Duration          `yaml:"window"`
	ResetOnSuccess bool                   `yaml:"reset_on_success"`
	Actions        map[Action]ActionLimit `yaml:"actions"`
}

/*
====================================
METRICS / AUDIT / LOG CONFIG
====================================
*/

// MetricsConfig toggles in-process counters.
type MetricsConfig struct {
	Enabled                 bool `yaml:"enabled"`
	EnableLatencyHistograms bool `yaml:"enable_latency_histograms"`
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"buffer_size"`
	DropIfFull bool `yaml:"drop_if_full"`
}

// LogConfig selects the level for [NewLogger].
type LogConfig struct {
	Level string `yaml:"level"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		Coordinator: CoordinatorConfig{
			RefreshRoute:   "api/refresh",
			RefreshTimeout: coordinator.DefaultRefreshTimeout,
			RequestTimeout: 30 * time.Second,
		},
		Session: SessionConfig{
			StoreKey: session.DefaultRedisKey,
		},
		RateLimit: RateLimitConfig{
			Threshold:      rate.DefaultThreshold,
			Window:         limiters.DefaultWindow,
			ResetOnSuccess: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	if cfg.RateLimit.Actions != nil {
		out.RateLimit.Actions = make(map[Action]ActionLimit, len(cfg.RateLimit.Actions))
		for k, v := range cfg.RateLimit.Actions {
			if v.ResetOnSuccess != nil {
				b := *v.ResetOnSuccess
				v.ResetOnSuccess = &b
			}
			out.RateLimit.Actions[k] = v
		}
	}
	return out
}

// Validate reports the first invalid field wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	if err := c.validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

func (c *Config) validate() error {
	if c.BaseURL != "" {
		u, err := url.Parse(c.BaseURL)
		if err != nil {
			return fmt.Errorf("BaseURL: %v", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return errors.New("BaseURL must be an http or https URL")
		}
	}

	// Coordinator
	if strings.TrimSpace(c.Coordinator.RefreshRoute) == "" {
		return errors.New("Coordinator RefreshRoute must not be empty")
	}
	if c.Coordinator.RefreshTimeout <= 0 {
		return errors.New("Coordinator RefreshTimeout must be > 0")
	}
	if c.Coordinator.RequestTimeout < 0 {
		return errors.New("Coordinator RequestTimeout must be >= 0")
	}

	// Session
	if c.Session.StoreTTL < 0 {
		return errors.New("Session StoreTTL must be >= 0")
	}
	if c.Session.RedisAddr != "" && strings.TrimSpace(c.Session.StoreKey) == "" {
		return errors.New("Session StoreKey must not be empty when RedisAddr is set")
	}

	// Rate limit
	if c.RateLimit.Threshold <= 0 {
		return errors.New("RateLimit Threshold must be > 0")
	}
	if c.RateLimit.Window <= 0 {
		return errors.New("RateLimit Window must be > 0")
	}
	for action, limit := range c.RateLimit.Actions {
		if !action.Valid() {
			return fmt.Errorf("RateLimit unknown action %q", action)
		}
		if limit.Threshold < 0 {
			return fmt.Errorf("RateLimit %s Threshold must be >= 0", action)
		}
		if limit.Window < 0 {
			return fmt.Errorf("RateLimit %s Window must be >= 0", action)
		}
	}

	// Metrics
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}

	return nil
}

// gateConfigs splits the rate limit section into gate defaults and
// per-action overrides.
func (c RateLimitConfig) gateConfigs() (limiters.Config, map[string]limiters.Config) {
	defaults := limiters.Config{
		Threshold:      c.Threshold,
		Window:         c.Window,
		ResetOnSuccess: c.ResetOnSuccess,
	}
	if len(c.Actions) == 0 {
		return defaults, nil
	}

	overrides := make(map[string]limiters.Config, len(c.Actions))
	for action, limit := range c.Actions {
		gc := defaults
		if limit.Threshold > 0 {
			gc.Threshold = limit.Threshold
		}
		if limit.Window > 0 {
			gc.Window = limit.Window
		}
		if limit.ResetOnSuccess != nil {
			gc.ResetOnSuccess = *limit.ResetOnSuccess
		}
		overrides[string(action)] = gc
	}
	return defaults, overrides
}

/*
====================================
LOADING
====================================
*/

// LoadConfig returns DefaultConfig overlaid with the YAML file at path (a
// missing file is not an error) and then with AUTHCLIENT_* environment
// variables. The result is validated.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if err := loadFromYAML(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFromYAML(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("unmarshal config yaml: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("AUTHCLIENT_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("AUTHCLIENT_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("AUTHCLIENT_REDIS_ADDR"); v != "" {
		cfg.Session.RedisAddr = v
	}
	if err := overrideDuration("AUTHCLIENT_REFRESH_TIMEOUT", &cfg.Coordinator.RefreshTimeout); err != nil {
		return err
	}
	return nil
}

func overrideDuration(key string, target *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("parse %s duration: %w", key, err)
	}
	*target = d
	return nil
}
