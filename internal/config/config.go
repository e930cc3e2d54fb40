// Package config loads and validates the runtime's YAML configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment overrides.
const (
	EnvBus      = "AGENTBOT_BUS"
	EnvRedisURL = "REDIS_URL"
)

// Bus backends.
const (
	BusMemory = "memory"
	BusRedis  = "redis"
)

// Duration parses either a Go duration string ("90s", "2m") or a bare
// number of seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case int:
		*d = Duration(time.Duration(v) * time.Second)
	case float64:
		*d = Duration(time.Duration(v * float64(time.Second)))
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		*d = Duration(parsed)
	default:
		return fmt.Errorf("invalid duration value %v", raw)
	}
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// EmailConfig is forwarded to the external OTP reader.
type EmailConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Folder   string `yaml:"folder"`
	UseSSL   bool   `yaml:"use_ssl"`
}

// MouseConfig tunes the pointer automation layer.
type MouseConfig struct {
	Enabled     bool    `yaml:"enabled"`
	JitterPx    int     `yaml:"jitter_px"`
	SpeedFactor float64 `yaml:"speed_factor"`
}

// AuthConfig selects the admin API's authentication mode.
type AuthConfig struct {
	// Mode is "none", "builtin" (admin login, HS256 JWT) or "external"
	// (JWKS-verified tokens).
	Mode              string   `yaml:"mode"`
	JWTSecret         string   `yaml:"jwt_secret"`
	JWTExpiry         Duration `yaml:"jwt_expiry"`
	AdminUser         string   `yaml:"admin_user"`
	AdminPasswordHash string   `yaml:"admin_password_hash"`
	JWKSURL           string   `yaml:"jwks_url"`
	Issuer            string   `yaml:"issuer"`
	Audience          string   `yaml:"audience"`
}

// APIConfig configures the optional admin surface. An empty Listen
// disables it.
type APIConfig struct {
	Listen string     `yaml:"listen"`
	Auth   AuthConfig `yaml:"auth"`
}

// Config is the runtime configuration.
type Config struct {
	BaseURL             string       `yaml:"base_url"`
	PollIntervalSeconds int          `yaml:"poll_interval_seconds"`
	SessionStorePath    string       `yaml:"session_store_path"`
	AuditLogPath        string       `yaml:"audit_log_path"`
	Bus                 string       `yaml:"bus"`
	RedisURL            string       `yaml:"redis_url"`
	BusStream           string       `yaml:"bus_stream"`
	LockTTL             Duration     `yaml:"lock_ttl"`
	RequestTimeout      Duration     `yaml:"request_timeout"`
	ShutdownGrace       Duration     `yaml:"shutdown_grace"`
	LogLevel            string       `yaml:"log_level"`
	Email               EmailConfig  `yaml:"email"`
	FormMappingPath     string       `yaml:"form_mapping_path"`
	HumanlikeMouse      *MouseConfig `yaml:"humanlike_mouse"`
	API                 APIConfig    `yaml:"api"`
}

// Load reads, defaults and validates the config at path. Relative file
// paths inside the config resolve against the config file's directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	cfg.resolvePaths(filepath.Dir(path))
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &cfg, nil
}

// Default returns a config with every default applied, for callers running
// without a config file.
func Default() *Config {
	cfg := &Config{}
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvBus); v != "" {
		c.Bus = v
	}
	if v := os.Getenv(EnvRedisURL); v != "" {
		c.RedisURL = v
	}
}

func (c *Config) applyDefaults() {
	if c.PollIntervalSeconds == 0 {
		c.PollIntervalSeconds = 30
	}
	if c.SessionStorePath == "" {
		c.SessionStorePath = "sessions.json"
	}
	if c.AuditLogPath == "" {
		c.AuditLogPath = "audit.log"
	}
	if c.Bus == "" {
		c.Bus = BusMemory
	}
	if c.LockTTL == 0 {
		c.LockTTL = Duration(30 * time.Second)
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = Duration(30 * time.Second)
	}
	if c.ShutdownGrace == 0 {
		c.ShutdownGrace = Duration(15 * time.Second)
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.API.Auth.Mode == "" {
		c.API.Auth.Mode = "none"
	}
	if c.API.Auth.JWTExpiry == 0 {
		c.API.Auth.JWTExpiry = Duration(24 * time.Hour)
	}
	if c.Email.Folder == "" {
		c.Email.Folder = "INBOX"
	}
}

func (c *Config) resolvePaths(base string) {
	for _, p := range []*string{&c.SessionStorePath, &c.AuditLogPath, &c.FormMappingPath} {
		if *p == "" || filepath.IsAbs(*p) {
			continue
		}
		if strings.Contains(*p, "://") {
			continue
		}
		*p = filepath.Join(base, *p)
	}
}

func (c *Config) validate() error {
	if c.PollIntervalSeconds < 5 {
		return fmt.Errorf("poll_interval_seconds must be at least 5, got %d", c.PollIntervalSeconds)
	}
	switch c.Bus {
	case BusMemory:
	case BusRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("bus %q requires redis_url or %s", BusRedis, EnvRedisURL)
		}
	default:
		return fmt.Errorf("unknown bus %q (want %q or %q)", c.Bus, BusMemory, BusRedis)
	}
	switch c.API.Auth.Mode {
	case "none":
	case "builtin":
		if c.API.Auth.JWTSecret == "" {
			return fmt.Errorf("auth mode builtin requires jwt_secret")
		}
	case "external":
		if c.API.Auth.JWKSURL == "" {
			return fmt.Errorf("auth mode external requires jwks_url")
		}
	default:
		return fmt.Errorf("unknown auth mode %q", c.API.Auth.Mode)
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// PollInterval returns the default poll interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// SlogLevel maps the configured level name to a slog.Level.
func (c *Config) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
}
