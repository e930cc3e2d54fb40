package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agentbot.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeConfig(t, `
base_url: https://booking.example.com
poll_interval_seconds: 45
session_store_path: data/sessions.json
audit_log_path: /var/log/agentbot/audit.log
bus: memory
lock_ttl: 45s
log_level: debug
email:
  host: imap.example.com
  port: 993
  username: bot@example.com
  use_ssl: true
api:
  listen: 127.0.0.1:8080
  auth:
    mode: builtin
    jwt_secret: sekrit
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.BaseURL != "https://booking.example.com" {
		t.Errorf("base_url = %s", cfg.BaseURL)
	}
	if cfg.PollInterval() != 45*time.Second {
		t.Errorf("poll interval = %v", cfg.PollInterval())
	}
	if cfg.LockTTL.Std() != 45*time.Second {
		t.Errorf("lock_ttl = %v", cfg.LockTTL.Std())
	}

	// Relative paths resolve against the config directory; absolute ones
	// are untouched.
	wantStore := filepath.Join(filepath.Dir(path), "data/sessions.json")
	if cfg.SessionStorePath != wantStore {
		t.Errorf("session_store_path = %s, want %s", cfg.SessionStorePath, wantStore)
	}
	if cfg.AuditLogPath != "/var/log/agentbot/audit.log" {
		t.Errorf("audit_log_path = %s", cfg.AuditLogPath)
	}

	if cfg.Email.Host != "imap.example.com" || !cfg.Email.UseSSL {
		t.Errorf("email = %+v", cfg.Email)
	}
	if cfg.API.Auth.Mode != "builtin" {
		t.Errorf("auth mode = %s", cfg.API.Auth.Mode)
	}
	if lvl, err := cfg.SlogLevel(); err != nil || lvl != slog.LevelDebug {
		t.Errorf("level = %v, %v", lvl, err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `base_url: https://example.com`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.PollIntervalSeconds != 30 {
		t.Errorf("poll default = %d", cfg.PollIntervalSeconds)
	}
	if cfg.Bus != BusMemory {
		t.Errorf("bus default = %s", cfg.Bus)
	}
	if cfg.LockTTL.Std() != 30*time.Second {
		t.Errorf("lock_ttl default = %v", cfg.LockTTL.Std())
	}
	if cfg.API.Auth.Mode != "none" {
		t.Errorf("auth mode default = %s", cfg.API.Auth.Mode)
	}
	if cfg.Email.Folder != "INBOX" {
		t.Errorf("email folder default = %s", cfg.Email.Folder)
	}
}

func TestLoad_DurationForms(t *testing.T) {
	cfg, err := Load(writeConfig(t, "lock_ttl: 90\nrequest_timeout: 2m\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LockTTL.Std() != 90*time.Second {
		t.Errorf("numeric seconds = %v", cfg.LockTTL.Std())
	}
	if cfg.RequestTimeout.Std() != 2*time.Minute {
		t.Errorf("duration string = %v", cfg.RequestTimeout.Std())
	}
}

func TestLoad_Validation(t *testing.T) {
	cases := []struct {
		name, yaml, wantErr string
	}{
		{"poll too low", "poll_interval_seconds: 2", "at least 5"},
		{"unknown bus", "bus: kafka", "unknown bus"},
		{"redis without url", "bus: redis", "requires redis_url"},
		{"builtin without secret", "api:\n  auth:\n    mode: builtin", "requires jwt_secret"},
		{"external without jwks", "api:\n  auth:\n    mode: external", "requires jwks_url"},
		{"bad level", "log_level: chatty", "unknown log_level"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.yaml))
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("load = %v, want error containing %q", err, tc.wantErr)
			}
		})
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv(EnvBus, "redis")
	t.Setenv(EnvRedisURL, "redis://localhost:6379/0")

	cfg, err := Load(writeConfig(t, "bus: memory\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Bus != BusRedis {
		t.Errorf("bus = %s, want redis from env", cfg.Bus)
	}
	if cfg.RedisURL != "redis://localhost:6379/0" {
		t.Errorf("redis_url = %s", cfg.RedisURL)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
