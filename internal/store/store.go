// Package store persists session records and provides file, SQLite and
// PostgreSQL implementations.
package store

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"time"
)

// EnvSessionKey names the environment variable holding the base64 encoded
// 32-byte session store key. When unset, records are stored in plaintext.
const EnvSessionKey = "AGENTBOT_SESSION_KEY"

// MinPollInterval is the floor applied when deriving an agent's poll
// interval from a record.
const MinPollInterval = 5 * time.Second

// SessionRecord is a persisted user identity. session_id is the primary
// key; the credential, profile and preference maps are opaque to the store.
type SessionRecord struct {
	SessionID   string         `json:"session_id"`
	UserID      string         `json:"user_id,omitempty"`
	Email       string         `json:"email,omitempty"`
	Credentials map[string]any `json:"credentials,omitempty"`
	Profile     map[string]any `json:"profile,omitempty"`
	Preferences map[string]any `json:"preferences,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Validate reports whether the record has the shape the store requires.
func (r *SessionRecord) Validate() error {
	if r.SessionID == "" {
		return fmt.Errorf("session record missing session_id")
	}
	return nil
}

// AgentConfig is the immutable per-agent view derived from a record at
// bootstrap. It is never persisted.
type AgentConfig struct {
	SessionID    string
	UserID       string
	PollInterval time.Duration
	Timezone     string
	Metadata     map[string]any
}

// DeriveAgentConfig builds an AgentConfig from a record. A
// poll_interval_seconds preference overrides the default; either way the
// interval is clamped to MinPollInterval.
func (r *SessionRecord) DeriveAgentConfig(defaultPoll time.Duration) AgentConfig {
	poll := defaultPoll
	if v, ok := r.Preferences["poll_interval_seconds"]; ok {
		switch n := v.(type) {
		case float64:
			poll = time.Duration(n * float64(time.Second))
		case int:
			poll = time.Duration(n) * time.Second
		}
	}
	if poll < MinPollInterval {
		poll = MinPollInterval
	}

	tz := ""
	if v, ok := r.Preferences["timezone"].(string); ok {
		tz = v
	}

	return AgentConfig{
		SessionID:    r.SessionID,
		UserID:       r.UserID,
		PollInterval: poll,
		Timezone:     tz,
		Metadata:     r.Metadata,
	}
}

// Store is the persistence interface for session records.
type Store interface {
	List(ctx context.Context) ([]SessionRecord, error)
	// Get returns nil, nil when no record has the given id.
	Get(ctx context.Context, id string) (*SessionRecord, error)
	// Upsert inserts or replaces the record. A subsequent Get observes the
	// new value.
	Upsert(ctx context.Context, rec *SessionRecord) error
	Delete(ctx context.Context, id string) error

	Ping(ctx context.Context) error
	Close() error
}

// KeyFromEnv decodes the session store key from the environment. Returns
// nil, nil when the variable is unset.
func KeyFromEnv() ([]byte, error) {
	raw := os.Getenv(EnvSessionKey)
	if raw == "" {
		return nil, nil
	}
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", EnvSessionKey, err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("%s must decode to %d bytes, got %d", EnvSessionKey, KeySize, len(key))
	}
	return key, nil
}
