package ipc

import (
	"encoding/json"
	"time"
)

// Request is a JSON-Lines request from a CLI or TUI client.
type Request struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response is sent back to the client.
type Response struct {
	ID   string          `json:"id,omitempty"`
	Type string          `json:"type"` // "result" or "error" or "event"
	Data json.RawMessage `json:"data,omitempty"`
}

// StatusResult is returned by the "status" method.
type StatusResult struct {
	Started   bool      `json:"started"`
	StartedAt time.Time `json:"started_at"`
	Uptime    string    `json:"uptime"`
	BaseURL   string    `json:"base_url"`
	Bus       string    `json:"bus"`
	Sessions  int       `json:"sessions"`
	Version   string    `json:"version"`
}

// SessionInfo describes one session's agent pair.
type SessionInfo struct {
	SessionID      string `json:"session_id"`
	UserID         string `json:"user_id"`
	Email          string `json:"email,omitempty"`
	MonitorRunning bool   `json:"monitor_running"`
	BookerRunning  bool   `json:"booker_running"`
	State          string `json:"state"`
}

// SessionsResult is returned by the "sessions" method.
type SessionsResult struct {
	Sessions []SessionInfo `json:"sessions"`
}

// SubscribeParams are sent with the "subscribe" method. Empty Events
// means every event type; SessionID narrows to one session plus
// broadcasts.
type SubscribeParams struct {
	Events    []string `json:"events,omitempty"`
	SessionID string   `json:"session_id,omitempty"`
}

// Event wraps a bus envelope for IPC transport.
type Event struct {
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"ts"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// StateProvider is the interface the IPC server uses to query runtime state.
type StateProvider interface {
	Status() StatusResult
	Sessions() []SessionInfo
}
