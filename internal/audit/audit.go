// Package audit appends runtime events to a JSON-lines trail.
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EnvLogPath overrides the configured audit log location.
const EnvLogPath = "AGENTBOT_AUDIT_LOG"

// Entry is one line of the trail.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Event     string    `json:"event"`
	SessionID string    `json:"session_id,omitempty"`
	Payload   any       `json:"payload,omitempty"`
}

// Logger appends entries to a file opened with O_APPEND. Writes are
// serialized through a mutex; each line is self-contained so a partial last
// line after a crash only loses that line.
type Logger struct {
	mu   sync.Mutex
	f    *os.File
	path string
}

// Open creates a logger at path, honoring the environment override.
func Open(path string) (*Logger, error) {
	if env := os.Getenv(EnvLogPath); env != "" {
		path = env
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create audit directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open audit log %s: %w", path, err)
	}
	return &Logger{f: f, path: path}, nil
}

// Path returns the resolved log location.
func (l *Logger) Path() string { return l.path }

// Log appends one entry. The payload must be JSON-marshalable.
func (l *Logger) Log(event, sessionID string, payload any) error {
	line, err := json.Marshal(Entry{
		Timestamp: time.Now().UTC(),
		Event:     event,
		SessionID: sessionID,
		Payload:   payload,
	})
	if err != nil {
		return fmt.Errorf("encode audit entry %s: %w", event, err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.f.Write(line); err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// Close releases the underlying file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}

// ReadEntries loads a trail, skipping lines that do not parse. A truncated
// final line from an interrupted write is silently dropped.
func ReadEntries(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open audit log %s: %w", path, err)
	}
	defer f.Close()

	var entries []Entry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, sc.Err()
}
