package audit

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestLogger_AppendsJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer l.Close()

	if err := l.Log("booking_succeeded", "s-1", map[string]any{"slot_id": "slot-9"}); err != nil {
		t.Fatalf("log: %v", err)
	}
	if err := l.Log("booking_failed", "s-2", nil); err != nil {
		t.Fatalf("log: %v", err)
	}

	entries, err := ReadEntries(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Event != "booking_succeeded" || entries[0].SessionID != "s-1" {
		t.Errorf("first entry = %+v", entries[0])
	}
	if entries[0].Timestamp.IsZero() {
		t.Error("timestamp not set")
	}
	payload, ok := entries[0].Payload.(map[string]any)
	if !ok || payload["slot_id"] != "slot-9" {
		t.Errorf("payload = %+v", entries[0].Payload)
	}
}

func TestLogger_AppendAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")

	l, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := l.Log("first", "s-1", nil); err != nil {
		t.Fatalf("log: %v", err)
	}
	l.Close()

	l, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if err := l.Log("second", "s-1", nil); err != nil {
		t.Fatalf("log: %v", err)
	}
	l.Close()

	entries, err := ReadEntries(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(entries) != 2 || entries[0].Event != "first" || entries[1].Event != "second" {
		t.Errorf("entries = %+v", entries)
	}
}

func TestReadEntries_ToleratesPartialLastLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	content := `{"timestamp":"2026-01-01T00:00:00Z","event":"ok","session_id":"s-1"}` + "\n" +
		`{"timestamp":"2026-01-01T00:00:01Z","event":"trunc`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	entries, err := ReadEntries(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(entries) != 1 || entries[0].Event != "ok" {
		t.Errorf("entries = %+v, want only the complete line", entries)
	}
}

func TestLogger_ConcurrentWritesStayLineAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer l.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				if err := l.Log("tick", "s-1", nil); err != nil {
					t.Errorf("log: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	entries, err := ReadEntries(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(entries) != 200 {
		t.Errorf("got %d entries, want 200", len(entries))
	}
}

func TestOpen_EnvOverride(t *testing.T) {
	override := filepath.Join(t.TempDir(), "override.log")
	t.Setenv(EnvLogPath, override)

	l, err := Open(filepath.Join(t.TempDir(), "ignored.log"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer l.Close()

	if l.Path() != override {
		t.Errorf("path = %s, want %s", l.Path(), override)
	}
}
