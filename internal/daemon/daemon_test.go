package daemon

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPIDFileRoundTrip(t *testing.T) {
	t.Setenv(EnvHome, t.TempDir())

	if pid, err := ReadPID(); err != nil || pid != 0 {
		t.Fatalf("ReadPID before write = %d, %v", pid, err)
	}

	if err := WritePID(12345); err != nil {
		t.Fatalf("WritePID: %v", err)
	}
	pid, err := ReadPID()
	if err != nil {
		t.Fatalf("ReadPID: %v", err)
	}
	if pid != 12345 {
		t.Errorf("pid = %d, want 12345", pid)
	}

	if err := RemovePID(); err != nil {
		t.Fatalf("RemovePID: %v", err)
	}
	if pid, _ := ReadPID(); pid != 0 {
		t.Errorf("pid after remove = %d", pid)
	}
	// Removing again is a no-op.
	if err := RemovePID(); err != nil {
		t.Errorf("second RemovePID: %v", err)
	}
}

func TestPathsFollowHomeOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvHome, dir)

	if got := SocketPath(); got != filepath.Join(dir, "agentbot.sock") {
		t.Errorf("SocketPath = %s", got)
	}
	if got := LogPath(); got != filepath.Join(dir, "agentbot.log") {
		t.Errorf("LogPath = %s", got)
	}
}

func TestOpenLogFileCreatesDir(t *testing.T) {
	t.Setenv(EnvHome, filepath.Join(t.TempDir(), "nested"))

	f, err := OpenLogFile()
	if err != nil {
		t.Fatalf("OpenLogFile: %v", err)
	}
	defer f.Close()

	if _, err := f.WriteString("hello\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, err := os.ReadFile(LogPath())
	if err != nil || string(data) != "hello\n" {
		t.Errorf("log contents = %q, %v", data, err)
	}
}

func TestIsRunning(t *testing.T) {
	if !IsRunning(os.Getpid()) {
		t.Error("own pid reported not running")
	}
	if IsRunning(0) || IsRunning(-1) {
		t.Error("non-positive pid reported running")
	}
}
