package supervisor

import (
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

func quietLogger(t *testing.T) {
	t.Helper()
	old := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.Level(99)})))
	t.Cleanup(func() { slog.SetDefault(old) })
}

func sleepBinary(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a unix sleep binary")
	}
	path, err := exec.LookPath("sleep")
	if err != nil {
		t.Skip("sleep not available")
	}
	return path
}

func waitFor(t *testing.T, cond func() bool, timeout time.Duration) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func TestLogFileName(t *testing.T) {
	ts := time.Date(2024, time.March, 7, 9, 5, 3, 0, time.Local)
	if got := LogFileName(ts); got != "7-3-2024-9.5.3.log" {
		t.Errorf("LogFileName() = %q, want %q", got, "7-3-2024-9.5.3.log")
	}
}

func TestSupervisor_StartAndTerminate(t *testing.T) {
	quietLogger(t)
	sleep := sleepBinary(t)
	logDir := filepath.Join(t.TempDir(), "logs")

	s := New()
	s.now = func() time.Time { return time.Date(2024, time.March, 7, 9, 5, 3, 0, time.Local) }
	defer s.Terminate()

	if s.IsRunning() {
		t.Fatal("supervisor without a handle must not report running")
	}

	if err := s.Start(sleep, []string{"30"}, logDir); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if !s.IsRunning() {
		t.Fatal("expected helper to be running")
	}
	if s.Pid() == 0 {
		t.Error("expected a pid")
	}
	if want := filepath.Join(logDir, "7-3-2024-9.5.3.log"); s.LogFile() != want {
		t.Errorf("LogFile() = %q, want %q", s.LogFile(), want)
	}
	if _, err := os.Stat(s.LogFile()); err != nil {
		t.Errorf("expected log file to exist: %v", err)
	}

	if err := s.Start(sleep, []string{"30"}, logDir); err != ErrAlreadyRunning {
		t.Errorf("expected ErrAlreadyRunning, got %v", err)
	}

	s.Terminate()
	if s.IsRunning() {
		t.Error("expected helper to be gone after Terminate")
	}

	// idempotent
	s.Terminate()
}

func TestSupervisor_ExitedProcessIsNotRunning(t *testing.T) {
	quietLogger(t)
	sleep := sleepBinary(t)

	s := New()
	if err := s.Start(sleep, []string{"0"}, t.TempDir()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if !waitFor(t, func() bool { return !s.IsRunning() }, 5*time.Second) {
		t.Fatal("expected exited helper to be reported as not running")
	}

	// a dead helper can be started again
	if err := s.Start(sleep, []string{"30"}, t.TempDir()); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	defer s.Terminate()
	if !s.IsRunning() {
		t.Error("expected restarted helper to be running")
	}
}

func TestSupervisor_StartFailureLeavesHandleEmpty(t *testing.T) {
	quietLogger(t)
	s := New()

	err := s.Start(filepath.Join(t.TempDir(), "missing.exe"), nil, t.TempDir())
	if err == nil {
		t.Fatal("expected launch error")
	}
	if s.IsRunning() {
		t.Error("failed launch must not report running")
	}
	if s.Pid() != 0 {
		t.Errorf("expected empty handle, got pid %d", s.Pid())
	}

	// no-op without a handle
	s.Terminate()
}

func TestSupervisor_OutputGoesToLogFile(t *testing.T) {
	quietLogger(t)
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}

	s := New()
	if err := s.Start(sh, []string{"-c", "echo hello; echo oops >&2"}, t.TempDir()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, func() bool { return !s.IsRunning() }, 5*time.Second)

	data, err := os.ReadFile(s.LogFile())
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if string(data) != "hello\noops\n" {
		t.Errorf("unexpected log content %q", data)
	}
}

func TestNeedsRestart(t *testing.T) {
	exe := filepath.Join(t.TempDir(), "TotalDebugCompanion.exe")
	if err := os.WriteFile(exe, []byte("bin"), 0755); err != nil {
		t.Fatal(err)
	}
	missing := filepath.Join(t.TempDir(), "missing.exe")

	tests := []struct {
		name              string
		exe               string
		installed, newest string
		hostChanged       bool
		want              bool
	}{
		{"up to date", exe, "v1.2.8", "v1.2.8", false, false},
		{"executable missing", missing, "v1.2.8", "v1.2.8", false, true},
		{"version differs", exe, "v1.2.0", "v1.2.8", false, true},
		{"host version changed", exe, "v1.2.8", "v1.2.8", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NeedsRestart(tt.exe, tt.installed, tt.newest, tt.hostChanged); got != tt.want {
				t.Errorf("NeedsRestart() = %v, want %v", got, tt.want)
			}
		})
	}
}
