package supervisor

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// ErrAlreadyRunning is returned by Start while a previously started helper is alive
var ErrAlreadyRunning = errors.New("helper process is already running")

// reapTimeout bounds how long Terminate waits for the killed helper to be reaped
const reapTimeout = 5 * time.Second

// Supervisor exclusively owns the helper's OS process handle
type Supervisor struct {
	mu      sync.Mutex
	cmd     *exec.Cmd
	logFile string
	exited  chan struct{}
	exitErr error

	// now is replaceable for log file naming in tests
	now func() time.Time
}

// New creates a supervisor without a running helper
func New() *Supervisor {
	return &Supervisor{now: time.Now}
}

// LogFileName returns the log file name for a helper started at t
func LogFileName(t time.Time) string {
	return fmt.Sprintf("%d-%d-%d-%d.%d.%d.log",
		t.Day(), int(t.Month()), t.Year(), t.Hour(), t.Minute(), t.Second())
}

// Start launches executable detached from this process with stdout and stderr
// redirected to a fresh timestamped file in logDir. On failure the handle stays
// empty and IsRunning keeps reporting false.
func (s *Supervisor) Start(executable string, args []string, logDir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.aliveLocked() {
		return ErrAlreadyRunning
	}

	if err := os.MkdirAll(logDir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	logPath := filepath.Join(logDir, LogFileName(s.now()))
	logFile, err := os.OpenFile(logPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}
	// The child holds its own descriptor after Start
	defer logFile.Close()

	cmd := exec.Command(executable, args...)
	cmd.Dir = filepath.Dir(executable)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	detach(cmd)

	slog.Info("Starting companion app", "executable", executable, "args", args, "log", logPath)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start companion app: %w", err)
	}

	exited := make(chan struct{})
	s.cmd = cmd
	s.logFile = logPath
	s.exited = exited
	s.exitErr = nil

	go s.reap(cmd, exited)

	slog.Info("Companion app started", "pid", cmd.Process.Pid)
	return nil
}

// reap waits for the child so it never lingers as a zombie
func (s *Supervisor) reap(cmd *exec.Cmd, exited chan struct{}) {
	err := cmd.Wait()

	s.mu.Lock()
	if s.cmd == cmd {
		s.exitErr = err
	}
	s.mu.Unlock()
	close(exited)

	if err != nil {
		slog.Info("Companion app exited", "pid", cmd.Process.Pid, "error", err)
	} else {
		slog.Info("Companion app exited", "pid", cmd.Process.Pid)
	}
}

// IsRunning reports true only while a handle exists and the OS reports the
// process alive.
func (s *Supervisor) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aliveLocked()
}

func (s *Supervisor) aliveLocked() bool {
	if s.cmd == nil || s.cmd.Process == nil {
		return false
	}

	select {
	case <-s.exited:
		return false
	default:
	}

	exists, err := process.PidExists(int32(s.cmd.Process.Pid))
	if err != nil {
		slog.Debug("Failed to query companion app process", "pid", s.cmd.Process.Pid, "error", err)
		return false
	}
	return exists
}

// Terminate force-kills the helper and waits briefly for it to be reaped.
// Calling it without a running helper is a no-op.
func (s *Supervisor) Terminate() {
	s.mu.Lock()
	cmd := s.cmd
	exited := s.exited
	s.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return
	}

	select {
	case <-exited:
		return
	default:
	}

	pid := cmd.Process.Pid
	slog.Info("Terminating companion app", "pid", pid)
	if err := forceKill(cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
		slog.Warn("Failed to kill companion app", "pid", pid, "error", err)
	}

	select {
	case <-exited:
	case <-time.After(reapTimeout):
		slog.Warn("Companion app did not exit after kill", "pid", pid)
	}
}

// Pid returns the helper's process ID, or 0 when none was started
func (s *Supervisor) Pid() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil || s.cmd.Process == nil {
		return 0
	}
	return s.cmd.Process.Pid
}

// LogFile returns the path of the current helper's log file
func (s *Supervisor) LogFile() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logFile
}

// NeedsRestart reports whether the helper must be re-downloaded before the
// next launch: the executable is missing, the installed version is not the
// newest compatible one, or the host version changed since the record was
// last written.
func NeedsRestart(executable, installed, newest string, hostVersionChanged bool) bool {
	if _, err := os.Stat(executable); err != nil {
		return true
	}
	return installed != newest || hostVersionChanged
}
