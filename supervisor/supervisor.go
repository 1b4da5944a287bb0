// Copyright 2026 The Quotio Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/quotio/quotio/lib/binhash"
	"github.com/quotio/quotio/lib/config"
	"github.com/quotio/quotio/lib/netutil"
)

// ErrAlreadyRunning is returned by Start when the pid file points at a
// live backend process.
var ErrAlreadyRunning = errors.New("supervisor: backend already running")

const (
	defaultStartTimeout    = 10 * time.Second
	defaultStopGracePeriod = 5 * time.Second
)

// portReleaseTimeout bounds how long Restart waits for the stopped
// backend to release its port. Var so tests can shorten it.
var portReleaseTimeout = 5 * time.Second

// Supervisor owns the backend process lifecycle: it discovers the
// installed binary, generates the backend's config file, spawns the
// process with its output captured into a rotating log, and tears it
// down again. The pid file under the data directory is the source of
// truth for "is a backend running", so a supervisor in one process can
// stop a backend started by another.
type Supervisor struct {
	// Config supplies the backend port, directories, binary override,
	// and log rotation caps. Required.
	Config *config.Config

	// Logger receives structured log output. If nil, slog.Default()
	// is used.
	Logger *slog.Logger

	// StartTimeout bounds how long Start waits for the spawned backend
	// to accept connections. Zero means 10s.
	StartTimeout time.Duration

	// StopGracePeriod is how long Stop waits after SIGTERM before
	// escalating to SIGKILL, for a backend this process spawned. Zero
	// means 5s.
	StopGracePeriod time.Duration

	mu      sync.Mutex
	process *os.Process
	done    chan struct{}

	// exitCode is written by the reaper before done is closed; read it
	// only after Done() reports the exit.
	exitCode int
}

// Status describes the backend as observed right now.
type Status struct {
	// Running means the pid file names a live process.
	Running bool

	// PID is that process's id; zero when not running.
	PID int

	// PortReachable means something is accepting connections on the
	// backend port. It can be true while Running is false when another
	// program squats on the port.
	PortReachable bool
}

// logger returns the configured logger or the default.
func (s *Supervisor) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *Supervisor) startTimeout() time.Duration {
	if s.StartTimeout > 0 {
		return s.StartTimeout
	}
	return defaultStartTimeout
}

func (s *Supervisor) stopGracePeriod() time.Duration {
	if s.StopGracePeriod > 0 {
		return s.StopGracePeriod
	}
	return defaultStopGracePeriod
}

// pidFilePath is where the running backend's pid is recorded.
func (s *Supervisor) pidFilePath() string {
	return filepath.Join(s.Config.DataDir, "backend.pid")
}

// backendConfigPath is where the generated backend config is written.
// Deliberately not config.yaml: that name belongs to Quotio's own
// config in the same directory.
func (s *Supervisor) backendConfigPath() string {
	return filepath.Join(s.Config.DataDir, "backend.yaml")
}

func (s *Supervisor) backendAddr() string {
	return fmt.Sprintf("127.0.0.1:%d", s.Config.EffectiveBackendPort())
}

// Start spawns the backend and waits for it to accept connections on
// the backend port. It returns ErrAlreadyRunning when the pid file
// points at a live process. The spawned process's stdout and stderr
// are merged into the rotating backend log.
func (s *Supervisor) Start(ctx context.Context) error {
	if s.Config == nil {
		return fmt.Errorf("supervisor: config is required")
	}

	s.mu.Lock()

	pidPath := s.pidFilePath()
	if pid, alive := pidFileAlive(pidPath); alive {
		s.mu.Unlock()
		s.logger().Info("backend already running",
			"pid", pid,
			"port", s.Config.EffectiveBackendPort(),
		)
		return ErrAlreadyRunning
	}

	if err := s.Config.EnsureDirs(); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("supervisor: %w", err)
	}

	binary, err := s.discoverBinary()
	if err != nil {
		s.mu.Unlock()
		return err
	}

	// The digest pins exactly which build produced the log lines that
	// follow; the backend is installed and upgraded out of band.
	digest := "unknown"
	if sum, hashErr := binhash.HashFile(binary); hashErr == nil {
		digest = binhash.FormatDigest(sum)
	}

	port := s.Config.EffectiveBackendPort()
	configPath := s.backendConfigPath()
	if err := writeBackendConfig(configPath, port, s.Config.AuthDir); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("supervisor: %w", err)
	}

	logWriter := &lumberjack.Logger{
		Filename:   s.Config.LogFile(),
		MaxSize:    s.Config.Log.MaxSizeMB,
		MaxBackups: s.Config.Log.MaxBackups,
		MaxAge:     s.Config.Log.MaxAgeDays,
		Compress:   s.Config.Log.Compress,
	}

	cmd := exec.Command(binary, "-config", configPath)
	cmd.Stdout = logWriter
	cmd.Stderr = logWriter

	if err := cmd.Start(); err != nil {
		s.mu.Unlock()
		logWriter.Close()
		return fmt.Errorf("supervisor: starting backend process: %w", err)
	}

	pid := cmd.Process.Pid
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(pid)+"\n"), 0600); err != nil {
		cmd.Process.Kill()
		cmd.Wait()
		s.mu.Unlock()
		logWriter.Close()
		return fmt.Errorf("supervisor: writing pid file: %w", err)
	}

	done := make(chan struct{})
	s.process = cmd.Process
	s.done = done

	// Reap the backend in the background to avoid zombies. The exit
	// code is stored before done closes, so anyone woken by Done() can
	// read it.
	go func() {
		waitError := cmd.Wait()
		exitCode := 0
		if waitError != nil {
			var exitErr *exec.ExitError
			if errors.As(waitError, &exitErr) {
				exitCode = exitErr.ExitCode()
			} else {
				exitCode = -1
			}
		}
		s.exitCode = exitCode
		logWriter.Close()
		close(done)
		s.logger().Info("backend process exited",
			"pid", pid,
			"exit_code", exitCode,
			"error", waitError,
		)
	}()

	addr := s.backendAddr()
	s.mu.Unlock()

	// Readiness: the backend is up when its port accepts connections.
	// Uses done to detect early death and fail fast rather than
	// waiting out the full timeout.
	if err := waitForPort(ctx, addr, done, s.startTimeout()); err != nil {
		cmd.Process.Kill()
		<-done
		os.Remove(pidPath)
		s.mu.Lock()
		s.process = nil
		s.mu.Unlock()
		return fmt.Errorf("supervisor: %w", err)
	}

	s.logger().Info("backend started",
		"pid", pid,
		"port", port,
		"binary", binary,
		"sha256", digest,
		"log", s.Config.LogFile(),
	)
	return nil
}

// Stop terminates the backend named by the pid file. A pid file
// pointing at a dead process is cleaned up and reported as not
// running. When the backend was spawned by this process, Stop waits
// for it to drain and escalates to SIGKILL if SIGTERM is ignored; a
// backend adopted from a pid file only gets the SIGTERM, since it is
// not our child and cannot be waited on.
func (s *Supervisor) Stop() error {
	if s.Config == nil {
		return fmt.Errorf("supervisor: config is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pidPath := s.pidFilePath()
	data, err := os.ReadFile(pidPath)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger().Info("backend is not running")
		return nil
	}
	if err != nil {
		return fmt.Errorf("supervisor: reading pid file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		os.Remove(pidPath)
		return fmt.Errorf("supervisor: pid file %s is corrupt: %q", pidPath, strings.TrimSpace(string(data)))
	}

	// os.FindProcess always succeeds on Unix (it just wraps the pid).
	process, _ := os.FindProcess(pid)
	if err := process.Signal(syscall.SIGTERM); err != nil {
		// ESRCH (or an already-reaped child): nothing lives there.
		os.Remove(pidPath)
		if s.process != nil && s.process.Pid == pid {
			s.process = nil
		}
		s.logger().Info("backend was not running, removed stale pid file", "pid", pid)
		return nil
	}

	if s.process != nil && s.process.Pid == pid && s.done != nil {
		select {
		case <-s.done:
		case <-time.After(s.stopGracePeriod()):
			s.logger().Warn("backend ignored SIGTERM, killing", "pid", pid)
			process.Signal(syscall.SIGKILL)
			<-s.done
		}
		s.process = nil
	}

	os.Remove(pidPath)
	s.logger().Info("backend stopped", "pid", pid)
	return nil
}

// Restart stops the backend, waits for the port to be released, and
// starts it again.
func (s *Supervisor) Restart(ctx context.Context) error {
	if err := s.Stop(); err != nil {
		return err
	}

	// A backend that just died can hold the port briefly; a fresh
	// spawn would fail its bind.
	addr := s.backendAddr()
	deadline := time.Now().Add(portReleaseTimeout)
	for netutil.ProbeTCP(addr, 100*time.Millisecond) {
		if time.Now().After(deadline) {
			return fmt.Errorf("supervisor: port %s still in use after stop", addr)
		}
		time.Sleep(10 * time.Millisecond)
	}

	return s.Start(ctx)
}

// Status reports whether the backend is running and whether its port
// is reachable. No side effects: a stale pid file is reported as not
// running but left in place for Stop to clean up.
func (s *Supervisor) Status() Status {
	var status Status
	if pid, alive := pidFileAlive(s.pidFilePath()); alive {
		status.Running = true
		status.PID = pid
	}
	status.PortReachable = netutil.ProbeTCP(s.backendAddr(), time.Second)
	return status
}

// Done returns a channel closed when a backend spawned by this process
// exits, or nil when this process has not spawned one. After the close,
// ExitCode reports how it went.
func (s *Supervisor) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// ExitCode returns the spawned backend's exit code. Meaningful only
// after the channel returned by Done has been closed.
func (s *Supervisor) ExitCode() int {
	return s.exitCode
}

// pidFileAlive reads a pid file and probes the process it names.
// Returns (0, false) when the file is missing or unparseable, and
// (pid, false) when the file names a dead process.
func pidFileAlive(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return 0, false
	}
	// Signal 0 checks liveness without sending a real signal; ESRCH
	// means the process does not exist.
	if err := process.Signal(syscall.Signal(0)); err != nil {
		return pid, false
	}
	return pid, true
}

// waitForPort polls addr until a TCP connect succeeds. Returns an
// error if ctx is cancelled, the process exits first, or the timeout
// is reached.
func waitForPort(ctx context.Context, addr string, processDone <-chan struct{}, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-processDone:
			return fmt.Errorf("backend exited before %s accepted connections", addr)
		case <-ticker.C:
			if netutil.ProbeTCP(addr, time.Second) {
				return nil
			}
			if time.Now().After(deadline) {
				return fmt.Errorf("timed out after %v waiting for %s to accept connections", timeout, addr)
			}
		}
	}
}
