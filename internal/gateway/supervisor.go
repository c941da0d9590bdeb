package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/nerrad567/sadp-fleet/internal/infrastructure/config"
)

// State is the lifecycle state of the supervised gateway.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateFailed   State = "failed"
)

const (
	defaultRestartDelay    = 5 * time.Second
	defaultGracefulTimeout = 10 * time.Second
	defaultHealthInterval  = 30 * time.Second

	// maxRestartDelay caps the exponential restart backoff.
	maxRestartDelay = 5 * time.Minute

	// stableAfter is how long a process must run before its restart
	// counter is reset.
	stableAfter = 2 * time.Minute

	// maxHealthFailures consecutive failed checks kill the process.
	maxHealthFailures = 3

	healthCheckTimeout = 5 * time.Second
)

// ErrExited is returned by Run when the gateway exited and will not be
// restarted, either because restarts are disabled or the budget is spent.
var ErrExited = errors.New("gateway: process exited")

// Logger defines the logging interface for the supervisor.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// HealthChecker probes the running gateway. sadp.GatewayClient satisfies it:
// the gateway is healthy while it reports itself online over MQTT.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Option customises a Supervisor.
type Option func(*Supervisor)

// WithHealthCheck enables the watchdog. The process is killed and restarted
// after three consecutive failed checks.
func WithHealthCheck(hc HealthChecker) Option {
	return func(s *Supervisor) { s.health = hc }
}

// WithEnv adds environment variables (key=value) on top of the inherited
// environment.
func WithEnv(env ...string) Option {
	return func(s *Supervisor) { s.env = append(s.env, env...) }
}

// Supervisor runs the vendor SDK gateway binary as a child process and
// keeps it alive.
type Supervisor struct {
	cfg    config.GatewayProcessConfig
	name   string
	env    []string
	health HealthChecker
	logger Logger

	stableAfter time.Duration

	mu           sync.RWMutex
	cmd          *exec.Cmd
	state        State
	restartCount int
	lastError    error
	startTime    time.Time
	cancel       context.CancelFunc
	done         chan struct{}
}

// New creates a supervisor for cfg. Zero durations fall back to defaults.
func New(cfg config.GatewayProcessConfig, opts ...Option) *Supervisor {
	if cfg.RestartDelay <= 0 {
		cfg.RestartDelay = defaultRestartDelay
	}
	if cfg.GracefulTimeout <= 0 {
		cfg.GracefulTimeout = defaultGracefulTimeout
	}
	if cfg.HealthCheckInterval <= 0 {
		cfg.HealthCheckInterval = defaultHealthInterval
	}

	s := &Supervisor{
		cfg:         cfg,
		name:        filepath.Base(cfg.Binary),
		logger:      noopLogger{},
		state:       StateStopped,
		stableAfter: stableAfter,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetLogger sets the logger for the supervisor.
func (s *Supervisor) SetLogger(logger Logger) {
	s.logger = logger
}

// Run starts the gateway and blocks until ctx is cancelled, then stops it.
// It returns early, wrapping ErrExited, if the process cannot be kept
// running.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}

	s.mu.RLock()
	done := s.done
	s.mu.RUnlock()

	select {
	case <-ctx.Done():
		return s.Stop()
	case <-done:
		if err := s.LastError(); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrExited, s.name, err)
		}
		return nil
	}
}

// Start launches the gateway and begins monitoring it. It returns an error
// if the first launch fails; later failures are retried in the background.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.supervising() {
		s.mu.Unlock()
		return fmt.Errorf("gateway %s is already running", s.name)
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.state = StateStarting
	s.restartCount = 0
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	if err := s.launch(); err != nil {
		cancel()
		s.mu.Lock()
		s.state = StateFailed
		s.lastError = err
		close(s.done)
		s.mu.Unlock()
		return err
	}

	go s.monitor(runCtx)
	return nil
}

// supervising reports whether a monitor goroutine is still active.
// Callers hold s.mu.
func (s *Supervisor) supervising() bool {
	if s.done == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

func (s *Supervisor) launch() error {
	s.logger.Info("starting gateway", "name", s.name, "binary", s.cfg.Binary, "args", s.cfg.Args)

	cmd := exec.Command(s.cfg.Binary, s.cfg.Args...) //nolint:gosec // binary comes from operator config

	// Own process group so shutdown signals reach any children.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if len(s.env) > 0 {
		cmd.Env = append(os.Environ(), s.env...)
	}
	cmd.Stdout = &lineLogger{logger: s.logger, name: s.name, stream: "stdout"}
	cmd.Stderr = &lineLogger{logger: s.logger, name: s.name, stream: "stderr"}
	// Grandchildren holding the output pipes must not block Wait forever.
	cmd.WaitDelay = s.cfg.GracefulTimeout

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", s.name, err)
	}

	s.mu.Lock()
	s.cmd = cmd
	s.state = StateRunning
	s.startTime = time.Now()
	s.mu.Unlock()

	s.logger.Info("gateway started", "name", s.name, "pid", cmd.Process.Pid)
	return nil
}

// wait blocks until the process exits, the watchdog kills it, or ctx is
// cancelled. On cancellation the process is terminated and stopped is true.
func (s *Supervisor) wait(ctx context.Context, cmd *exec.Cmd) (stopped bool, err error) {
	exitCh := make(chan error, 1)
	go func() { exitCh <- cmd.Wait() }()

	var tick <-chan time.Time
	if s.health != nil {
		ticker := time.NewTicker(s.cfg.HealthCheckInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	failures := 0
	for {
		select {
		case err := <-exitCh:
			return false, err

		case <-ctx.Done():
			s.terminate(cmd, exitCh)
			return true, nil

		case <-tick:
			checkCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
			err := s.health.HealthCheck(checkCtx)
			cancel()

			if err == nil {
				if failures > 0 {
					s.logger.Info("gateway health recovered", "name", s.name, "previous_failures", failures)
				}
				failures = 0
				continue
			}

			failures++
			s.logger.Warn("gateway health check failed", "name", s.name, "error", err, "consecutive_failures", failures)
			if failures < maxHealthFailures {
				continue
			}

			s.logger.Error("gateway unhealthy, killing process", "name", s.name, "failures", failures)
			signalGroup(cmd, syscall.SIGKILL)
			exitErr := <-exitCh
			if exitErr == nil {
				exitErr = errors.New("process exited")
			}
			return false, fmt.Errorf("killed after %d failed health checks: %w", failures, exitErr)
		}
	}
}

// terminate sends SIGTERM to the process group, then SIGKILL after the
// graceful timeout.
func (s *Supervisor) terminate(cmd *exec.Cmd, exitCh <-chan error) {
	s.logger.Info("stopping gateway", "name", s.name, "pid", cmd.Process.Pid)
	signalGroup(cmd, syscall.SIGTERM)

	select {
	case <-exitCh:
		s.logger.Info("gateway stopped gracefully", "name", s.name)
		return
	case <-time.After(s.cfg.GracefulTimeout):
		s.logger.Warn("graceful shutdown timeout, sending SIGKILL", "name", s.name, "timeout", s.cfg.GracefulTimeout)
	}

	signalGroup(cmd, syscall.SIGKILL)
	<-exitCh
	s.logger.Info("gateway killed", "name", s.name)
}

func signalGroup(cmd *exec.Cmd, sig syscall.Signal) {
	// Negative PID addresses the whole process group.
	if err := syscall.Kill(-cmd.Process.Pid, sig); err != nil && !errors.Is(err, syscall.ESRCH) {
		cmd.Process.Signal(sig) //nolint:errcheck // best effort fallback
	}
}

func (s *Supervisor) monitor(ctx context.Context) {
	defer close(s.done)

	for {
		s.mu.RLock()
		cmd, started := s.cmd, s.startTime
		s.mu.RUnlock()

		stopped, err := s.wait(ctx, cmd)
		if stopped {
			s.setStopped()
			return
		}
		if err == nil {
			err = errors.New("exited with status 0")
		}
		ranFor := time.Since(started)
		s.logger.Warn("gateway exited unexpectedly", "name", s.name, "error", err, "ran_for", ranFor)

		// Retry until a launch succeeds, the budget is spent or ctx ends.
		for {
			attempt, ok := s.recordFailure(err, ranFor)
			if !ok {
				return
			}

			delay := s.restartDelay(attempt)
			s.logger.Info("restarting gateway", "name", s.name, "attempt", attempt, "delay", delay)
			select {
			case <-ctx.Done():
				s.setStopped()
				return
			case <-time.After(delay):
			}

			s.mu.Lock()
			s.restartCount = attempt
			s.mu.Unlock()

			if err = s.launch(); err == nil {
				break
			}
			s.logger.Error("failed to restart gateway", "name", s.name, "error", err)
			ranFor = 0
		}
	}
}

// recordFailure marks the process failed and returns the next restart
// attempt number, or false when no restart should follow.
func (s *Supervisor) recordFailure(err error, ranFor time.Duration) (int, bool) {
	s.mu.Lock()
	if ranFor >= s.stableAfter {
		s.restartCount = 0
	}
	s.lastError = err
	s.state = StateFailed
	attempt := s.restartCount + 1
	s.mu.Unlock()

	if !s.cfg.RestartOnFailure {
		s.logger.Info("restart disabled, not restarting", "name", s.name)
		return 0, false
	}
	if s.cfg.MaxRestartAttempts > 0 && attempt > s.cfg.MaxRestartAttempts {
		s.logger.Error("max restart attempts reached", "name", s.name, "attempts", s.cfg.MaxRestartAttempts)
		return 0, false
	}
	return attempt, true
}

func (s *Supervisor) setStopped() {
	s.mu.Lock()
	s.state = StateStopped
	s.mu.Unlock()
	s.logger.Info("gateway stopped as requested", "name", s.name)
}

// restartDelay doubles the configured delay per attempt up to
// maxRestartDelay.
func (s *Supervisor) restartDelay(attempt int) time.Duration {
	delay := s.cfg.RestartDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxRestartDelay {
			return maxRestartDelay
		}
	}
	return delay
}

// Stop terminates the gateway and waits for the monitor to exit. It is a
// no-op if the supervisor was never started.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	if s.done == nil || s.cancel == nil {
		s.mu.Unlock()
		return nil
	}
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
	return nil
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// IsRunning reports whether the gateway process is up.
func (s *Supervisor) IsRunning() bool {
	return s.State() == StateRunning
}

// LastError returns the error from the most recent unexpected exit.
func (s *Supervisor) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError
}

// RestartCount returns the number of restarts since the last stable run.
func (s *Supervisor) RestartCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.restartCount
}

// PID returns the current process ID, or 0 if not running.
func (s *Supervisor) PID() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state == StateRunning && s.cmd != nil && s.cmd.Process != nil {
		return s.cmd.Process.Pid
	}
	return 0
}

// HealthCheck reports an error unless the gateway process is running, so
// the supervisor can be listed among the API health checks.
func (s *Supervisor) HealthCheck(_ context.Context) error {
	if st := s.State(); st != StateRunning {
		return fmt.Errorf("gateway process %s", st)
	}
	return nil
}

// Stats describes the supervised process.
type Stats struct {
	Name         string        `json:"name"`
	State        State         `json:"state"`
	PID          int           `json:"pid,omitempty"`
	Uptime       time.Duration `json:"uptime,omitempty"`
	RestartCount int           `json:"restart_count"`
	LastError    string        `json:"last_error,omitempty"`
}

// Stats returns a snapshot of the supervisor state.
func (s *Supervisor) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{
		Name:         s.name,
		State:        s.state,
		RestartCount: s.restartCount,
	}
	if s.state == StateRunning {
		if s.cmd != nil && s.cmd.Process != nil {
			stats.PID = s.cmd.Process.Pid
		}
		stats.Uptime = time.Since(s.startTime)
	}
	if s.lastError != nil {
		stats.LastError = s.lastError.Error()
	}
	return stats
}

// lineLogger forwards process output to the logger one line at a time.
// stderr lines are logged at Info, stdout at Debug.
type lineLogger struct {
	logger Logger
	name   string
	stream string
	buf    []byte
}

func (w *lineLogger) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.emit(w.buf[:i])
		w.buf = w.buf[i+1:]
	}
	// Flush overlong partial lines rather than growing without bound.
	if len(w.buf) > 4096 {
		w.emit(w.buf)
		w.buf = w.buf[:0]
	}
	return len(p), nil
}

func (w *lineLogger) emit(line []byte) {
	line = bytes.TrimRight(line, "\r")
	if len(line) == 0 {
		return
	}
	if w.stream == "stderr" {
		w.logger.Info("gateway output", "name", w.name, "stream", w.stream, "line", string(line))
		return
	}
	w.logger.Debug("gateway output", "name", w.name, "stream", w.stream, "line", string(line))
}
