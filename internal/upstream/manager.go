// Package upstream supervises an optional local process the proxy fronts,
// started from the proxy's own configuration.
package upstream

import (
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/wso2/open-oauth2-introspect-proxy/internal/config"
	logger "github.com/wso2/open-oauth2-introspect-proxy/internal/logging"
)

// Manager handles starting and graceful shutdown of the upstream process
type Manager struct {
	mu            sync.Mutex
	process       *os.Process
	processGroup  int
	cmd           *exec.Cmd
	shutdownDelay time.Duration
}

// NewManager creates a new upstream process manager
func NewManager() *Manager {
	return &Manager{
		shutdownDelay: 5 * time.Second,
	}
}

// SetShutdownDelay sets the maximum time to wait for graceful shutdown
func (m *Manager) SetShutdownDelay(duration time.Duration) {
	m.shutdownDelay = duration
}

// Start launches the configured upstream command, if any.
func (m *Manager) Start(cfg config.UpstreamConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// If a process is already running, return an error
	if m.process != nil {
		return os.ErrExist
	}

	if cfg.Command == "" {
		return nil // Nothing to start
	}

	logger.Info("Starting upstream process: %s", strings.Join(append([]string{cfg.Command}, cfg.Args...), " "))

	cmd := exec.Command(cfg.Command, cfg.Args...)
	if cfg.WorkDir != "" {
		cmd.Dir = cfg.WorkDir
	}
	if len(cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), cfg.Env...)
	}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	// Set platform-specific process attributes
	setProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		return err
	}

	m.process = cmd.Process
	m.cmd = cmd
	logger.Info("Upstream process started with PID: %d", m.process.Pid)

	// Get and store the process group ID (Unix) or PID (Windows)
	pgid, err := getProcessGroup(m.process.Pid)
	if err != nil {
		logger.Warn("Failed to get process group ID: %v", err)
		pgid = m.process.Pid
	}
	m.processGroup = pgid

	// Reap the process in the background
	go func() {
		if err := cmd.Wait(); err != nil {
			logger.Error("Upstream process exited with error: %v", err)
		} else {
			logger.Info("Upstream process exited")
		}

		m.mu.Lock()
		m.process = nil
		m.cmd = nil
		m.mu.Unlock()
	}()

	return nil
}

// IsRunning checks if the upstream process is running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.process != nil
}

// Shutdown terminates the upstream process, gracefully first and by force
// once the shutdown delay has passed.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	process := m.process
	group := m.processGroup
	m.mu.Unlock()

	if process == nil {
		return // No process to terminate
	}

	logger.Info("Terminating upstream process...")
	finished := make(chan struct{})

	go func() {
		defer close(finished)

		m.signal(group, syscall.SIGTERM)
		if m.waitForExit(2 * time.Second) {
			logger.Info("Upstream process terminated gracefully")
			return
		}

		logger.Warn("Upstream process didn't exit gracefully, forcing termination...")
		m.signal(group, syscall.SIGKILL)
		if m.waitForExit(500 * time.Millisecond) {
			logger.Info("Upstream process terminated by force")
			return
		}
		logger.Warn("Failed to terminate upstream process")
	}()

	// Wait for termination with timeout
	select {
	case <-finished:
	case <-time.After(m.shutdownDelay):
		logger.Warn("Upstream process termination timed out")
	}
}

// signal delivers sig to the whole process group when possible, falling
// back to the process itself.
func (m *Manager) signal(group int, sig syscall.Signal) {
	if group != 0 && runtime.GOOS != "windows" {
		err := killProcessGroup(group, sig)
		if err == nil {
			return
		}
		logger.Warn("Failed to signal process group: %v", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.process != nil {
		if err := m.process.Signal(sig); err != nil {
			logger.Warn("Failed to signal process: %v", err)
		}
	}
}

// waitForExit polls until the reaper clears the process, for at most d.
func (m *Manager) waitForExit(d time.Duration) bool {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		time.Sleep(200 * time.Millisecond)
		m.mu.Lock()
		running := m.process != nil
		m.mu.Unlock()
		if !running {
			return true
		}
	}
	return false
}
