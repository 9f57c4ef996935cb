//go:build windows

package upstream

import (
	"os/exec"
	"syscall"
)

// setProcAttr sets Windows-specific process attributes
func setProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}

// getProcessGroup returns the PID itself on Windows (no process groups)
func getProcessGroup(pid int) (int, error) {
	return pid, nil
}

// killProcessGroup is never used on Windows; the manager signals the
// process directly instead.
func killProcessGroup(pgid int, signal syscall.Signal) error {
	return nil
}
