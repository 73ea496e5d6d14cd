//go:build !windows

// SPDX-License-Identifier: MPL-2.0

package local

import (
	"os/exec"
	"syscall"
)

// exitSignal returns the terminating signal's name if the process was
// killed by a signal rather than exiting normally.
func exitSignal(err *exec.ExitError) string {
	status, ok := err.Sys().(syscall.WaitStatus)
	if !ok || !status.Signaled() {
		return ""
	}
	return status.Signal().String()
}

// setProcAttr places the child in its own process group so terminate/kill
// can signal the whole group, not just the direct child (a shell's own
// children would otherwise survive a SIGTERM to the shell alone).
func setProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// terminate sends SIGTERM to the process group.
func terminate(cmd *exec.Cmd) error {
	return syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
}

// forceKill sends SIGKILL to the process group.
func forceKill(cmd *exec.Cmd) error {
	return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
}
