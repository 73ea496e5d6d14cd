//go:build windows

// SPDX-License-Identifier: MPL-2.0

package local

import "os/exec"

// setProcAttr is a no-op on Windows: there is no POSIX process-group
// equivalent wired up here, so terminate/forceKill act on the child directly.
func setProcAttr(cmd *exec.Cmd) {}

// terminate has no graceful-signal equivalent on Windows; escalate straight
// to forceKill.
func terminate(cmd *exec.Cmd) error {
	return forceKill(cmd)
}

// forceKill terminates the process.
func forceKill(cmd *exec.Cmd) error {
	return cmd.Process.Kill()
}

// exitSignal never reports a signal on Windows: there is no POSIX signal
// disposition to recover from exec.ExitError there.
func exitSignal(err *exec.ExitError) string { return "" }
