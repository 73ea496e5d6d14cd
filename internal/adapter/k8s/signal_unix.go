//go:build !windows

// SPDX-License-Identifier: MPL-2.0

package k8s

import "syscall"

// processTerminateSignal is the signal sent to the kubectl child on
// cancellation/timeout, mirroring the local adapter's escalation ladder.
func processTerminateSignal() syscall.Signal { return syscall.SIGTERM }
