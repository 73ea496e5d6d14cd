//go:build windows

// SPDX-License-Identifier: MPL-2.0

package k8s

import "os"

// processTerminateSignal falls back to os.Kill on Windows, which has no
// SIGTERM-equivalent graceful-stop signal for an arbitrary child process.
func processTerminateSignal() os.Signal { return os.Kill }
