// SPDX-License-Identifier: MPL-2.0

// Package xerr defines the engine's stable error-kind taxonomy. Every
// adapter classifies the substrate-native error it receives into one of
// these kinds so the process handle's retry policy and the CLI's exit-code
// mapping never need to know which substrate produced the failure.
package xerr

import (
	"errors"
	"fmt"
)

// Kind is a stable identifier for a class of execution failure. Kinds are
// part of the public contract: callers match on Kind, never on the
// underlying Cause's concrete type.
type Kind string

// The full error-kind taxonomy.
const (
	CommandFailed          Kind = "CommandFailed"
	Timeout                Kind = "Timeout"
	Cancelled              Kind = "Cancelled"
	SpawnFailed            Kind = "SpawnFailed"
	ConnectFailed          Kind = "ConnectFailed"
	AuthFailed             Kind = "AuthFailed"
	HostKeyMismatch        Kind = "HostKeyMismatch"
	PoolAcquisitionTimeout Kind = "PoolAcquisitionTimeout"
	ChannelOpenFailed      Kind = "ChannelOpenFailed"
	SftpError              Kind = "SftpError"
	TunnelError            Kind = "TunnelError"
	ContainerNotFound      Kind = "ContainerNotFound"
	PodNotFound            Kind = "PodNotFound"
	HealthCheckTimeout     Kind = "HealthCheckTimeout"
	TargetNotFound         Kind = "TargetNotFound"
	ProfileCycle           Kind = "ProfileCycle"
	BufferOverflow         Kind = "BufferOverflow"
	KilledBySignal         Kind = "KilledBySignal"
	PipelineAborted        Kind = "PipelineAborted"
	AlreadyDisposed        Kind = "AlreadyDisposed"
	TunnelClosed           Kind = "TunnelClosed"
	UnsupportedValue       Kind = "UnsupportedValue"
	KubectlNotFound        Kind = "KubectlNotFound"
	ContextNotFound        Kind = "ContextNotFound"
	PortForwardExited      Kind = "PortForwardExited"
	DaemonUnreachable      Kind = "DaemonUnreachable"
	ImagePullFailed        Kind = "ImagePullFailed"
	ExecFailed             Kind = "ExecFailed"

	// The kinds below are implementation-level additions for the CLI
	// dispatcher and task runner; the kinds above cover adapter and pool
	// failures.
	TaskCycle               Kind = "TaskCycle"
	UnknownTask             Kind = "UnknownTask"
	UnknownCommand          Kind = "UnknownCommand"
	ParamRequired           Kind = "ParamRequired"
	ScriptRunnerUnavailable Kind = "ScriptRunnerUnavailable"
)

// retryableKinds is the default retry predicate: retry on CommandFailed,
// Timeout, and transient ConnectFailed/PoolAcquisitionTimeout/
// ChannelOpenFailed/DaemonUnreachable; never on auth or identity failures.
var retryableKinds = map[Kind]bool{
	CommandFailed:          true,
	Timeout:                true,
	ConnectFailed:          true,
	PoolAcquisitionTimeout: true,
	ChannelOpenFailed:      true,
	DaemonUnreachable:      true,
}

// ExecError is the engine's structured error: a stable Kind, the
// substrate-native Cause verbatim, and enough context to format the CLI's
// human summary and --json block.
type ExecError struct {
	Kind     Kind
	Message  string
	Cause    error
	Adapter  string // "local", "ssh", "docker", "k8s", "remote-docker"
	ExitCode int
	Signal   string
}

// Error implements the error interface.
func (e *ExecError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
	}
	return string(e.Kind)
}

// Unwrap exposes the substrate-native cause for errors.Is/errors.As.
func (e *ExecError) Unwrap() error { return e.Cause }

// New constructs an ExecError of the given kind wrapping cause.
func New(kind Kind, adapter string, cause error) *ExecError {
	return &ExecError{Kind: kind, Adapter: adapter, Cause: cause}
}

// Newf constructs an ExecError of the given kind with a formatted message
// and no underlying cause.
func Newf(kind Kind, adapter, format string, args ...any) *ExecError {
	return &ExecError{Kind: kind, Adapter: adapter, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the Kind from err if it is (or wraps) an *ExecError,
// returning ("", false) otherwise.
func KindOf(err error) (Kind, bool) {
	var ee *ExecError
	if errors.As(err, &ee) {
		return ee.Kind, true
	}
	return "", false
}

// IsRetryableByDefault reports whether the engine's default retry predicate
// retries errors of this kind.
func IsRetryableByDefault(kind Kind) bool {
	return retryableKinds[kind]
}
