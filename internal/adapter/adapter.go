// SPDX-License-Identifier: MPL-2.0

// Package adapter defines the substrate-abstracting contract. Every
// substrate (local, SSH, Docker, Kubernetes, remote-docker) implements
// Adapter; the engine depends only on this interface, never on a concrete
// substrate type.
package adapter

import (
	"context"
	"io"

	"github.com/xec-sh/xec/internal/command"
	"github.com/xec-sh/xec/internal/process"
)

// ProgressFunc reports incremental byte-transfer progress during Copy*.
type ProgressFunc func(transferred, total int64)

// StreamResult is the explicit streaming form: two lazy byte
// sequences plus a future for the terminal Result, used for long-running
// or log-follow commands that must not buffer.
type StreamResult struct {
	Stdout io.ReadCloser
	Stderr io.ReadCloser
	Wait   func(ctx context.Context) (*command.Result, error)
}

// DisposeReport is returned by Dispose on partial failure: the set of
// resources that could not be released.
type DisposeReport struct {
	Complete      bool
	RemainingLive []string
	Errors        []error
}

// Adapter is the contract every substrate must satisfy. Implementations
// must be safe for concurrent use by multiple callers.
type Adapter interface {
	// Name identifies the adapter for logging and Result.Adapter tagging.
	Name() string

	// Execute starts or prepares execution (eager or lazy per adapter) and
	// returns a process handle.
	Execute(ctx context.Context, opts command.Options) (*process.Handle, error)

	// Stream is the explicit streaming form used for long-running or
	// log-follow commands.
	Stream(ctx context.Context, opts command.Options) (*StreamResult, error)

	// CopyIn transfers a local path to a substrate-relative destination.
	CopyIn(ctx context.Context, localSrc, remoteDst string, progress ProgressFunc) error

	// CopyOut transfers a substrate-relative source to a local path.
	CopyOut(ctx context.Context, remoteSrc, localDst string, progress ProgressFunc) error

	// Dispose releases all owned resources. The Docker adapter returns
	// AlreadyDisposed on a second call; the local, SSH, Kubernetes and
	// remote-docker adapters return a complete report on every call.
	Dispose(ctx context.Context) (*DisposeReport, error)
}
