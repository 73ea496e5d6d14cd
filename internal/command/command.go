// SPDX-License-Identifier: MPL-2.0

// Package command defines the engine's immutable Command and Result value
// types and the fluent Options cascade that builds Command values. Every
// adapter consumes exactly one Command per invocation and produces exactly
// one Result.
package command

import (
	"io"
	"time"

	"github.com/xec-sh/xec/internal/shellquote"
	"github.com/xec-sh/xec/pkg/types"
)

// ShellMode selects whether and how a Command is wrapped by a shell.
type ShellMode struct {
	// Enabled is false for direct argv execution, true for the default
	// shell, and (when Path is set) for an explicit shell binary.
	Enabled bool
	Path    string // explicit shell binary; empty means "the adapter's default"
}

// Command is an immutable description of one invocation. Builders never
// mutate a Command in place; every cascade method returns a new value.
type Command struct {
	// Program is either the argv[0] (direct form) or the full shell string
	// (when Shell.Enabled is true and Args is empty).
	Program string
	Args    []string
	Env     map[string]string
	Cwd     types.FilesystemPath

	Stdin io.Reader // nil means null-redirected

	Timeout        types.Duration
	Shell          ShellMode
	Encoding       string // default "utf-8"
	MaxBuffer      types.ByteSize
	ThrowOnNonZero bool

	// RawTemplate marks that Program was assembled via a raw (unescaped)
	// interpolation template; see shellquote.Raw.
	RawTemplate bool
}

// RetryPolicy configures exponential-backoff retry.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Factor       float64
	MaxDelay     time.Duration
	// Predicate overrides the default retry decision; nil uses
	// xerr.IsRetryableByDefault.
	Predicate func(err error) bool
}

// CachePolicy configures the optional result-memoization cache.
type CachePolicy struct {
	Key string
	TTL time.Duration
}

// Options is a partial Command plus engine-only fields that the process
// handle, not the adapter, interprets.
type Options struct {
	Command
	Retry   *RetryPolicy
	Cache   *CachePolicy
	Nothrow bool
	Quiet   bool
}

// Result is the outcome of one finished execution. A Result is always
// produced, even on failure; whether failure also raises an error depends
// on ThrowOnNonZero and Nothrow.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	HasExit  bool // false when Signal killed the process before it could exit
	Signal   string

	Duration   time.Duration
	StartedAt  time.Time
	FinishedAt time.Time

	Adapter string
	Cause   error
}

// Ok reports exitCode == 0 && signal == none. It is computed, never
// stored, so it can never drift from the
// fields it derives from.
func (r *Result) Ok() bool {
	return r.HasExit && r.ExitCode == 0 && r.Signal == ""
}

// StdoutString returns Stdout decoded as a string.
func (r *Result) StdoutString() string { return string(r.Stdout) }

// StderrString returns Stderr decoded as a string.
func (r *Result) StderrString() string { return string(r.Stderr) }

// DefaultMaxBuffer is the default output-buffer cap (10 MiB).
const DefaultMaxBuffer types.ByteSize = 10 << 20

// DefaultTimeout is the global default timeout applied when no per-command
// value is set; 0 disables.
const DefaultTimeout = 30 * time.Second

// New returns a Command with spec-mandated defaults: utf-8 encoding, a
// 10 MiB buffer cap, and throw-on-nonzero-exit enabled.
func New(program string, args ...string) Command {
	return Command{
		Program:        program,
		Args:           args,
		Encoding:       "utf-8",
		MaxBuffer:      DefaultMaxBuffer,
		ThrowOnNonZero: true,
		Timeout:        types.Duration(DefaultTimeout),
	}
}

// Render builds a Command whose Program is the POSIX-escaped render of a
// literal-fragment/value template, with Shell forced on since a
// rendered template is always a shell string, not an argv.
func Render(dialect shellquote.Dialect, fragments []string, values []any) (Command, error) {
	s, err := shellquote.Render(dialect, fragments, values)
	if err != nil {
		return Command{}, err
	}
	cmd := New(s)
	cmd.Shell = ShellMode{Enabled: true}
	cmd.RawTemplate = false
	return cmd, nil
}
