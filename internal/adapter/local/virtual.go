// SPDX-License-Identifier: MPL-2.0

package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"

	"github.com/xec-sh/xec/internal/adapter"
	"github.com/xec-sh/xec/internal/command"
	"github.com/xec-sh/xec/internal/xerr"
)

// virtualShellSelector is the Shell.Path value (or XEC_SHELL fallback) that
// requests the embedded mvdan.cc/sh interpreter instead of a real shell
// binary: an environment with no real /bin/sh (minimal or distroless
// containers) still gets POSIX-ish script support.
const virtualShellSelector = "virtual"

// wantsVirtualShell reports whether opts requests the embedded interpreter:
// an explicit Shell.Path of "virtual", or, absent an explicit path,
// XEC_SHELL=virtual in the adapter's environment.
func wantsVirtualShell(opts command.Options, override string) bool {
	if !opts.Shell.Enabled {
		return false
	}
	if opts.Shell.Path != "" {
		return opts.Shell.Path == virtualShellSelector
	}
	if override != "" {
		return override == virtualShellSelector
	}
	return os.Getenv("XEC_SHELL") == virtualShellSelector
}

// runVirtual executes opts.Program as a POSIX-ish script through the
// embedded mvdan.cc/sh interpreter rather than spawning a real subprocess.
// It mirrors run()'s buffering-and-classification contract (capped output,
// SpawnFailed/Timeout/BufferOverflow/CommandFailed taxonomy) so callers
// cannot tell, from the Result alone, which path executed the command.
func runVirtual(ctx context.Context, name string, opts command.Options, stdin io.Reader) (*command.Result, error) {
	started := time.Now()
	finish := func(r *command.Result) *command.Result {
		r.StartedAt, r.FinishedAt = started, time.Now()
		r.Duration = r.FinishedAt.Sub(started)
		r.Adapter = name
		return r
	}

	script := opts.Program
	prog, err := syntax.NewParser().Parse(strings.NewReader(script), "")
	if err != nil {
		return finish(&command.Result{}), xerr.New(xerr.SpawnFailed, name, fmt.Errorf("virtual shell: parse: %w", err))
	}

	maxBuf := int64(opts.MaxBuffer)
	if maxBuf <= 0 {
		maxBuf = int64(command.DefaultMaxBuffer)
	}
	stdoutW := &cappedWriter{max: maxBuf}
	stderrW := &cappedWriter{max: maxBuf}

	if stdin == nil {
		stdin = strings.NewReader("")
	}

	env := os.Environ()
	for k, v := range opts.Env {
		env = append(env, k+"="+v)
	}

	runnerOpts := []interp.RunnerOption{
		interp.StdIO(stdin, stdoutW, stderrW),
		interp.Env(expand.ListEnviron(env...)),
	}
	if opts.Cwd != "" {
		runnerOpts = append(runnerOpts, interp.Dir(opts.Cwd.String()))
	}
	if len(opts.Args) > 0 {
		runnerOpts = append(runnerOpts, interp.Params(opts.Args...))
	}

	runner, err := interp.New(runnerOpts...)
	if err != nil {
		return finish(&command.Result{}), xerr.New(xerr.SpawnFailed, name, fmt.Errorf("virtual shell: %w", err))
	}

	runCtx := ctx
	if d := opts.Timeout.AsStd(); d > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	runErr := runner.Run(runCtx, prog)

	result := finish(&command.Result{
		Stdout: stdoutW.Bytes(),
		Stderr: stderrW.Bytes(),
	})

	if stdoutW.Overflowed() || stderrW.Overflowed() {
		return result, xerr.New(xerr.BufferOverflow, name, fmt.Errorf("virtual shell: output exceeded %d bytes", maxBuf))
	}

	var exitStatus interp.ExitStatus
	switch {
	case errors.As(runErr, &exitStatus):
		result.HasExit = true
		result.ExitCode = int(exitStatus)
	case runErr != nil:
		if runCtx.Err() == context.DeadlineExceeded {
			return result, xerr.New(xerr.Timeout, name, runErr)
		}
		return result, xerr.New(xerr.SpawnFailed, name, fmt.Errorf("virtual shell: %w", runErr))
	default:
		result.HasExit = true
		result.ExitCode = 0
	}

	if result.ExitCode != 0 && opts.ThrowOnNonZero && !opts.Nothrow {
		return result, xerr.New(xerr.CommandFailed, name, fmt.Errorf("exit status %d", result.ExitCode))
	}
	return result, nil
}

// streamVirtual is Stream's virtual-shell counterpart: it parses opts.Program
// once up front (so a syntax error surfaces synchronously, before the
// caller starts reading), then runs the interpreter in a goroutine writing
// to in-process pipes instead of the capped buffers runVirtual uses;
// output is either buffered or streamed, never both.
func (a *Adapter) streamVirtual(ctx context.Context, opts command.Options) (*adapter.StreamResult, error) {
	prog, err := syntax.NewParser().Parse(strings.NewReader(opts.Program), "")
	if err != nil {
		return nil, xerr.New(xerr.SpawnFailed, a.Name(), fmt.Errorf("virtual shell: parse: %w", err))
	}

	stdoutR, stdoutW := io.Pipe()
	stderrR, stderrW := io.Pipe()

	stdin := opts.Stdin
	if stdin == nil {
		stdin = strings.NewReader("")
	}

	env := os.Environ()
	for k, v := range opts.Env {
		env = append(env, k+"="+v)
	}

	runnerOpts := []interp.RunnerOption{
		interp.StdIO(stdin, stdoutW, stderrW),
		interp.Env(expand.ListEnviron(env...)),
	}
	if opts.Cwd != "" {
		runnerOpts = append(runnerOpts, interp.Dir(opts.Cwd.String()))
	}
	if len(opts.Args) > 0 {
		runnerOpts = append(runnerOpts, interp.Params(opts.Args...))
	}

	runner, err := interp.New(runnerOpts...)
	if err != nil {
		_ = stdoutW.Close()
		_ = stderrW.Close()
		return nil, xerr.New(xerr.SpawnFailed, a.Name(), fmt.Errorf("virtual shell: %w", err))
	}

	started := time.Now()
	doneCh := make(chan error, 1)
	runCtx, cancel := context.WithCancel(ctx)
	go func() {
		doneCh <- runner.Run(runCtx, prog)
		_ = stdoutW.Close()
		_ = stderrW.Close()
	}()

	wait := func(waitCtx context.Context) (*command.Result, error) {
		var runErr error
		select {
		case runErr = <-doneCh:
		case <-waitCtx.Done():
			cancel()
			runErr = <-doneCh
		}
		cancel()

		finished := time.Now()
		result := &command.Result{
			StartedAt:  started,
			FinishedAt: finished,
			Duration:   finished.Sub(started),
			Adapter:    a.Name(),
		}

		var exitStatus interp.ExitStatus
		switch {
		case errors.As(runErr, &exitStatus):
			result.HasExit = true
			result.ExitCode = int(exitStatus)
		case runErr != nil:
			if waitCtx.Err() == context.DeadlineExceeded {
				return result, xerr.New(xerr.Timeout, a.Name(), runErr)
			}
			return result, xerr.New(xerr.SpawnFailed, a.Name(), fmt.Errorf("virtual shell: %w", runErr))
		default:
			result.HasExit = true
			result.ExitCode = 0
		}

		if result.ExitCode != 0 && opts.ThrowOnNonZero && !opts.Nothrow {
			return result, xerr.New(xerr.CommandFailed, a.Name(), fmt.Errorf("exit status %d", result.ExitCode))
		}
		return result, nil
	}

	return &adapter.StreamResult{Stdout: stdoutR, Stderr: stderrR, Wait: wait}, nil
}
