// SPDX-License-Identifier: MPL-2.0

// Package local implements the local-substrate Adapter: direct subprocess
// execution via os/exec, with shell or argv dispatch, a capped in-memory
// output buffer, and SIGTERM-then-SIGKILL timeout escalation.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xec-sh/xec/internal/adapter"
	"github.com/xec-sh/xec/internal/command"
	"github.com/xec-sh/xec/internal/process"
	"github.com/xec-sh/xec/internal/shellquote"
	"github.com/xec-sh/xec/internal/xerr"
	"github.com/xec-sh/xec/pkg/platform"
)

// killGrace is the interval between a SIGTERM escalation and the follow-up
// SIGKILL.
const killGrace = 5 * time.Second

// Adapter is the local substrate: it spawns real OS subprocesses on the
// machine the engine itself runs on.
type Adapter struct {
	// ShellOverride forces a specific shell binary instead of platform
	// auto-detection; empty uses resolveShell's default ladder.
	ShellOverride string
}

// New returns a ready local Adapter.
func New() *Adapter { return &Adapter{} }

// Name implements adapter.Adapter.
func (a *Adapter) Name() string { return "local" }

// Execute implements adapter.Adapter: it returns a lazy process.Handle that,
// once awaited, spawns the subprocess and buffers its output.
func (a *Adapter) Execute(ctx context.Context, opts command.Options) (*process.Handle, error) {
	runner := func(runCtx context.Context, stdin io.Reader) (*command.Result, error) {
		return a.run(runCtx, opts, stdin)
	}
	return process.New(ctx, a.Name(), opts, runner), nil
}

// Stream implements adapter.Adapter: it starts the subprocess immediately
// and exposes its stdout/stderr as live pipes instead of buffering them,
// for log-follow and other long-running commands.
func (a *Adapter) Stream(ctx context.Context, opts command.Options) (*adapter.StreamResult, error) {
	if wantsVirtualShell(opts, a.ShellOverride) {
		return a.streamVirtual(ctx, opts)
	}

	cmd, err := a.buildCmd(ctx, opts)
	if err != nil {
		return nil, xerr.New(xerr.SpawnFailed, a.Name(), err)
	}
	if opts.Stdin != nil {
		cmd.Stdin = opts.Stdin
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, xerr.New(xerr.SpawnFailed, a.Name(), err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, xerr.New(xerr.SpawnFailed, a.Name(), err)
	}
	setProcAttr(cmd)

	started := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, xerr.New(xerr.SpawnFailed, a.Name(), err)
	}

	wait := func(waitCtx context.Context) (*command.Result, error) {
		doneCh := make(chan error, 1)
		go func() { doneCh <- cmd.Wait() }()

		var waitErr error
		select {
		case waitErr = <-doneCh:
		case <-waitCtx.Done():
			_ = terminate(cmd)
			select {
			case waitErr = <-doneCh:
			case <-time.After(killGrace):
				_ = forceKill(cmd)
				waitErr = <-doneCh
			}
		}

		finished := time.Now()
		result := &command.Result{
			StartedAt:  started,
			FinishedAt: finished,
			Duration:   finished.Sub(started),
			Adapter:    a.Name(),
		}
		return classifyExit(result, waitErr)
	}

	return &adapter.StreamResult{Stdout: stdout, Stderr: stderr, Wait: wait}, nil
}

// CopyIn implements adapter.Adapter for the local substrate as a plain
// filesystem copy: both "local" and "remote" are the same machine.
func (a *Adapter) CopyIn(ctx context.Context, localSrc, remoteDst string, progress adapter.ProgressFunc) error {
	return copyFile(localSrc, remoteDst, progress)
}

// CopyOut mirrors CopyIn for the local substrate.
func (a *Adapter) CopyOut(ctx context.Context, remoteSrc, localDst string, progress adapter.ProgressFunc) error {
	return copyFile(remoteSrc, localDst, progress)
}

// Dispose implements adapter.Adapter. The local adapter owns no pooled
// resources (no connections, no sessions), so dispose always succeeds.
func (a *Adapter) Dispose(ctx context.Context) (*adapter.DisposeReport, error) {
	return &adapter.DisposeReport{Complete: true}, nil
}

func copyFile(src, dst string, progress adapter.ProgressFunc) error {
	if runtime.GOOS == platform.Windows && platform.IsWindowsReservedName(filepath.Base(dst)) {
		return xerr.Newf(xerr.CommandFailed, "local", "destination %q is a Windows reserved name", dst)
	}

	in, err := os.Open(src)
	if err != nil {
		return xerr.New(xerr.CommandFailed, "local", err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return xerr.New(xerr.CommandFailed, "local", err)
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return xerr.New(xerr.CommandFailed, "local", err)
	}
	defer out.Close()

	var written int64
	buf := make([]byte, 32*1024)
	for {
		n, readErr := in.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				return xerr.New(xerr.CommandFailed, "local", werr)
			}
			written += int64(n)
			if progress != nil {
				progress(written, info.Size())
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return xerr.New(xerr.CommandFailed, "local", readErr)
		}
	}
}

// buildCmd assembles an *exec.Cmd from opts without starting it,
// dispatching to shell or direct-argv form.
func (a *Adapter) buildCmd(ctx context.Context, opts command.Options) (*exec.Cmd, error) {
	var cmd *exec.Cmd

	if opts.Shell.Enabled {
		shellOverride := opts.Shell.Path
		if shellOverride == "" {
			shellOverride = a.ShellOverride
		}
		shell, err := resolveShell(shellOverride)
		if err != nil {
			return nil, err
		}
		if shellBaseName(shell) != "cmd" && shellBaseName(shell) != "powershell" && shellBaseName(shell) != "pwsh" {
			if err := shellquote.ValidatePOSIX(opts.Program); err != nil {
				return nil, err
			}
		}
		args := shellInvokeArgs(shell)
		args = append(args, opts.Program)
		args = appendPositionalArgs(shell, args, opts.Args)
		cmd = exec.CommandContext(ctx, shell, args...)
	} else {
		spawnCmd := opts.Program
		spawnArgs := opts.Args
		if hostCmd, hostArgs := platform.SpawnPrefix(); hostCmd != "" {
			spawnArgs = append(append(hostArgs, spawnCmd), spawnArgs...)
			spawnCmd = hostCmd
		}
		cmd = exec.CommandContext(ctx, spawnCmd, spawnArgs...)
	}

	if opts.Cwd != "" {
		cmd.Dir = opts.Cwd.String()
	}
	if len(opts.Env) > 0 {
		cmd.Env = mergeEnv(os.Environ(), opts.Env)
	}

	return cmd, nil
}

func mergeEnv(base []string, overrides map[string]string) []string {
	merged := append([]string(nil), base...)
	for k, v := range overrides {
		merged = append(merged, fmt.Sprintf("%s=%s", k, v))
	}
	return merged
}

// run is the process.Runner driving one local execution: spawn, capture
// output under the buffer cap, and escalate on timeout or cancellation.
func (a *Adapter) run(ctx context.Context, opts command.Options, stdin io.Reader) (*command.Result, error) {
	if wantsVirtualShell(opts, a.ShellOverride) {
		return runVirtual(ctx, a.Name(), opts, stdin)
	}

	started := time.Now()

	cmd, err := a.buildCmd(ctx, opts)
	if err != nil {
		return &command.Result{StartedAt: started, FinishedAt: time.Now(), Adapter: a.Name()},
			xerr.New(xerr.SpawnFailed, a.Name(), err)
	}
	if stdin != nil {
		cmd.Stdin = stdin
	}
	setProcAttr(cmd)

	maxBuf := int64(opts.MaxBuffer)
	if maxBuf <= 0 {
		maxBuf = int64(command.DefaultMaxBuffer)
	}

	var killOnce sync.Once
	kill := func() {
		killOnce.Do(func() {
			if cmd.Process != nil {
				_ = terminate(cmd)
			}
		})
	}

	var overflowed atomic.Bool
	onOverflow := func() {
		overflowed.Store(true)
		kill()
	}
	stdoutW := &cappedWriter{max: maxBuf, onOverflow: onOverflow}
	stderrW := &cappedWriter{max: maxBuf, onOverflow: onOverflow}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	if err := cmd.Start(); err != nil {
		return &command.Result{StartedAt: started, FinishedAt: time.Now(), Adapter: a.Name()},
			xerr.New(xerr.SpawnFailed, a.Name(), err)
	}

	doneCh := make(chan struct{})
	var timedOut atomic.Bool

	if d := opts.Timeout.AsStd(); d > 0 {
		timer := time.AfterFunc(d, func() {
			timedOut.Store(true)
			kill()
			time.AfterFunc(killGrace, func() {
				select {
				case <-doneCh:
				default:
					_ = forceKill(cmd)
				}
			})
		})
		defer timer.Stop()
	}

	go func() {
		select {
		case <-ctx.Done():
			kill()
			select {
			case <-doneCh:
			case <-time.After(killGrace):
				_ = forceKill(cmd)
			}
		case <-doneCh:
		}
	}()

	waitErr := cmd.Wait()
	close(doneCh)
	finished := time.Now()

	result := &command.Result{
		Stdout:     stdoutW.Bytes(),
		Stderr:     stderrW.Bytes(),
		StartedAt:  started,
		FinishedAt: finished,
		Duration:   finished.Sub(started),
		Adapter:    a.Name(),
	}

	switch {
	case overflowed.Load():
		return result, xerr.New(xerr.BufferOverflow, a.Name(), waitErr)
	case timedOut.Load():
		result.Signal = "SIGTERM"
		return result, xerr.New(xerr.Timeout, a.Name(), waitErr)
	case ctx.Err() != nil:
		return result, xerr.New(xerr.Cancelled, a.Name(), ctx.Err())
	}

	return classifyExit(result, waitErr)
}

// classifyExit fills in result's exit/signal fields from cmd.Wait's error
// and classifies a non-nil error into the xerr taxonomy.
func classifyExit(result *command.Result, waitErr error) (*command.Result, error) {
	if waitErr == nil {
		result.HasExit = true
		result.ExitCode = 0
		return result, nil
	}

	var exitErr *exec.ExitError
	if !errors.As(waitErr, &exitErr) {
		return result, xerr.New(xerr.SpawnFailed, result.Adapter, waitErr)
	}

	if signal := exitSignal(exitErr); signal != "" {
		result.HasExit = false
		result.Signal = signal
		return result, xerr.New(xerr.KilledBySignal, result.Adapter, waitErr)
	}

	result.HasExit = true
	result.ExitCode = exitErr.ExitCode()
	if result.ExitCode != 0 {
		return result, xerr.New(xerr.CommandFailed, result.Adapter, waitErr)
	}
	return result, nil
}

var _ adapter.Adapter = (*Adapter)(nil)
