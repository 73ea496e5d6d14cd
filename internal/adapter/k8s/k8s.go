// SPDX-License-Identifier: MPL-2.0

// Package k8s implements the Kubernetes-substrate Adapter: every
// operation is delegated to the system `kubectl` binary (exec, logs,
// port-forward, cp) rather than a client-go reimplementation, keeping the
// adapter a subprocess contract with the cluster.
package k8s

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xec-sh/xec/internal/adapter"
	"github.com/xec-sh/xec/internal/command"
	"github.com/xec-sh/xec/internal/process"
	"github.com/xec-sh/xec/internal/target"
	"github.com/xec-sh/xec/internal/xerr"
)

// killGrace mirrors the local adapter's SIGTERM-then-SIGKILL escalation
// window, reused here for the kubectl child process.
const killGrace = 5 * time.Second

// binaryName is the kubectl executable resolved via exec.LookPath at first
// use; overridable in tests.
var binaryName = "kubectl"

// Adapter is the Kubernetes substrate: every call shells out to kubectl
// against one pod.
type Adapter struct {
	spec target.K8sSpec
}

// New returns an Adapter bound to spec's pod/namespace/context.
func New(spec target.K8sSpec) *Adapter {
	return &Adapter{spec: spec}
}

// Name implements adapter.Adapter.
func (a *Adapter) Name() string { return "k8s" }

// commonArgs returns the -n/--context/--kubeconfig flags shared by every
// kubectl sub-command, derived from the pod spec.
func (a *Adapter) commonArgs() []string {
	var args []string
	if a.spec.Namespace != "" {
		args = append(args, "-n", a.spec.Namespace)
	}
	if a.spec.Context != "" {
		args = append(args, "--context", a.spec.Context)
	}
	if a.spec.Kubeconfig != "" {
		args = append(args, "--kubeconfig", a.spec.Kubeconfig)
	}
	return args
}

func (a *Adapter) execArgs(opts command.Options) []string {
	args := append([]string{"exec"}, a.commonArgs()...)
	if a.spec.Container != "" {
		args = append(args, "-c", a.spec.Container)
	}
	if opts.Stdin != nil {
		args = append(args, "-i", "-t")
	}
	args = append(args, a.spec.Name, "--")
	if opts.Shell.Enabled {
		shell := opts.Shell.Path
		if shell == "" {
			shell = "/bin/sh"
		}
		args = append(args, shell, "-c", opts.Program)
	} else {
		args = append(args, opts.Program)
		args = append(args, opts.Args...)
	}
	return args
}

// Execute implements adapter.Adapter: a lazy handle wrapping one
// `kubectl exec` invocation.
func (a *Adapter) Execute(ctx context.Context, opts command.Options) (*process.Handle, error) {
	runner := func(runCtx context.Context, stdin io.Reader) (*command.Result, error) {
		return a.run(runCtx, opts, stdin)
	}
	return process.New(ctx, a.Name(), opts, runner), nil
}

// Stream implements adapter.Adapter for long-running/log-follow commands:
// kubectl is started immediately with its pipes exposed live.
func (a *Adapter) Stream(ctx context.Context, opts command.Options) (*adapter.StreamResult, error) {
	cmd := exec.CommandContext(ctx, binaryName, a.execArgs(opts)...)
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

	started := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, classifyStartErr(a.Name(), err)
	}

	wait := func(waitCtx context.Context) (*command.Result, error) {
		doneCh := make(chan error, 1)
		go func() { doneCh <- cmd.Wait() }()

		var waitErr error
		select {
		case waitErr = <-doneCh:
		case <-waitCtx.Done():
			_ = cmd.Process.Signal(processTerminateSignal())
			select {
			case waitErr = <-doneCh:
			case <-time.After(killGrace):
				_ = cmd.Process.Kill()
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

func (a *Adapter) run(ctx context.Context, opts command.Options, stdin io.Reader) (*command.Result, error) {
	started := time.Now()

	cmd := exec.CommandContext(ctx, binaryName, a.execArgs(opts)...)
	if stdin != nil {
		cmd.Stdin = stdin
	}

	maxBuf := int64(opts.MaxBuffer)
	if maxBuf <= 0 {
		maxBuf = int64(command.DefaultMaxBuffer)
	}

	var killOnce sync.Once
	kill := func() {
		killOnce.Do(func() {
			if cmd.Process != nil {
				_ = cmd.Process.Signal(processTerminateSignal())
			}
		})
	}

	var overflowed atomic.Bool
	stdoutW := &cappedBuffer{max: maxBuf, onOverflow: func() { overflowed.Store(true); kill() }}
	stderrW := &cappedBuffer{max: maxBuf, onOverflow: func() { overflowed.Store(true); kill() }}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	if err := cmd.Start(); err != nil {
		return &command.Result{StartedAt: started, FinishedAt: time.Now(), Adapter: a.Name()}, classifyStartErr(a.Name(), err)
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
					_ = cmd.Process.Kill()
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
				_ = cmd.Process.Kill()
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

// LogOptions configures a `kubectl logs` invocation.
type LogOptions struct {
	Follow bool
	Tail   int
	Since  time.Duration
}

// LogHandle streams one `kubectl logs` invocation's output to onLine until
// the process exits or Stop is called.
type LogHandle struct {
	cmd    *exec.Cmd
	doneCh chan struct{}
	err    error
}

// Logs implements the log stream: `kubectl logs [-c][-f][--tail][--since]`
// multiplexed line-by-line to onLine, with a Stop method that SIGTERMs the
// kubectl process.
func (a *Adapter) Logs(ctx context.Context, opts LogOptions, onLine func(line string)) (*LogHandle, error) {
	args := append([]string{"logs"}, a.commonArgs()...)
	if a.spec.Container != "" {
		args = append(args, "-c", a.spec.Container)
	}
	if opts.Follow {
		args = append(args, "-f")
	}
	if opts.Tail > 0 {
		args = append(args, "--tail", strconv.Itoa(opts.Tail))
	}
	if opts.Since > 0 {
		args = append(args, "--since", opts.Since.String())
	}
	args = append(args, a.spec.Name)

	cmd := exec.CommandContext(ctx, binaryName, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, xerr.New(xerr.SpawnFailed, a.Name(), err)
	}
	cmd.Stderr = &cappedBuffer{max: int64(command.DefaultMaxBuffer)}

	if err := cmd.Start(); err != nil {
		return nil, classifyStartErr(a.Name(), err)
	}

	h := &LogHandle{cmd: cmd, doneCh: make(chan struct{})}
	go func() {
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 64*1024), 1<<20)
		for scanner.Scan() {
			onLine(scanner.Text())
		}
		h.err = cmd.Wait()
		close(h.doneCh)
	}()

	return h, nil
}

// Stop sends SIGTERM to the kubectl logs process.
func (h *LogHandle) Stop() error {
	if h.cmd.Process == nil {
		return nil
	}
	return h.cmd.Process.Signal(processTerminateSignal())
}

// Wait blocks until the kubectl logs process exits.
func (h *LogHandle) Wait() error {
	<-h.doneCh
	return h.err
}

// PortForward owns one `kubectl port-forward` subprocess and the poll
// goroutine that detects its exit as a forward failure.
type PortForward struct {
	cmd       *exec.Cmd
	localPort int
	exited    chan error
}

// parseForwardedPort matches kubectl's "Forwarding from 127.0.0.1:<port> ->
// <remote>" stdout line, from which a dynamically assigned local port is
// parsed.
func parseForwardedPort(line string) (int, bool) {
	idx := strings.Index(line, "Forwarding from ")
	if idx < 0 {
		return 0, false
	}
	rest := line[idx+len("Forwarding from "):]
	colon := strings.LastIndex(strings.SplitN(rest, " ", 2)[0], ":")
	if colon < 0 {
		return 0, false
	}
	portStr := strings.SplitN(rest, " ", 2)[0][colon+1:]
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0, false
	}
	return port, true
}

// PortForward starts `kubectl port-forward [-n ns] <pod> [local]:remote`.
// A local port of 0 requests kubectl assign one dynamically; the assigned
// port is parsed from kubectl's stdout and returned once observed.
func (a *Adapter) PortForward(ctx context.Context, localPort, remotePort int) (*PortForward, error) {
	spec := fmt.Sprintf("%d:%d", localPort, remotePort)
	if localPort == 0 {
		spec = fmt.Sprintf(":%d", remotePort)
	}
	args := append([]string{"port-forward"}, a.commonArgs()...)
	args = append(args, a.spec.Name, spec)

	cmd := exec.CommandContext(ctx, binaryName, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, xerr.New(xerr.SpawnFailed, a.Name(), err)
	}
	cmd.Stderr = &cappedBuffer{max: int64(command.DefaultMaxBuffer)}

	if err := cmd.Start(); err != nil {
		return nil, classifyStartErr(a.Name(), err)
	}

	pf := &PortForward{cmd: cmd, localPort: localPort, exited: make(chan error, 1)}

	portCh := make(chan int, 1)
	go func() {
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			if port, ok := parseForwardedPort(scanner.Text()); ok {
				select {
				case portCh <- port:
				default:
				}
			}
		}
	}()

	go func() {
		pf.exited <- cmd.Wait()
	}()

	if localPort == 0 {
		select {
		case port := <-portCh:
			pf.localPort = port
		case err := <-pf.exited:
			return nil, xerr.New(xerr.PortForwardExited, a.Name(), err)
		case <-time.After(10 * time.Second):
			_ = cmd.Process.Kill()
			return nil, xerr.Newf(xerr.PortForwardExited, a.Name(), "timed out waiting for kubectl to report a local port")
		}
	}

	return pf, nil
}

// LocalPort returns the forward's local-side port.
func (pf *PortForward) LocalPort() int { return pf.localPort }

// Done returns a channel that fires with the kubectl process's exit error
// when the forward exits.
func (pf *PortForward) Done() <-chan error { return pf.exited }

// Close terminates the port-forward subprocess.
func (pf *PortForward) Close() error {
	if pf.cmd.Process == nil {
		return nil
	}
	return pf.cmd.Process.Signal(processTerminateSignal())
}

// CopyIn implements adapter.Adapter via `kubectl cp localSrc
// pod:remoteDst`. Progress is not reported: kubectl cp streams a
// tar archive and exposes no byte-granular progress hook.
func (a *Adapter) CopyIn(ctx context.Context, localSrc, remoteDst string, progress adapter.ProgressFunc) error {
	dest := a.spec.Name + ":" + remoteDst
	return a.cp(ctx, localSrc, dest)
}

// CopyOut implements adapter.Adapter via `kubectl cp pod:remoteSrc
// localDst`.
func (a *Adapter) CopyOut(ctx context.Context, remoteSrc, localDst string, progress adapter.ProgressFunc) error {
	src := a.spec.Name + ":" + remoteSrc
	return a.cp(ctx, src, localDst)
}

func (a *Adapter) cp(ctx context.Context, src, dst string) error {
	args := append([]string{"cp"}, a.commonArgs()...)
	if a.spec.Container != "" {
		args = append(args, "-c", a.spec.Container)
	}
	args = append(args, src, dst)

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, binaryName, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return xerr.Newf(xerr.ExecFailed, a.Name(), "kubectl cp %s -> %s: %v: %s", src, dst, err, stderr.String())
	}
	return nil
}

// Dispose implements adapter.Adapter. The k8s adapter owns no long-lived
// resources between calls (kubectl subprocesses are per-operation), so
// dispose always succeeds.
func (a *Adapter) Dispose(ctx context.Context) (*adapter.DisposeReport, error) {
	return &adapter.DisposeReport{Complete: true}, nil
}

func classifyStartErr(adapterName string, err error) error {
	var execErr *exec.Error
	if errors.As(err, &execErr) && errors.Is(execErr.Err, exec.ErrNotFound) {
		return xerr.New(xerr.KubectlNotFound, adapterName, err)
	}
	return xerr.New(xerr.SpawnFailed, adapterName, err)
}

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

	result.HasExit = true
	result.ExitCode = exitErr.ExitCode()
	if result.ExitCode != 0 {
		if kind, ok := classifyKubectlStderr(result.Stderr); ok {
			return result, xerr.New(kind, result.Adapter, waitErr)
		}
		return result, xerr.New(xerr.CommandFailed, result.Adapter, waitErr)
	}
	return result, nil
}

// classifyKubectlStderr recognizes the kubectl error messages that identify
// a permanently absent target, so a deleted pod or a bad context is never
// classified as a retryable CommandFailed. The patterns cover the message
// shapes kubectl has used across versions:
//
//	Error from server (NotFound): pods "web-0" not found
//	Error from server (BadRequest): container web not found in pod web-0
//	error: container web is not valid for pod web-0
//	error: no context exists with the name: "prod"
//	error: context "prod" does not exist
func classifyKubectlStderr(stderr []byte) (xerr.Kind, bool) {
	msg := string(stderr)
	switch {
	case strings.Contains(msg, `pods "`) && strings.Contains(msg, "not found"):
		return xerr.PodNotFound, true
	case strings.Contains(msg, "container") &&
		(strings.Contains(msg, "not found") || strings.Contains(msg, "is not valid for pod")):
		return xerr.ContainerNotFound, true
	case strings.Contains(msg, "no context exists"),
		strings.Contains(msg, "context") && strings.Contains(msg, "does not exist"):
		return xerr.ContextNotFound, true
	}
	return "", false
}

var _ adapter.Adapter = (*Adapter)(nil)
