// SPDX-License-Identifier: MPL-2.0

// Package docker implements the Docker-substrate Adapter: exec into an
// existing container or run one ephemerally, container lifecycle, log
// streaming, and tar-encoded copy, plus thin `docker compose` wrappers,
// all through the Docker Engine API client.
package docker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/xec-sh/xec/internal/adapter"
	"github.com/xec-sh/xec/internal/command"
	"github.com/xec-sh/xec/internal/dockercli"
	"github.com/xec-sh/xec/internal/process"
	"github.com/xec-sh/xec/internal/target"
	"github.com/xec-sh/xec/internal/xerr"
)

// LogOptions configures the lazy log byte stream.
type LogOptions struct {
	Follow     bool
	Tail       int
	Timestamps bool
	Since      time.Time
}

// Adapter is the Docker substrate: one Adapter per target.DockerSpec,
// wrapping a single Engine API client.
type Adapter struct {
	cli  *client.Client
	spec target.DockerSpec

	composeBinary string // resolved "docker" path for compose sub-process wrapping
	disposed      bool

	// lastContainerID is set by runEphemeral so a subsequent CopyIn/CopyOut
	// against the same adapter targets the container it just ran.
	lastContainerID string
}

// New constructs a Docker adapter. When spec.Host is set, the client
// targets that daemon (DOCKER_HOST override) instead of the environment
// default; this is also how the remote-docker adapter reuses this package
// after tunneling the remote socket.
func New(spec target.DockerSpec) (*Adapter, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if spec.Host != "" {
		opts = append(opts, client.WithHost(spec.Host))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, xerr.New(xerr.DaemonUnreachable, "docker", err)
	}

	binary, err := exec.LookPath("docker")
	if err != nil {
		binary = "docker"
	}

	return &Adapter{cli: cli, spec: spec, composeBinary: binary}, nil
}

// Name implements adapter.Adapter.
func (a *Adapter) Name() string { return "docker" }

// Execute implements adapter.Adapter.
func (a *Adapter) Execute(ctx context.Context, opts command.Options) (*process.Handle, error) {
	runner := func(runCtx context.Context, stdin io.Reader) (*command.Result, error) {
		return a.run(runCtx, opts, stdin)
	}
	return process.New(ctx, a.Name(), opts, runner), nil
}

func (a *Adapter) run(ctx context.Context, opts command.Options, stdin io.Reader) (*command.Result, error) {
	started := time.Now()

	if a.spec.Container != "" {
		result, err := a.execInExisting(ctx, a.spec.Container, opts, stdin, nil, nil)
		result.StartedAt, result.FinishedAt = started, time.Now()
		result.Duration = result.FinishedAt.Sub(started)
		return result, err
	}
	return a.runEphemeral(ctx, opts, started)
}

// execInExisting runs opts inside an already-running container via
// exec-create/attach/inspect, demultiplexing the stream with stdcopy.
// liveStdout/liveStderr, when non-nil, also receive a live copy for Stream.
func (a *Adapter) execInExisting(ctx context.Context, containerID string, opts command.Options, stdin io.Reader, liveStdout, liveStderr io.Writer) (*command.Result, error) {
	argv := commandArgv(opts)

	execCfg := container.ExecOptions{
		Cmd:          argv,
		Env:          envSlice(opts.Env),
		WorkingDir:   opts.Cwd.String(),
		User:         a.spec.User,
		Tty:          a.spec.TTY,
		AttachStdin:  stdin != nil,
		AttachStdout: true,
		AttachStderr: true,
	}

	created, err := a.cli.ContainerExecCreate(ctx, containerID, execCfg)
	if err != nil {
		return &command.Result{Adapter: a.Name()}, classifyDaemonErr(err, "docker")
	}

	resp, err := a.cli.ContainerExecAttach(ctx, created.ID, container.ExecStartOptions{Tty: a.spec.TTY})
	if err != nil {
		return &command.Result{Adapter: a.Name()}, xerr.New(xerr.ExecFailed, "docker", err)
	}
	defer resp.Close()

	if stdin != nil {
		go func() { _, _ = io.Copy(resp.Conn, stdin); resp.CloseWrite() }()
	}

	var stdout, stderr bytes.Buffer
	outW := io.Writer(&stdout)
	errW := io.Writer(&stderr)
	if liveStdout != nil {
		outW = io.MultiWriter(&stdout, liveStdout)
	}
	if liveStderr != nil {
		errW = io.MultiWriter(&stderr, liveStderr)
	}

	if _, err := stdcopy.StdCopy(outW, errW, resp.Reader); err != nil {
		return &command.Result{Adapter: a.Name()}, xerr.New(xerr.ExecFailed, "docker", err)
	}

	inspect, err := a.cli.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return &command.Result{Adapter: a.Name()}, xerr.New(xerr.ExecFailed, "docker", err)
	}

	result := &command.Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		HasExit:  true,
		ExitCode: inspect.ExitCode,
		Adapter:  a.Name(),
	}
	if inspect.ExitCode != 0 {
		return result, xerr.New(xerr.CommandFailed, a.Name(), fmt.Errorf("exec exited %d", inspect.ExitCode))
	}
	return result, nil
}

// runEphemeral implements ephemeral mode: create, start, wait, and
// (if AutoRemove) remove a fresh container from spec.Image.
func (a *Adapter) runEphemeral(ctx context.Context, opts command.Options, started time.Time) (*command.Result, error) {
	cfg := &container.Config{
		Image:      a.spec.Image,
		Cmd:        commandArgv(opts),
		Env:        envSlice(opts.Env),
		WorkingDir: opts.Cwd.String(),
		User:       a.spec.User,
		Tty:        a.spec.TTY,
	}

	resp, err := a.cli.ContainerCreate(ctx, cfg, nil, nil, nil, "")
	if err != nil {
		if err := a.pullImage(ctx); err != nil {
			return &command.Result{Adapter: a.Name()}, err
		}
		resp, err = a.cli.ContainerCreate(ctx, cfg, nil, nil, nil, "")
		if err != nil {
			return &command.Result{Adapter: a.Name()}, xerr.New(xerr.ContainerNotFound, a.Name(), err)
		}
	}

	// The created container id is kept for observability and follow-up
	// copies.
	a.lastContainerID = resp.ID

	if a.spec.AutoRemove {
		defer func() { _ = a.cli.ContainerRemove(context.Background(), resp.ID, container.RemoveOptions{Force: true}) }()
	}

	if err := a.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return &command.Result{Adapter: a.Name()}, xerr.New(xerr.ExecFailed, a.Name(), err)
	}

	waitCh, errCh := a.cli.ContainerWait(ctx, resp.ID, container.WaitConditionNotRunning)
	var exitCode int
	select {
	case err := <-errCh:
		return &command.Result{Adapter: a.Name()}, xerr.New(xerr.ExecFailed, a.Name(), err)
	case w := <-waitCh:
		exitCode = int(w.StatusCode)
	}

	logs, err := a.cli.ContainerLogs(ctx, resp.ID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	var stdout, stderr bytes.Buffer
	if err == nil {
		defer logs.Close()
		_, _ = stdcopy.StdCopy(&stdout, &stderr, logs)
	}

	result := &command.Result{
		Stdout:     stdout.Bytes(),
		Stderr:     stderr.Bytes(),
		HasExit:    true,
		ExitCode:   exitCode,
		StartedAt:  started,
		FinishedAt: time.Now(),
		Adapter:    a.Name(),
	}
	if exitCode != 0 {
		return result, xerr.New(xerr.CommandFailed, a.Name(), fmt.Errorf("container exited %d", exitCode))
	}
	return result, nil
}

func (a *Adapter) pullImage(ctx context.Context) error {
	out, err := a.cli.ImagePull(ctx, a.spec.Image, dockerImagePullOptions())
	if err != nil {
		return xerr.New(xerr.ImagePullFailed, a.Name(), err)
	}
	defer out.Close()
	if _, err := io.Copy(io.Discard, out); err != nil {
		return xerr.New(xerr.ImagePullFailed, a.Name(), err)
	}
	return nil
}

// Stream implements adapter.Adapter: exec output from an existing container
// is demuxed live into the pipes as it is produced. An ephemeral (image) run
// writes nothing to the pipes; its output is only in the Result from Wait.
func (a *Adapter) Stream(ctx context.Context, opts command.Options) (*adapter.StreamResult, error) {
	stdoutR, stdoutW := io.Pipe()
	stderrR, stderrW := io.Pipe()

	resultCh := make(chan struct {
		res *command.Result
		err error
	}, 1)

	go func() {
		var res *command.Result
		var err error
		if a.spec.Container != "" {
			res, err = a.execInExisting(ctx, a.spec.Container, opts, opts.Stdin, stdoutW, stderrW)
		} else {
			res, err = a.runEphemeral(ctx, opts, time.Now())
		}
		stdoutW.Close()
		stderrW.Close()
		resultCh <- struct {
			res *command.Result
			err error
		}{res, err}
	}()

	wait := func(waitCtx context.Context) (*command.Result, error) {
		select {
		case r := <-resultCh:
			return r.res, r.err
		case <-waitCtx.Done():
			return &command.Result{Adapter: a.Name()}, waitCtx.Err()
		}
	}

	return &adapter.StreamResult{Stdout: stdoutR, Stderr: stderrR, Wait: wait}, nil
}

// CopyIn implements adapter.Adapter: localSrc is tarred in memory and sent
// via PUT /containers/{id}/archive. Single files are wrapped in a
// single-entry tar transparently.
func (a *Adapter) CopyIn(ctx context.Context, localSrc, remoteDst string, progress adapter.ProgressFunc) error {
	containerID, err := a.resolveContainerID(ctx)
	if err != nil {
		return err
	}

	buf, err := tarPath(localSrc, progress)
	if err != nil {
		return xerr.New(xerr.ExecFailed, a.Name(), err)
	}

	if err := a.cli.CopyToContainer(ctx, containerID, remoteDst, buf, container.CopyToContainerOptions{}); err != nil {
		return xerr.New(xerr.ExecFailed, a.Name(), err)
	}
	return nil
}

// CopyOut implements adapter.Adapter: reads the tar stream returned by
// GET /containers/{id}/archive and extracts it under localDst.
func (a *Adapter) CopyOut(ctx context.Context, remoteSrc, localDst string, progress adapter.ProgressFunc) error {
	containerID, err := a.resolveContainerID(ctx)
	if err != nil {
		return err
	}

	rc, _, err := a.cli.CopyFromContainer(ctx, containerID, remoteSrc)
	if err != nil {
		return xerr.New(xerr.ExecFailed, a.Name(), err)
	}
	defer rc.Close()

	return untar(rc, localDst, progress)
}

func (a *Adapter) resolveContainerID(ctx context.Context) (string, error) {
	if a.spec.Container != "" {
		return a.spec.Container, nil
	}
	if a.lastContainerID != "" {
		return a.lastContainerID, nil
	}
	return "", xerr.Newf(xerr.ContainerNotFound, a.Name(), "no container id: Execute an ephemeral command first or configure an existing container")
}

// Create, Start, Stop, Remove, Inspect, and WaitForHealthy implement
// the explicit container-lifecycle surface, usable independently of
// Execute (e.g. long-lived dev containers managed by `xec`).

// Create creates (but does not start) a container from cfg.
func (a *Adapter) Create(ctx context.Context, image string, cfg *container.Config, hostCfg *container.HostConfig) (string, error) {
	if cfg == nil {
		cfg = &container.Config{}
	}
	cfg.Image = image
	resp, err := a.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, "")
	if err != nil {
		return "", classifyDaemonErr(err, a.Name())
	}
	return resp.ID, nil
}

// Start starts a created container.
func (a *Adapter) Start(ctx context.Context, containerID string) error {
	if err := a.cli.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return classifyDaemonErr(err, a.Name())
	}
	return nil
}

// Stop stops a running container, giving it timeoutSec to exit cleanly.
func (a *Adapter) Stop(ctx context.Context, containerID string, timeoutSec int) error {
	timeout := timeoutSec
	if err := a.cli.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout}); err != nil {
		return classifyDaemonErr(err, a.Name())
	}
	return nil
}

// Remove removes a container, optionally forcing removal of a running one.
func (a *Adapter) Remove(ctx context.Context, containerID string, force bool) error {
	if err := a.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: force}); err != nil {
		return classifyDaemonErr(err, a.Name())
	}
	return nil
}

// Inspect returns the raw container inspect result.
func (a *Adapter) Inspect(ctx context.Context, containerID string) (container.InspectResponse, error) {
	resp, err := a.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		return resp, classifyDaemonErr(err, a.Name())
	}
	return resp, nil
}

// WaitForHealthy polls the health endpoint until the container reports
// "healthy" or timeout elapses.
func (a *Adapter) WaitForHealthy(ctx context.Context, containerID string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		inspect, err := a.cli.ContainerInspect(ctx, containerID)
		if err != nil {
			return classifyDaemonErr(err, a.Name())
		}
		if inspect.State != nil && inspect.State.Health != nil && inspect.State.Health.Status == "healthy" {
			return nil
		}
		if time.Now().After(deadline) {
			return xerr.New(xerr.HealthCheckTimeout, a.Name(), fmt.Errorf("container %s did not become healthy within %s", containerID, timeout))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Logs returns the lazy, restartable (reopen to restart, not seekable)
// log byte sequence.
func (a *Adapter) Logs(ctx context.Context, containerID string, opts LogOptions) (io.ReadCloser, error) {
	logOpts := container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     opts.Follow,
		Timestamps: opts.Timestamps,
	}
	if opts.Tail > 0 {
		logOpts.Tail = fmt.Sprintf("%d", opts.Tail)
	}
	if !opts.Since.IsZero() {
		logOpts.Since = opts.Since.Format(time.RFC3339Nano)
	}

	rc, err := a.cli.ContainerLogs(ctx, containerID, logOpts)
	if err != nil {
		return nil, classifyDaemonErr(err, a.Name())
	}
	return rc, nil
}

// ComposeUp, ComposeDown, ComposePs, and ComposeLogs shell out to the
// `docker compose` binary: thin wrappers that surface the same
// failure semantics as the engine (a non-zero exit becomes CommandFailed).

func (a *Adapter) ComposeUp(ctx context.Context, opts dockercli.ComposeOptions, services []string) error {
	return a.runCompose(ctx, dockercli.UpArgs(opts, services))
}

func (a *Adapter) ComposeDown(ctx context.Context, opts dockercli.ComposeOptions, removeVolumes bool) error {
	return a.runCompose(ctx, dockercli.DownArgs(opts, removeVolumes))
}

func (a *Adapter) ComposePs(ctx context.Context, opts dockercli.ComposeOptions) ([]byte, error) {
	return a.runComposeOutput(ctx, dockercli.PsArgs(opts))
}

func (a *Adapter) ComposeLogs(ctx context.Context, opts dockercli.ComposeOptions, services []string, follow bool, tail int) (io.ReadCloser, error) {
	cmd := dockercli.Command(ctx, a.composeBinary, dockercli.LogsArgs(opts, services, follow, tail)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, xerr.New(xerr.ExecFailed, a.Name(), err)
	}
	if err := cmd.Start(); err != nil {
		return nil, xerr.New(xerr.ExecFailed, a.Name(), err)
	}
	return stdout, nil
}

func (a *Adapter) runCompose(ctx context.Context, args []string) error {
	cmd := dockercli.Command(ctx, a.composeBinary, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return xerr.New(xerr.CommandFailed, a.Name(), fmt.Errorf("docker %v: %w: %s", args, err, out))
	}
	return nil
}

func (a *Adapter) runComposeOutput(ctx context.Context, args []string) ([]byte, error) {
	cmd := dockercli.Command(ctx, a.composeBinary, args...)
	out, err := cmd.Output()
	if err != nil {
		return nil, xerr.New(xerr.CommandFailed, a.Name(), err)
	}
	return out, nil
}

// Dispose implements adapter.Adapter by closing the underlying Engine API
// client connection.
func (a *Adapter) Dispose(ctx context.Context) (*adapter.DisposeReport, error) {
	if a.disposed {
		return nil, xerr.New(xerr.AlreadyDisposed, a.Name(), nil)
	}
	a.disposed = true
	if err := a.cli.Close(); err != nil {
		return &adapter.DisposeReport{Complete: false, Errors: []error{err}}, nil
	}
	return &adapter.DisposeReport{Complete: true}, nil
}

var _ adapter.Adapter = (*Adapter)(nil)
