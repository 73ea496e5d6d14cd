// SPDX-License-Identifier: MPL-2.0

// Package remotedocker implements the RemoteDocker-substrate Adapter: a
// composition of the SSH and Docker adapters where every Docker operation
// is shelled through an SSH-borrowed session running `docker` on the
// remote host. It composes internal/adapter/ssh rather than reimplementing
// session or transfer plumbing.
package remotedocker

import (
	"context"
	"fmt"
	"path"

	"github.com/google/uuid"

	"github.com/xec-sh/xec/internal/adapter"
	sshadapter "github.com/xec-sh/xec/internal/adapter/ssh"
	"github.com/xec-sh/xec/internal/command"
	"github.com/xec-sh/xec/internal/process"
	"github.com/xec-sh/xec/internal/sshpool"
	"github.com/xec-sh/xec/internal/target"
)

// Adapter is the RemoteDocker substrate: an SSH adapter bound to the
// destination host, issuing `docker` invocations as remote shell commands.
type Adapter struct {
	ssh  *sshadapter.Adapter
	spec target.DockerSpec
}

// New returns an Adapter that borrows SSH sessions from pool for sshSpec
// and runs docker commands against dockerSpec's container/image identity.
func New(pool *sshpool.Pool, sshSpec target.SSHSpec, dockerSpec target.DockerSpec) *Adapter {
	return &Adapter{ssh: sshadapter.New(pool, sshSpec), spec: dockerSpec}
}

// Name implements adapter.Adapter.
func (a *Adapter) Name() string { return "remote-docker" }

// dockerOptions rewrites opts into the `docker exec`/`docker run` invocation
// that reproduces opts.Program/Args inside the configured container or
// ephemeral image, matching the local Docker adapter's semantics over SSH.
func (a *Adapter) dockerOptions(opts command.Options) command.Options {
	args := a.dockerArgs(opts)
	out := opts
	out.Program = "docker"
	out.Args = args
	out.Shell = command.ShellMode{}
	out.RawTemplate = false
	return out
}

func (a *Adapter) dockerArgs(opts command.Options) []string {
	var args []string
	if a.spec.Container != "" {
		args = append(args, "exec")
		if opts.Stdin != nil {
			args = append(args, "-i")
		}
		if a.spec.TTY {
			args = append(args, "-t")
		}
		for k, v := range a.spec.Env {
			args = append(args, "-e", fmt.Sprintf("%s=%s", k, v))
		}
		if a.spec.Workdir != "" {
			args = append(args, "-w", a.spec.Workdir)
		}
		if a.spec.User != "" {
			args = append(args, "-u", a.spec.User)
		}
		args = append(args, a.spec.Container)
	} else {
		args = append(args, "run", "--rm")
		if opts.Stdin != nil {
			args = append(args, "-i")
		}
		if a.spec.TTY {
			args = append(args, "-t")
		}
		for k, v := range a.spec.Env {
			args = append(args, "-e", fmt.Sprintf("%s=%s", k, v))
		}
		if a.spec.Workdir != "" {
			args = append(args, "-w", a.spec.Workdir)
		}
		if a.spec.User != "" {
			args = append(args, "-u", a.spec.User)
		}
		args = append(args, a.spec.Image)
	}

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

// Execute implements adapter.Adapter: the rewritten docker command is
// delegated to the SSH adapter's own process-handle construction.
func (a *Adapter) Execute(ctx context.Context, opts command.Options) (*process.Handle, error) {
	return a.ssh.Execute(ctx, a.dockerOptions(opts))
}

// Stream implements adapter.Adapter.
func (a *Adapter) Stream(ctx context.Context, opts command.Options) (*adapter.StreamResult, error) {
	return a.ssh.Stream(ctx, a.dockerOptions(opts))
}

// CopyIn stages localSrc onto the remote host via SFTP, then moves it into
// the container with `docker cp`.
func (a *Adapter) CopyIn(ctx context.Context, localSrc, remoteDst string, progress adapter.ProgressFunc) error {
	tmp := remoteTempPath(localSrc)
	if err := a.ssh.CopyIn(ctx, localSrc, tmp, progress); err != nil {
		return err
	}
	defer a.removeRemote(ctx, tmp)

	dest := remoteDst
	if a.spec.Container != "" {
		dest = a.spec.Container + ":" + remoteDst
	}
	return a.dockerCp(ctx, tmp, dest)
}

// CopyOut copies remoteSrc out of the container to a host-side staging
// path via `docker cp`, then fetches it locally via SFTP.
func (a *Adapter) CopyOut(ctx context.Context, remoteSrc, localDst string, progress adapter.ProgressFunc) error {
	tmp := remoteTempPath(remoteSrc)
	src := remoteSrc
	if a.spec.Container != "" {
		src = a.spec.Container + ":" + remoteSrc
	}
	if err := a.dockerCp(ctx, src, tmp); err != nil {
		return err
	}
	defer a.removeRemote(ctx, tmp)

	return a.ssh.CopyOut(ctx, tmp, localDst, progress)
}

func (a *Adapter) dockerCp(ctx context.Context, src, dst string) error {
	handle, err := a.ssh.Execute(ctx, command.Options{Command: command.New("docker", "cp", src, dst)})
	if err != nil {
		return err
	}
	_, err = handle.Wait(ctx)
	return err
}

func (a *Adapter) removeRemote(ctx context.Context, path string) {
	opts := command.New("rm", "-f", path)
	opts.ThrowOnNonZero = false
	handle, err := a.ssh.Execute(ctx, command.Options{Command: opts, Nothrow: true})
	if err != nil {
		return
	}
	_, _ = handle.Wait(ctx)
}

func remoteTempPath(hint string) string {
	return path.Join("/tmp", "xec-"+uuid.NewString()+"-"+path.Base(hint))
}

// Dispose implements adapter.Adapter by delegating to the composed SSH
// adapter; the remote-docker adapter owns no resources of its own.
func (a *Adapter) Dispose(ctx context.Context) (*adapter.DisposeReport, error) {
	return a.ssh.Dispose(ctx)
}

var _ adapter.Adapter = (*Adapter)(nil)
