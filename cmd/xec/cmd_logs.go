// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	dockeradapter "github.com/xec-sh/xec/internal/adapter/docker"
	k8sadapter "github.com/xec-sh/xec/internal/adapter/k8s"
	sshadapter "github.com/xec-sh/xec/internal/adapter/ssh"
	"github.com/xec-sh/xec/internal/command"
	"github.com/xec-sh/xec/internal/target"
)

// newLogsCommand implements `logs <target> [--follow]
// [--tail N] [--since T]`: delegates to the adapter's substrate-native log
// stream (Docker's log endpoint, kubectl logs, or, for a remote-docker
// target with no generic log API of its own, a `docker logs`
// invocation shelled over the SSH session it already owns).
func newLogsCommand() *cobra.Command {
	var (
		follow bool
		tail   int
		since  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "logs <target>",
		Short: "Stream logs from a Docker container or Kubernetes pod",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tgt, err := cfg.ResolveTarget(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			switch tgt.Kind {
			case target.Docker:
				return logsDocker(ctx, tgt, follow, tail, since)
			case target.K8s:
				return logsK8s(ctx, tgt, follow, tail, since)
			case target.RemoteDocker:
				return logsRemoteDocker(ctx, tgt, follow, tail, since)
			default:
				return usageError(fmt.Errorf("xec: logs: %q is a %s target, which has no container/pod log stream", args[0], tgt.Kind))
			}
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "stream new log lines as they are written")
	cmd.Flags().IntVar(&tail, "tail", 0, "number of lines to show from the end of the logs (0: all)")
	cmd.Flags().DurationVar(&since, "since", 0, "only return logs newer than this duration")
	return cmd
}

func logsDocker(ctx context.Context, tgt target.Target, follow bool, tail int, since time.Duration) error {
	if tgt.Docker.Container == "" {
		return usageError(fmt.Errorf("xec: logs: %q has no named container to tail", tgt.Name))
	}
	a, err := dockeradapter.New(tgt.Docker)
	if err != nil {
		return err
	}
	opts := dockeradapter.LogOptions{Follow: follow, Tail: tail}
	if since > 0 {
		opts.Since = time.Now().Add(-since)
	}
	rc, err := a.Logs(ctx, tgt.Docker.Container, opts)
	if err != nil {
		return err
	}
	defer rc.Close()
	_, err = io.Copy(os.Stdout, rc)
	return err
}

func logsK8s(ctx context.Context, tgt target.Target, follow bool, tail int, since time.Duration) error {
	a := k8sadapter.New(tgt.K8s)
	lh, err := a.Logs(ctx, k8sadapter.LogOptions{Follow: follow, Tail: tail, Since: since}, func(line string) {
		fmt.Fprintln(os.Stdout, line)
	})
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		lh.Stop()
	}()
	return lh.Wait()
}

func logsRemoteDocker(ctx context.Context, tgt target.Target, follow bool, tail int, since time.Duration) error {
	if tgt.RemoteDocker.Docker.Container == "" {
		return usageError(fmt.Errorf("xec: logs: %q has no named container to tail", tgt.Name))
	}
	a := sshadapter.New(eng.Pool(), tgt.RemoteDocker.SSH)

	args := []string{"logs"}
	if follow {
		args = append(args, "-f")
	}
	if tail > 0 {
		args = append(args, "--tail", fmt.Sprintf("%d", tail))
	}
	if since > 0 {
		args = append(args, "--since", since.String())
	}
	args = append(args, tgt.RemoteDocker.Docker.Container)

	stream, err := a.Stream(ctx, command.Options{Command: command.New("docker", args...)})
	if err != nil {
		return err
	}
	go io.Copy(os.Stderr, stream.Stderr)
	go io.Copy(os.Stdout, stream.Stdout)

	_, err = stream.Wait(ctx)
	return err
}
