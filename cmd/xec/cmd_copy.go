// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xec-sh/xec/internal/target"
)

// copyEndpoint is one side of a `copy <src> <dst>` invocation: a
// `local-path`, `host:path`, `container:path`, or `pod:path`.
type copyEndpoint struct {
	remote bool
	target target.Target
	path   string
}

// parseCopyEndpoint recognizes the forced `pod:`/`docker:`/`ssh:` schemes
// first (so a pod/container path containing its own colon still parses),
// then falls back to a bare `name:path` pair resolved against the
// configuration, and finally treats the whole string as a local path.
func parseCopyEndpoint(s string) (copyEndpoint, error) {
	for _, scheme := range []string{"pod:", "docker:", "ssh:"} {
		if rest, ok := strings.CutPrefix(s, scheme); ok {
			name, path, found := strings.Cut(rest, ":")
			if !found {
				return copyEndpoint{}, fmt.Errorf("copy: %q: expected %s<name>:<path>", s, scheme)
			}
			tgt, err := cfg.ResolveTarget(scheme + name)
			if err != nil {
				return copyEndpoint{}, err
			}
			return copyEndpoint{remote: true, target: tgt, path: path}, nil
		}
	}

	if name, path, found := strings.Cut(s, ":"); found {
		if tgt, err := cfg.ResolveTarget(name); err == nil {
			return copyEndpoint{remote: true, target: tgt, path: path}, nil
		}
	}

	return copyEndpoint{remote: false, target: target.NewLocal(), path: s}, nil
}

// newCopyCommand implements `copy <src> <dst>`: local-remote
// and remote↔remote transfers across every substrate's CopyIn/CopyOut.
func newCopyCommand() *cobra.Command {
	var progress bool

	cmd := &cobra.Command{
		Use:   "copy <src> <dst>",
		Short: "Copy a file or directory between local and remote targets",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := parseCopyEndpoint(args[0])
			if err != nil {
				return usageError(err)
			}
			dst, err := parseCopyEndpoint(args[1])
			if err != nil {
				return usageError(err)
			}

			if dryRun {
				fmt.Fprintf(os.Stdout, "%s %s -> %s %s\n",
					subtitleStyle.Render(src.target.String()+":"), src.path,
					subtitleStyle.Render(dst.target.String()+":"), dst.path)
				return nil
			}

			ctx := cmd.Context()
			var progressFn func(transferred, total int64)
			if progress {
				progressFn = func(transferred, total int64) {
					fmt.Fprintf(os.Stderr, "\r%d/%d bytes", transferred, total)
				}
			}

			switch {
			case !src.remote && !dst.remote:
				a, err := eng.AdapterFor(ctx, target.NewLocal())
				if err != nil {
					return err
				}
				return a.CopyIn(ctx, src.path, dst.path, progressFn)

			case !src.remote && dst.remote:
				a, err := eng.AdapterFor(ctx, dst.target)
				if err != nil {
					return err
				}
				return a.CopyIn(ctx, src.path, dst.path, progressFn)

			case src.remote && !dst.remote:
				a, err := eng.AdapterFor(ctx, src.target)
				if err != nil {
					return err
				}
				return a.CopyOut(ctx, src.path, dst.path, progressFn)

			default:
				return copyRemoteToRemote(ctx, src, dst, progressFn)
			}
		},
	}

	cmd.Flags().BoolVar(&progress, "progress", false, "report transfer progress to stderr")
	return cmd
}

// copyRemoteToRemote stages through a local temporary file. An in-substrate
// copy would only be possible when both endpoints share a session, and no
// substrate pair in this module shares a session across two independently
// resolved targets, so staging is the only path taken.
func copyRemoteToRemote(ctx context.Context, src, dst copyEndpoint, progress func(int64, int64)) error {
	tmpDir, err := os.MkdirTemp("", "xec-copy-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmpDir)
	staged := filepath.Join(tmpDir, filepath.Base(src.path))

	srcAdapter, err := eng.AdapterFor(ctx, src.target)
	if err != nil {
		return err
	}
	if err := srcAdapter.CopyOut(ctx, src.path, staged, progress); err != nil {
		return fmt.Errorf("copy: staging from %s: %w", src.target, err)
	}

	dstAdapter, err := eng.AdapterFor(ctx, dst.target)
	if err != nil {
		return err
	}
	if err := dstAdapter.CopyIn(ctx, staged, dst.path, progress); err != nil {
		return fmt.Errorf("copy: staging to %s: %w", dst.target, err)
	}
	return nil
}
