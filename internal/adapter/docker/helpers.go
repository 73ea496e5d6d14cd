// SPDX-License-Identifier: MPL-2.0

package docker

import (
	"archive/tar"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/image"

	"github.com/xec-sh/xec/internal/adapter"
	"github.com/xec-sh/xec/internal/command"
	"github.com/xec-sh/xec/internal/xerr"
)

// commandArgv assembles the exec/ephemeral argv Docker expects: either the
// direct Program+Args form, or, when Shell is enabled, the command wrapped
// in a shell -c invocation.
func commandArgv(opts command.Options) []string {
	if !opts.Shell.Enabled {
		return append([]string{opts.Program}, opts.Args...)
	}
	shell := opts.Shell.Path
	if shell == "" {
		shell = "/bin/sh"
	}
	return []string{shell, "-c", opts.Program}
}

// envSlice converts Options.Env into the KEY=VALUE slice the Docker API
// expects.
func envSlice(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, fmt.Sprintf("%s=%s", k, v))
	}
	return out
}

// classifyDaemonErr maps an Engine API client error into the engine's
// taxonomy using the errdefs predicates the client already returns, falling back to
// DaemonUnreachable for transport-level failures.
func classifyDaemonErr(err error, adapterName string) error {
	if err == nil {
		return nil
	}
	switch {
	case errdefs.IsNotFound(err):
		return xerr.New(xerr.ContainerNotFound, adapterName, err)
	case errdefs.IsUnauthorized(err) || errdefs.IsPermissionDenied(err):
		return xerr.New(xerr.AuthFailed, adapterName, err)
	case errdefs.IsConflict(err), errdefs.IsInvalidArgument(err):
		return xerr.New(xerr.CommandFailed, adapterName, err)
	default:
		return xerr.New(xerr.DaemonUnreachable, adapterName, err)
	}
}

// dockerImagePullOptions returns the default, unauthenticated pull options;
// registry auth is not supported by this adapter.
func dockerImagePullOptions() image.PullOptions {
	return image.PullOptions{}
}

// tarPath builds an in-memory tar stream for localSrc, suitable for
// CopyToContainer. A single file is wrapped as one tar entry named by its
// base, a directory is walked recursively; both mirror what
// container.Config.WorkingDir-relative CopyToContainer expects.
func tarPath(localSrc string, progress adapter.ProgressFunc) (*bytes.Buffer, error) {
	info, err := os.Stat(localSrc)
	if err != nil {
		return nil, err
	}

	buf := new(bytes.Buffer)
	tw := tar.NewWriter(buf)

	var total, transferred int64
	if info.IsDir() {
		_ = filepath.Walk(localSrc, func(path string, fi os.FileInfo, err error) error {
			if err == nil && !fi.IsDir() {
				total += fi.Size()
			}
			return nil
		})

		err = filepath.Walk(localSrc, func(path string, fi os.FileInfo, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			rel, err := filepath.Rel(localSrc, path)
			if err != nil {
				return err
			}
			if rel == "." {
				return nil
			}
			return addTarEntry(tw, path, filepath.ToSlash(rel), fi, progress, &transferred, total)
		})
	} else {
		total = info.Size()
		err = addTarEntry(tw, localSrc, filepath.Base(localSrc), info, progress, &transferred, total)
	}
	if err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return buf, nil
}

func addTarEntry(tw *tar.Writer, path, name string, fi os.FileInfo, progress adapter.ProgressFunc, transferred *int64, total int64) error {
	if fi.IsDir() {
		hdr, err := tar.FileInfoHeader(fi, "")
		if err != nil {
			return err
		}
		hdr.Name = name + "/"
		return tw.WriteHeader(hdr)
	}

	hdr, err := tar.FileInfoHeader(fi, "")
	if err != nil {
		return err
	}
	hdr.Name = name
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	buf := make([]byte, 32*1024)
	for {
		n, readErr := f.Read(buf)
		if n > 0 {
			if _, werr := tw.Write(buf[:n]); werr != nil {
				return werr
			}
			*transferred += int64(n)
			if progress != nil {
				progress(*transferred, total)
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return readErr
		}
	}
}

// untar extracts the tar stream CopyFromContainer returns into localDst.
// Every entry is written under localDst by its archive name, so a single
// file lands at localDst/<name>; a single-entry stream is not written to
// localDst itself.
func untar(r io.Reader, localDst string, progress adapter.ProgressFunc) error {
	tr := tar.NewReader(r)

	var transferred int64
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		target := filepath.Join(localDst, filepath.FromSlash(strings.TrimPrefix(hdr.Name, "/")))
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, hdr.FileInfo().Mode().Perm()); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, hdr.FileInfo().Mode().Perm())
			if err != nil {
				return err
			}
			n, err := io.Copy(out, tr)
			out.Close()
			if err != nil {
				return err
			}
			transferred += n
			if progress != nil {
				progress(transferred, transferred)
			}
		}
	}
}
