// SPDX-License-Identifier: MPL-2.0

package docker

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xec-sh/xec/internal/command"
	"github.com/xec-sh/xec/internal/target"
	"github.com/xec-sh/xec/internal/xerr"
)

func TestCommandArgvDirect(t *testing.T) {
	opts := command.Options{Command: command.New("ls", "-la", "/app")}
	assert.Equal(t, []string{"ls", "-la", "/app"}, commandArgv(opts))
}

func TestCommandArgvShellWrapped(t *testing.T) {
	opts := command.Options{Command: command.New("echo hi && echo bye")}
	opts.Shell = command.ShellMode{Enabled: true}
	assert.Equal(t, []string{"/bin/sh", "-c", "echo hi && echo bye"}, commandArgv(opts))
}

func TestCommandArgvExplicitShell(t *testing.T) {
	opts := command.Options{Command: command.New("echo hi")}
	opts.Shell = command.ShellMode{Enabled: true, Path: "/bin/bash"}
	assert.Equal(t, []string{"/bin/bash", "-c", "echo hi"}, commandArgv(opts))
}

func TestEnvSlice(t *testing.T) {
	assert.Nil(t, envSlice(nil))
	got := envSlice(map[string]string{"A": "1"})
	assert.Equal(t, []string{"A=1"}, got)
}

func TestTarPathSingleFileRoundTrip(t *testing.T) {
	srcDir := t.TempDir()
	src := filepath.Join(srcDir, "payload.txt")
	require.NoError(t, os.WriteFile(src, []byte("hello docker\n"), 0o644))

	buf, err := tarPath(src, nil)
	require.NoError(t, err)

	dstDir := t.TempDir()
	require.NoError(t, untar(bytes.NewReader(buf.Bytes()), dstDir, nil))

	got, err := os.ReadFile(filepath.Join(dstDir, "payload.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello docker\n", string(got))
}

func TestTarPathDirectoryRoundTrip(t *testing.T) {
	srcDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(srcDir, "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "a.txt"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "nested", "b.txt"), []byte("b"), 0o644))

	var lastTransferred int64
	buf, err := tarPath(srcDir, func(transferred, total int64) { lastTransferred = transferred })
	require.NoError(t, err)
	assert.Equal(t, int64(2), lastTransferred)

	dstDir := t.TempDir()
	require.NoError(t, untar(bytes.NewReader(buf.Bytes()), dstDir, nil))

	a, err := os.ReadFile(filepath.Join(dstDir, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "a", string(a))

	b, err := os.ReadFile(filepath.Join(dstDir, "nested", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "b", string(b))
}

func TestClassifyDaemonErr(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want xerr.Kind
	}{
		{"not found", cerrdefs.ErrNotFound, xerr.ContainerNotFound},
		{"unauthorized", cerrdefs.ErrUnauthenticated, xerr.AuthFailed},
		{"conflict", cerrdefs.ErrConflict, xerr.CommandFailed},
		{"transport", errors.New("dial unix /var/run/docker.sock: no such file"), xerr.DaemonUnreachable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, ok := xerr.KindOf(classifyDaemonErr(tt.err, "docker"))
			require.True(t, ok)
			assert.Equal(t, tt.want, kind)
		})
	}
}

func TestResolveContainerIDPrecedence(t *testing.T) {
	a := &Adapter{spec: target.DockerSpec{Container: "web-1"}}
	id, err := a.resolveContainerID(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "web-1", id)

	a = &Adapter{spec: target.DockerSpec{Image: "alpine:3.19"}, lastContainerID: "deadbeef"}
	id, err = a.resolveContainerID(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "deadbeef", id)

	a = &Adapter{spec: target.DockerSpec{Image: "alpine:3.19"}}
	_, err = a.resolveContainerID(t.Context())
	require.Error(t, err)
	kind, ok := xerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, xerr.ContainerNotFound, kind)
}
