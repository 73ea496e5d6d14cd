// SPDX-License-Identifier: MPL-2.0

package local

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xec-sh/xec/internal/command"
)

func TestAdapter_Execute_VirtualShellEchoOk(t *testing.T) {
	t.Parallel()

	a := New()
	opts := command.Options{Command: command.New("echo hello")}
	opts.Shell = command.ShellMode{Enabled: true, Path: "virtual"}

	h, err := a.Execute(context.Background(), opts)
	require.NoError(t, err)

	res, err := h.Wait(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Ok())
	assert.Equal(t, "hello\n", res.StdoutString())
}

func TestAdapter_Execute_VirtualShellNonZeroExit(t *testing.T) {
	t.Parallel()

	a := New()
	opts := command.Options{Command: command.New("exit 3")}
	opts.Shell = command.ShellMode{Enabled: true, Path: "virtual"}
	opts.ThrowOnNonZero = true

	h, err := a.Execute(context.Background(), opts)
	require.NoError(t, err)

	res, err := h.Wait(context.Background())
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, 3, res.ExitCode)
	assert.False(t, res.Ok())
}

func TestAdapter_Execute_VirtualShellSyntaxErrorIsSpawnFailed(t *testing.T) {
	t.Parallel()

	a := New()
	opts := command.Options{Command: command.New("echo 'unterminated")}
	opts.Shell = command.ShellMode{Enabled: true, Path: "virtual"}

	h, err := a.Execute(context.Background(), opts)
	require.NoError(t, err)

	_, err = h.Wait(context.Background())
	require.Error(t, err)
}

func TestAdapter_Stream_VirtualShellStreamsOutput(t *testing.T) {
	t.Parallel()

	a := New()
	opts := command.Options{Command: command.New("echo streamed")}
	opts.Shell = command.ShellMode{Enabled: true, Path: "virtual"}

	streamResult, err := a.Stream(context.Background(), opts)
	require.NoError(t, err)

	out, err := io.ReadAll(streamResult.Stdout)
	require.NoError(t, err)
	assert.Equal(t, "streamed\n", string(out))

	res, err := streamResult.Wait(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Ok())
}

func TestWantsVirtualShell(t *testing.T) {
	t.Parallel()

	t.Run("explicit virtual path", func(t *testing.T) {
		opts := command.Options{Command: command.New("echo hi")}
		opts.Shell = command.ShellMode{Enabled: true, Path: "virtual"}
		assert.True(t, wantsVirtualShell(opts, ""))
	})

	t.Run("shell disabled never virtual", func(t *testing.T) {
		opts := command.Options{Command: command.New("echo hi")}
		assert.False(t, wantsVirtualShell(opts, "virtual"))
	})

	t.Run("explicit non-virtual path wins over override", func(t *testing.T) {
		opts := command.Options{Command: command.New("echo hi")}
		opts.Shell = command.ShellMode{Enabled: true, Path: "/bin/bash"}
		assert.False(t, wantsVirtualShell(opts, "virtual"))
	})

	t.Run("adapter override selects virtual", func(t *testing.T) {
		opts := command.Options{Command: command.New("echo hi")}
		opts.Shell = command.ShellMode{Enabled: true}
		assert.True(t, wantsVirtualShell(opts, "virtual"))
	})
}
