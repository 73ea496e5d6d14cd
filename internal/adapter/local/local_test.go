// SPDX-License-Identifier: MPL-2.0

package local

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xec-sh/xec/internal/command"
	"github.com/xec-sh/xec/internal/xerr"
	"github.com/xec-sh/xec/pkg/types"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("POSIX-shell-specific test")
	}
}

func TestAdapter_Execute_ArgvOk(t *testing.T) {
	skipOnWindows(t)
	t.Parallel()

	a := New()
	opts := command.Options{Command: command.New("echo", "hello")}
	h, err := a.Execute(context.Background(), opts)
	require.NoError(t, err)

	res, err := h.Wait(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Ok())
	assert.Equal(t, "hello\n", res.StdoutString())
}

func TestAdapter_Execute_ShellMode(t *testing.T) {
	skipOnWindows(t)
	t.Parallel()

	a := New()
	cmd := command.New("echo $FOO")
	cmd.Shell.Enabled = true
	cmd.Env = map[string]string{"FOO": "bar"}
	opts := command.Options{Command: cmd}

	h, err := a.Execute(context.Background(), opts)
	require.NoError(t, err)

	res, err := h.Wait(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Ok())
	assert.Equal(t, "bar\n", res.StdoutString())
}

func TestAdapter_Execute_NonZeroExit(t *testing.T) {
	skipOnWindows(t)
	t.Parallel()

	a := New()
	opts := command.Options{Command: command.New("sh", "-c", "exit 3")}
	h, err := a.Execute(context.Background(), opts)
	require.NoError(t, err)

	res, err := h.Wait(context.Background())
	require.Error(t, err)
	assert.False(t, res.Ok())
	assert.Equal(t, 3, res.ExitCode)

	kind, ok := xerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, xerr.CommandFailed, kind)
}

func TestAdapter_Execute_BufferOverflow(t *testing.T) {
	skipOnWindows(t)
	t.Parallel()

	a := New()
	cmd := command.New("sh", "-c", "yes x | head -c 1000000")
	cmd.MaxBuffer = 16
	opts := command.Options{Command: cmd}

	h, err := a.Execute(context.Background(), opts)
	require.NoError(t, err)

	res, err := h.Wait(context.Background())
	require.Error(t, err)
	kind, ok := xerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, xerr.BufferOverflow, kind)
	assert.LessOrEqual(t, len(res.Stdout), 16)
}

func TestAdapter_Execute_TimeoutEscalates(t *testing.T) {
	skipOnWindows(t)
	t.Parallel()

	a := New()
	cmd := command.New("sh", "-c", "sleep 5")
	cmd.Timeout = types.Duration(50 * time.Millisecond)
	opts := command.Options{Command: cmd}

	h, err := a.Execute(context.Background(), opts)
	require.NoError(t, err)

	start := time.Now()
	res, err := h.Wait(context.Background())
	elapsed := time.Since(start)

	require.Error(t, err)
	kind, ok := xerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, xerr.Timeout, kind)
	assert.Equal(t, "SIGTERM", res.Signal)
	assert.Less(t, elapsed, 5*time.Second)
}

func TestAdapter_Execute_KillBeforeGraceIsSIGKILLed(t *testing.T) {
	skipOnWindows(t)
	t.Parallel()

	a := New()
	opts := command.Options{Command: command.New("sh", "-c", "trap '' TERM; sleep 5")}
	h, err := a.Execute(context.Background(), opts)
	require.NoError(t, err)

	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = h.Kill("SIGTERM")
	}()

	start := time.Now()
	_, err = h.Wait(context.Background())
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Less(t, elapsed, killGrace+2*time.Second)
}
