// SPDX-License-Identifier: MPL-2.0

package process

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xec-sh/xec/internal/command"
	"github.com/xec-sh/xec/internal/xerr"
)

func TestHandle_LazyUntilWaited(t *testing.T) {
	t.Parallel()

	var invoked atomic.Bool
	h := New(context.Background(), "local", command.Options{}, func(ctx context.Context, stdin io.Reader) (*command.Result, error) {
		invoked.Store(true)
		return &command.Result{HasExit: true, ExitCode: 0}, nil
	})

	time.Sleep(20 * time.Millisecond)
	assert.False(t, invoked.Load(), "runner must not be invoked before Wait")

	res, err := h.Wait(context.Background())
	require.NoError(t, err)
	assert.True(t, invoked.Load())
	assert.True(t, res.Ok())
}

func TestHandle_WaitIdempotent(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	h := New(context.Background(), "local", command.Options{}, func(ctx context.Context, stdin io.Reader) (*command.Result, error) {
		calls.Add(1)
		return &command.Result{HasExit: true, ExitCode: 0}, nil
	})

	res1, _ := h.Wait(context.Background())
	res2, _ := h.Wait(context.Background())
	assert.Same(t, res1, res2, "awaiting a completed handle must replay the same Result")
	assert.Equal(t, int32(1), calls.Load(), "runner must be invoked exactly once")
}

func TestHandle_KillBeforeStart(t *testing.T) {
	t.Parallel()

	var invoked atomic.Bool
	h := New(context.Background(), "local", command.Options{}, func(ctx context.Context, stdin io.Reader) (*command.Result, error) {
		invoked.Store(true)
		return &command.Result{HasExit: true}, nil
	})

	require.NoError(t, h.Kill("SIGTERM"))
	assert.Equal(t, StateCancelled, h.State())

	_, err := h.Wait(context.Background())
	require.Error(t, err)
	assert.False(t, invoked.Load(), "runner must never be invoked after a before-start kill")
}

func TestHandle_RetryThenSucceed(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	opts := command.Options{
		Retry: &command.RetryPolicy{
			MaxAttempts:  3,
			InitialDelay: 10 * time.Millisecond,
			Factor:       2,
		},
	}
	h := New(context.Background(), "local", opts, func(ctx context.Context, stdin io.Reader) (*command.Result, error) {
		n := attempts.Add(1)
		if n < 3 {
			return &command.Result{HasExit: true, ExitCode: 1}, xerr.New(xerr.CommandFailed, "local", errors.New("boom"))
		}
		return &command.Result{HasExit: true, ExitCode: 0}, nil
	})

	start := time.Now()
	res, err := h.Wait(context.Background())
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.True(t, res.Ok())
	assert.Equal(t, int32(3), attempts.Load())
	assert.GreaterOrEqual(t, elapsed, 20*time.Millisecond)
}

func TestHandle_Nothrow_SuppressesError(t *testing.T) {
	t.Parallel()

	opts := command.Options{Nothrow: true}
	opts.ThrowOnNonZero = true
	h := New(context.Background(), "local", opts, func(ctx context.Context, stdin io.Reader) (*command.Result, error) {
		return &command.Result{HasExit: true, ExitCode: 1}, xerr.New(xerr.CommandFailed, "local", errors.New("boom"))
	})

	res, err := h.Wait(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Ok())
	assert.Error(t, res.Cause)
}

func TestHandle_TextTrimsTrailingNewline(t *testing.T) {
	t.Parallel()

	h := New(context.Background(), "local", command.Options{}, func(ctx context.Context, stdin io.Reader) (*command.Result, error) {
		return &command.Result{HasExit: true, ExitCode: 0, Stdout: []byte("hello\n")}, nil
	})

	text, err := h.Text(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "hello", text)
}

func TestHandle_JSON(t *testing.T) {
	t.Parallel()

	h := New(context.Background(), "local", command.Options{}, func(ctx context.Context, stdin io.Reader) (*command.Result, error) {
		return &command.Result{HasExit: true, ExitCode: 0, Stdout: []byte(`{"name":"xec","count":2}`)}, nil
	})

	var out struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	require.NoError(t, h.JSON(context.Background(), &out))
	assert.Equal(t, "xec", out.Name)
	assert.Equal(t, 2, out.Count)
}

func TestHandle_Lines(t *testing.T) {
	t.Parallel()

	h := New(context.Background(), "local", command.Options{}, func(ctx context.Context, stdin io.Reader) (*command.Result, error) {
		return &command.Result{HasExit: true, ExitCode: 0, Stdout: []byte("one\ntwo\nthree\n")}, nil
	})

	var lines []string
	require.NoError(t, h.Lines(context.Background(), func(line string) { lines = append(lines, line) }))
	assert.Equal(t, []string{"one", "two", "three"}, lines)
}

func TestHandle_Pipe(t *testing.T) {
	t.Parallel()

	producer := New(context.Background(), "local", command.Options{}, func(ctx context.Context, stdin io.Reader) (*command.Result, error) {
		return &command.Result{HasExit: true, ExitCode: 0, Stdout: []byte("ab\ncd\n")}, nil
	})
	var consumerSawStdin []byte
	consumer := New(context.Background(), "local", command.Options{}, func(ctx context.Context, stdin io.Reader) (*command.Result, error) {
		consumerSawStdin, _ = io.ReadAll(stdin)
		return &command.Result{HasExit: true, ExitCode: 0, Stdout: []byte("2\n")}, nil
	})

	combined := producer.Pipe(context.Background(), consumer)
	res, err := combined.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2", trimTrailingNewline(res.StdoutString()))
	assert.Equal(t, "ab\ncd\n", string(consumerSawStdin))
}
