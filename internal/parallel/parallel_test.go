// SPDX-License-Identifier: MPL-2.0

package parallel

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xec-sh/xec/internal/command"
	"github.com/xec-sh/xec/internal/process"
)

func okHandle(ctx context.Context, stdout string) *process.Handle {
	return process.New(ctx, "test", command.Options{}, func(ctx context.Context, stdin io.Reader) (*command.Result, error) {
		return &command.Result{Stdout: []byte(stdout), ExitCode: 0, HasExit: true}, nil
	})
}

func failHandle(ctx context.Context, err error) *process.Handle {
	return process.New(ctx, "test", command.Options{}, func(ctx context.Context, stdin io.Reader) (*command.Result, error) {
		return &command.Result{ExitCode: 1, HasExit: true, Cause: err}, err
	})
}

func TestAllFailFastReturnsFirstError(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	handles := []*process.Handle{
		okHandle(ctx, "a"),
		failHandle(ctx, boom),
		okHandle(ctx, "c"),
	}

	results, settled, err := All(ctx, handles, false)
	require.Error(t, err)
	assert.Nil(t, results)
	assert.Nil(t, settled)
}

func TestAllSucceedsWhenEveryHandleSucceeds(t *testing.T) {
	ctx := context.Background()
	handles := []*process.Handle{okHandle(ctx, "a"), okHandle(ctx, "b")}

	results, settled, err := All(ctx, handles, false)
	require.NoError(t, err)
	assert.Nil(t, settled)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].StdoutString())
	assert.Equal(t, "b", results[1].StdoutString())
}

func TestAllSettledCollectsEveryOutcome(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	handles := []*process.Handle{
		okHandle(ctx, "a"),
		failHandle(ctx, boom),
		okHandle(ctx, "c"),
	}

	results, settled, err := All(ctx, handles, true)
	require.NoError(t, err)
	assert.Nil(t, results)
	require.Len(t, settled, 3)
	assert.NoError(t, settled[0].Err)
	assert.Equal(t, "a", settled[0].Result.StdoutString())
	assert.Error(t, settled[1].Err)
	assert.NoError(t, settled[2].Err)
	assert.Equal(t, "c", settled[2].Result.StdoutString())
}

func TestBatchPreservesResultOrder(t *testing.T) {
	ctx := context.Background()
	items := []int{0, 1, 2, 3, 4, 5, 6, 7}

	results := Batch(ctx, items, 3, func(ctx context.Context, n int) (int, error) {
		return n * n, nil
	})

	require.Len(t, results, len(items))
	for i, r := range results {
		assert.Equal(t, i, r.Index)
		assert.NoError(t, r.Err)
		assert.Equal(t, i*i, r.Output)
	}
}

func TestBatchLimitsConcurrency(t *testing.T) {
	ctx := context.Background()
	const concurrency = 2

	var mu sync.Mutex
	current, max := 0, 0

	items := make([]int, 10)
	results := Batch(ctx, items, concurrency, func(ctx context.Context, n int) (int, error) {
		mu.Lock()
		current++
		if current > max {
			max = current
		}
		mu.Unlock()

		defer func() {
			mu.Lock()
			current--
			mu.Unlock()
		}()
		return n, nil
	})

	require.Len(t, results, len(items))
	assert.LessOrEqual(t, max, concurrency)
}

func TestBatchZeroConcurrencyRunsAllAtOnce(t *testing.T) {
	ctx := context.Background()
	items := []string{"a", "b", "c"}

	results := Batch(ctx, items, 0, func(ctx context.Context, s string) (string, error) {
		return s + s, nil
	})

	require.Len(t, results, 3)
	assert.Equal(t, "aa", results[0].Output)
	assert.Equal(t, "bb", results[1].Output)
	assert.Equal(t, "cc", results[2].Output)
}
