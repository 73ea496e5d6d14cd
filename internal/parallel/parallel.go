// SPDX-License-Identifier: MPL-2.0

// Package parallel implements the engine's fan-out combinators over
// process.Handle: All awaits a fixed set of handles (fail-fast, or
// collect-all when settled is requested), Batch bounds concurrency across
// a dynamically sized item set.
package parallel

import (
	"context"
	"sync"

	"github.com/xec-sh/xec/internal/command"
	"github.com/xec-sh/xec/internal/process"
)

// Settled is one handle's outcome when All is called with settled: true,
// a Result/error pair instead of a short-circuiting failure.
type Settled struct {
	Result *command.Result
	Err    error
}

// All awaits every handle to completion. With settled=false (the default),
// it returns on the first error, leaving later handles running in the
// background; the caller that needs them stopped should Kill them. With
// settled=true, every handle is awaited to completion regardless of
// earlier failures and the full Settled slice is returned with a nil error.
func All(ctx context.Context, handles []*process.Handle, settled bool) ([]*command.Result, []Settled, error) {
	if !settled {
		results := make([]*command.Result, len(handles))
		for i, h := range handles {
			res, err := h.Wait(ctx)
			if err != nil {
				return nil, nil, err
			}
			results[i] = res
		}
		return results, nil, nil
	}

	out := make([]Settled, len(handles))
	var wg sync.WaitGroup
	wg.Add(len(handles))
	for i, h := range handles {
		go func(i int, h *process.Handle) {
			defer wg.Done()
			res, err := h.Wait(ctx)
			out[i] = Settled{Result: res, Err: err}
		}(i, h)
	}
	wg.Wait()
	return nil, out, nil
}

// BatchResult pairs one Batch item's index with its outcome, preserving
// the caller's original ordering even though execution order is not
// guaranteed.
type BatchResult[T any] struct {
	Index  int
	Output T
	Err    error
}

// Batch runs fn(item) for every item in items, holding at most concurrency
// calls in flight. Results are returned in the same order as items.
func Batch[I, O any](ctx context.Context, items []I, concurrency int, fn func(ctx context.Context, item I) (O, error)) []BatchResult[O] {
	if concurrency <= 0 {
		concurrency = len(items)
	}
	if concurrency <= 0 {
		return nil
	}

	results := make([]BatchResult[O], len(items))
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i, item := range items {
		select {
		case <-ctx.Done():
			results[i] = BatchResult[O]{Index: i, Err: ctx.Err()}
			continue
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(i int, item I) {
			defer wg.Done()
			defer func() { <-sem }()

			out, err := fn(ctx, item)
			results[i] = BatchResult[O]{Index: i, Output: out, Err: err}
		}(i, item)
	}
	wg.Wait()
	return results
}
