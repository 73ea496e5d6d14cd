// SPDX-License-Identifier: MPL-2.0

// Package process implements the process handle: a lazy, awaitable,
// cancellable value that doubles as the user-facing return of every
// command-producing call, advancing through NotStarted, Starting, Running,
// and the Completed/Cancelled/Failed terminal states.
package process

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xec-sh/xec/internal/command"
	"github.com/xec-sh/xec/internal/xerr"
	"github.com/xec-sh/xec/internal/xlog"
)

// State is the process handle's lifecycle state.
type State int32

const (
	// StateNotStarted is the initial state: created but not yet awaited or driven.
	StateNotStarted State = iota
	StateStarting
	StateRunning
	StateCompleted
	StateCancelled
	StateFailed
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not-started"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether s is one of the three terminal states.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateFailed
}

// Runner is the adapter-supplied function that actually performs the
// execution. It must honor ctx cancellation (killing the underlying
// process/channel/subprocess promptly) and enforce the command's own
// timeout escalation ladder internally; the handle does not re-implement
// substrate-specific timeout behavior.
type Runner func(ctx context.Context, stdin io.Reader) (*command.Result, error)

// Handle is the process handle: lazy, awaitable, cancellable, and a replay
// buffer once completed.
type Handle struct {
	state atomic.Int32

	opts   command.Options
	runner Runner
	stdin  io.Reader

	startOnce sync.Once
	ctx       context.Context
	cancel    context.CancelCauseFunc
	doneCh    chan struct{}

	mu     sync.Mutex
	result *command.Result
	err    error

	adapterName string
}

// New constructs a handle over runner with the given options. Execution
// does not begin until Wait, Lines, Text, JSON, or another driving method
// is first called.
func New(parentCtx context.Context, adapterName string, opts command.Options, runner Runner) *Handle {
	ctx, cancel := context.WithCancelCause(parentCtx)
	return &Handle{
		opts:        opts,
		runner:      runner,
		stdin:       opts.Stdin,
		ctx:         ctx,
		cancel:      cancel,
		doneCh:      make(chan struct{}),
		adapterName: adapterName,
	}
}

// State returns the current lifecycle state (lock-free read).
func (h *Handle) State() State { return State(h.state.Load()) }

// ensureStarted triggers execution exactly once, lazily, on whichever
// driving call reaches it first.
func (h *Handle) ensureStarted() {
	h.startOnce.Do(func() {
		h.state.Store(int32(StateStarting))
		go h.run()
	})
}

func (h *Handle) run() {
	h.state.CompareAndSwap(int32(StateStarting), int32(StateRunning))

	result, err := h.runWithRetry()
	if kind, _ := xerr.KindOf(err); err != nil && (h.opts.Nothrow || (!h.opts.ThrowOnNonZero && kind == xerr.CommandFailed)) {
		err = nil // suppressed; the Result still carries Cause
	}

	h.mu.Lock()
	h.result = result
	h.err = err
	h.mu.Unlock()

	switch {
	case err != nil && h.ctx.Err() != nil:
		h.state.Store(int32(StateCancelled))
	case err != nil:
		h.state.Store(int32(StateFailed))
	default:
		h.state.Store(int32(StateCompleted))
	}
	close(h.doneCh)
}

func (h *Handle) runWithRetry() (*command.Result, error) {
	policy := h.opts.Retry
	if policy == nil {
		return h.runOnce()
	}

	predicate := policy.Predicate
	if predicate == nil {
		predicate = func(err error) bool {
			kind, ok := xerr.KindOf(err)
			if !ok {
				return false
			}
			return xerr.IsRetryableByDefault(kind)
		}
	}

	var (
		result *command.Result
		err    error
		delay  = policy.InitialDelay
	)
	maxAttempts := policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err = h.runOnce()
		if err == nil || attempt == maxAttempts || !predicate(err) {
			if err != nil && attempt > 1 {
				xlog.FromContext(h.ctx).Debug("retry exhausted", "adapter", h.adapterName, "attempts", attempt, "err", err)
			}
			return result, err
		}
		xlog.FromContext(h.ctx).Debug("retrying after failure", "adapter", h.adapterName, "attempt", attempt, "err", err)

		select {
		case <-h.ctx.Done():
			return result, context.Cause(h.ctx)
		case <-time.After(fullJitter(delay)):
		}

		delay = time.Duration(float64(delay) * policy.Factor)
		if policy.MaxDelay > 0 && delay > policy.MaxDelay {
			delay = policy.MaxDelay
		}
	}
	return result, err
}

// fullJitter implements full-jitter backoff: a uniform random delay between
// zero and d.
func fullJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return time.Duration(jitterSource.Int64N(int64(d)))
}

func (h *Handle) runOnce() (*command.Result, error) {
	return h.runOnceWith(h.ctx, h.stdin)
}

func (h *Handle) runOnceWith(ctx context.Context, stdin io.Reader) (*command.Result, error) {
	result, err := h.runner(ctx, stdin)
	if result == nil {
		result = &command.Result{Cause: err, Adapter: h.adapterName}
	}
	if err != nil {
		result.Cause = err
	}
	return result, err
}

// Wait blocks until the handle completes and returns its Result. Awaiting
// a completed handle multiple times replays the same Result.
func (h *Handle) Wait(ctx context.Context) (*command.Result, error) {
	h.ensureStarted()
	select {
	case <-h.doneCh:
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.result, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Kill transitions the handle to cancelling and signals the runner via
// context cancellation; awaiters observe Cancelled once the runner
// confirms process exit.
func (h *Handle) Kill(signal string) error {
	if h.State() == StateNotStarted {
		// Cancellation before start is O(1): mark terminal and lock out
		// startOnce so a later Wait/ensureStarted can never invoke the
		// runner after all.
		if h.state.CompareAndSwap(int32(StateNotStarted), int32(StateCancelled)) {
			h.cancel(fmt.Errorf("%w: killed before start", errCancelled))
			h.startOnce.Do(func() {})
			h.mu.Lock()
			h.err = context.Cause(h.ctx)
			h.mu.Unlock()
			close(h.doneCh)
		}
		return nil
	}
	h.cancel(fmt.Errorf("%w: signal %s", errCancelled, signal))
	return nil
}

var errCancelled = xerr.New(xerr.Cancelled, "", nil)

// Text waits for completion and returns stdout trimmed of a single
// trailing newline, mirroring the common "$`cmd`" ergonomic accessor.
func (h *Handle) Text(ctx context.Context) (string, error) {
	res, err := h.Wait(ctx)
	if res == nil {
		return "", err
	}
	return trimTrailingNewline(res.StdoutString()), err
}

func trimTrailingNewline(s string) string {
	if len(s) > 0 && s[len(s)-1] == '\n' {
		return s[:len(s)-1]
	}
	return s
}

// JSON waits for completion and unmarshals stdout into v.
func (h *Handle) JSON(ctx context.Context, v any) error {
	res, err := h.Wait(ctx)
	if err != nil {
		return err
	}
	return json.Unmarshal(res.Stdout, v)
}

// Lines waits for completion and invokes fn once per stdout line, with the
// line terminator stripped.
func (h *Handle) Lines(ctx context.Context, fn func(line string)) error {
	res, err := h.Wait(ctx)
	if res == nil {
		return err
	}
	scanner := bufio.NewScanner(bytes.NewReader(res.Stdout))
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		fn(scanner.Text())
	}
	if scanErr := scanner.Err(); scanErr != nil {
		return scanErr
	}
	return err
}

// Pipe schedules other with this handle's stdout as its stdin. The source
// is fully buffered before the consumer starts; a result is either fully
// buffered or streamed, never both. Failure of the
// producer propagates as PipelineAborted with the producer's Result attached.
func (h *Handle) Pipe(ctx context.Context, other *Handle) *Handle {
	combined := New(ctx, other.adapterName, other.opts, func(innerCtx context.Context, _ io.Reader) (*command.Result, error) {
		producerResult, producerErr := h.Wait(innerCtx)
		if producerErr != nil {
			return producerResult, xerr.New(xerr.PipelineAborted, h.adapterName, producerErr)
		}
		return other.runOnceWith(innerCtx, bytes.NewReader(producerResult.Stdout))
	})
	return combined
}
