// SPDX-License-Identifier: MPL-2.0

package task

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xec-sh/xec/internal/adapter"
	"github.com/xec-sh/xec/internal/command"
	"github.com/xec-sh/xec/internal/config"
	"github.com/xec-sh/xec/internal/process"
	"github.com/xec-sh/xec/internal/target"
	"github.com/xec-sh/xec/internal/xerr"
)

// recordingAdapter implements adapter.Adapter and records every rendered
// command it was asked to execute.
type recordingAdapter struct {
	mu       sync.Mutex
	commands []string
	fail     map[string]bool // commands that should synthesize a non-nil error
}

func (r *recordingAdapter) Name() string { return "fake" }

func (r *recordingAdapter) Execute(ctx context.Context, opts command.Options) (*process.Handle, error) {
	r.mu.Lock()
	r.commands = append(r.commands, opts.Program)
	shouldFail := r.fail[opts.Program]
	r.mu.Unlock()

	return process.New(ctx, r.Name(), opts, func(ctx context.Context, stdin io.Reader) (*command.Result, error) {
		if shouldFail {
			err := xerr.New(xerr.CommandFailed, "fake", nil)
			return &command.Result{ExitCode: 1, HasExit: true, Cause: err}, err
		}
		return &command.Result{ExitCode: 0, HasExit: true, Stdout: []byte(opts.Program)}, nil
	}), nil
}

func (r *recordingAdapter) Stream(ctx context.Context, opts command.Options) (*adapter.StreamResult, error) {
	return nil, nil
}
func (r *recordingAdapter) CopyIn(ctx context.Context, localSrc, remoteDst string, progress adapter.ProgressFunc) error {
	return nil
}
func (r *recordingAdapter) CopyOut(ctx context.Context, remoteSrc, localDst string, progress adapter.ProgressFunc) error {
	return nil
}
func (r *recordingAdapter) Dispose(ctx context.Context) (*adapter.DisposeReport, error) {
	return &adapter.DisposeReport{Complete: true}, nil
}

func newTestRunner(cfg *config.Config, fail map[string]bool) (*Runner, *recordingAdapter) {
	fa := &recordingAdapter{fail: fail}
	factory := func(ctx context.Context, tgt target.Target) (adapter.Adapter, error) {
		return fa, nil
	}
	return NewRunner(cfg, factory, nil), fa
}

func TestRunSequentialStepsInOrder(t *testing.T) {
	cfg := &config.Config{Tasks: map[string]config.Task{
		"build": {
			Steps: []config.TaskStep{
				{Command: "echo one"},
				{Command: "echo two"},
			},
		},
	}}
	runner, fa := newTestRunner(cfg, nil)

	report, err := runner.Run(context.Background(), "build", nil)
	require.NoError(t, err)
	require.Len(t, report.Steps, 2)
	assert.Equal(t, []string{"echo one", "echo two"}, fa.commands)
}

func TestRunSubstitutesParams(t *testing.T) {
	cfg := &config.Config{Tasks: map[string]config.Task{
		"greet": {
			Params: map[string]config.ParamSpec{
				"name": {Default: "world"},
			},
			Steps: []config.TaskStep{
				{Command: "echo hello ${name}"},
			},
		},
	}}
	runner, fa := newTestRunner(cfg, nil)

	_, err := runner.Run(context.Background(), "greet", map[string]string{"name": "it's-me"})
	require.NoError(t, err)
	require.Len(t, fa.commands, 1)
	assert.Equal(t, `echo hello 'it'\''s-me'`, fa.commands[0])
}

func TestRunMissingRequiredParamFails(t *testing.T) {
	cfg := &config.Config{Tasks: map[string]config.Task{
		"deploy": {
			Params: map[string]config.ParamSpec{
				"env": {Required: true},
			},
			Steps: []config.TaskStep{{Command: "echo ${env}"}},
		},
	}}
	runner, _ := newTestRunner(cfg, nil)

	_, err := runner.Run(context.Background(), "deploy", nil)
	require.Error(t, err)
	kind, ok := xerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, xerr.ParamRequired, kind)
}

func TestRunFailFastStopsAtFirstFailure(t *testing.T) {
	cfg := &config.Config{Tasks: map[string]config.Task{
		"build": {
			Steps: []config.TaskStep{
				{Command: "step-one"},
				{Command: "step-two"},
				{Command: "step-three"},
			},
		},
	}}
	runner, fa := newTestRunner(cfg, map[string]bool{"step-two": true})

	_, err := runner.Run(context.Background(), "build", nil)
	require.Error(t, err)
	assert.Equal(t, []string{"step-one", "step-two"}, fa.commands)
}

func TestRunContinueOnErrorRunsEveryStep(t *testing.T) {
	cfg := &config.Config{Tasks: map[string]config.Task{
		"build": {
			ContinueOnError: true,
			Steps: []config.TaskStep{
				{Command: "step-one"},
				{Command: "step-two"},
				{Command: "step-three"},
			},
		},
	}}
	runner, fa := newTestRunner(cfg, map[string]bool{"step-two": true})

	report, err := runner.Run(context.Background(), "build", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"step-one", "step-two", "step-three"}, fa.commands)
	assert.Error(t, report.Steps[1].Err)
	assert.NoError(t, report.Steps[2].Err)
}

func TestRunTaskStepRecursesIntoSubtask(t *testing.T) {
	cfg := &config.Config{Tasks: map[string]config.Task{
		"parent": {
			Steps: []config.TaskStep{{Task: "child"}},
		},
		"child": {
			Steps: []config.TaskStep{{Command: "echo from-child"}},
		},
	}}
	runner, fa := newTestRunner(cfg, nil)

	_, err := runner.Run(context.Background(), "parent", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"echo from-child"}, fa.commands)
}

func TestRunDetectsTaskCycle(t *testing.T) {
	cfg := &config.Config{Tasks: map[string]config.Task{
		"a": {Steps: []config.TaskStep{{Task: "b"}}},
		"b": {Steps: []config.TaskStep{{Task: "a"}}},
	}}
	runner, _ := newTestRunner(cfg, nil)

	_, err := runner.Run(context.Background(), "a", nil)
	require.Error(t, err)
	kind, ok := xerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, xerr.TaskCycle, kind)
}

func TestRunUnknownTaskFails(t *testing.T) {
	cfg := &config.Config{Tasks: map[string]config.Task{}}
	runner, _ := newTestRunner(cfg, nil)

	_, err := runner.Run(context.Background(), "nope", nil)
	require.Error(t, err)
	kind, ok := xerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, xerr.UnknownTask, kind)
}

func TestRunScriptStepUsesScriptRunner(t *testing.T) {
	cfg := &config.Config{Tasks: map[string]config.Task{
		"build": {Steps: []config.TaskStep{{Script: "build.sh"}}},
	}}
	runner, _ := newTestRunner(cfg, nil)

	_, err := runner.Run(context.Background(), "build", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrScriptRunnerUnavailable)
}
