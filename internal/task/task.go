// SPDX-License-Identifier: MPL-2.0

// Package task implements the task runner: named, parameterized,
// multi-step command sequences executed against resolved targets, with
// per-task parallelism and fail-fast/continue-on-error control. Step
// fan-out is built on internal/parallel.
package task

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/xec-sh/xec/internal/adapter"
	"github.com/xec-sh/xec/internal/command"
	"github.com/xec-sh/xec/internal/config"
	"github.com/xec-sh/xec/internal/parallel"
	"github.com/xec-sh/xec/internal/shellquote"
	"github.com/xec-sh/xec/internal/target"
	"github.com/xec-sh/xec/internal/xerr"
)

// AdapterFactory resolves a target into the Adapter that executes against
// it. The task runner never constructs adapters itself, since doing so
// correctly requires the shared SSH pool and Docker/K8s client
// construction that the CLI entry point owns.
type AdapterFactory func(ctx context.Context, tgt target.Target) (adapter.Adapter, error)

// StepResult is one executed step's outcome.
type StepResult struct {
	TaskName string
	StepIdx  int
	Target   target.Target
	Result   *command.Result
	Err      error
}

// Report is the outcome of one Run call: every step result in the order
// they were scheduled (not necessarily the order they finished, when the
// task runs in parallel mode).
type Report struct {
	Task  string
	Steps []StepResult
}

// Runner executes named tasks from a loaded configuration.
type Runner struct {
	cfg          *config.Config
	newAdapter   AdapterFactory
	scriptRunner ScriptRunner
}

// NewRunner constructs a task Runner. scriptRunner may be nil, in which
// case UnavailableScriptRunner is used.
func NewRunner(cfg *config.Config, newAdapter AdapterFactory, scriptRunner ScriptRunner) *Runner {
	if scriptRunner == nil {
		scriptRunner = UnavailableScriptRunner{}
	}
	return &Runner{cfg: cfg, newAdapter: newAdapter, scriptRunner: scriptRunner}
}

// Run executes the named task with the given parameter overrides.
func (r *Runner) Run(ctx context.Context, name string, params map[string]string) (*Report, error) {
	return r.run(ctx, name, params, nil)
}

// run is Run's recursive worker; stack carries the chain of task names
// currently being expanded, so a `task` step referencing an ancestor is
// caught as TaskCycle instead of recursing forever.
func (r *Runner) run(ctx context.Context, name string, params map[string]string, stack []string) (*Report, error) {
	t, ok := r.cfg.Tasks[name]
	if !ok {
		return nil, xerr.Newf(xerr.UnknownTask, "task", "no task named %q", name)
	}
	for _, seen := range stack {
		if seen == name {
			return nil, xerr.Newf(xerr.TaskCycle, "task", "task cycle: %s -> %s", strings.Join(stack, " -> "), name)
		}
	}
	stack = append(stack, name)

	resolved, err := resolveParams(t.Params, params)
	if err != nil {
		return nil, err
	}

	report := &Report{Task: name, Steps: make([]StepResult, len(t.Steps))}

	run := func(idx int) StepResult {
		return r.runStep(ctx, name, idx, t, t.Steps[idx], resolved, stack)
	}

	if t.Parallel {
		concurrency := t.MaxConcurrency
		indices := make([]int, len(t.Steps))
		for i := range indices {
			indices[i] = i
		}
		batched := parallel.Batch(ctx, indices, concurrency, func(ctx context.Context, idx int) (StepResult, error) {
			res := run(idx)
			return res, nil
		})
		var failures *multierror.Error
		for _, b := range batched {
			report.Steps[b.Index] = b.Output
			if b.Output.Err != nil {
				failures = multierror.Append(failures, fmt.Errorf("step %d: %w", b.Index, b.Output.Err))
			}
		}
		if failures != nil && !t.ContinueOnError {
			return report, failures.ErrorOrNil()
		}
		return report, nil
	}

	for idx := range t.Steps {
		res := run(idx)
		report.Steps[idx] = res
		if res.Err != nil && !t.ContinueOnError {
			return report, fmt.Errorf("task %s step %d: %w", name, idx, res.Err)
		}
	}
	return report, nil
}

func (r *Runner) runStep(ctx context.Context, taskName string, idx int, t config.Task, step config.TaskStep, params map[string]string, stack []string) StepResult {
	targets, err := r.resolveStepTargets(t, step)
	if err != nil {
		return StepResult{TaskName: taskName, StepIdx: idx, Err: err}
	}

	// A step against more than one target (via the task's default
	// `targets` list) runs that one step on every target through
	// runStepMulti. Its StepResult names the first target, carries no
	// Result, and joins every per-target failure into Err.
	if len(targets) > 1 {
		return r.runStepMulti(ctx, taskName, idx, step, targets, params, stack)
	}

	tgt := targets[0]
	result, err := r.execStep(ctx, step, tgt, params, stack)
	return StepResult{TaskName: taskName, StepIdx: idx, Target: tgt, Result: result, Err: err}
}

func (r *Runner) runStepMulti(ctx context.Context, taskName string, idx int, step config.TaskStep, targets []target.Target, params map[string]string, stack []string) StepResult {
	batched := parallel.Batch(ctx, targets, len(targets), func(ctx context.Context, tgt target.Target) (*command.Result, error) {
		return r.execStep(ctx, step, tgt, params, stack)
	})

	var failures *multierror.Error
	for i, b := range batched {
		if b.Err != nil {
			failures = multierror.Append(failures, fmt.Errorf("%s: %w", targets[i].String(), b.Err))
		}
	}
	return StepResult{TaskName: taskName, StepIdx: idx, Target: targets[0], Err: failures.ErrorOrNil()}
}

func (r *Runner) execStep(ctx context.Context, step config.TaskStep, tgt target.Target, params map[string]string, stack []string) (*command.Result, error) {
	switch {
	case step.Task != "":
		sub := mergeStepParams(params, step.Params)
		report, err := r.run(ctx, step.Task, sub, stack)
		if err != nil {
			return nil, err
		}
		if len(report.Steps) == 0 {
			return &command.Result{HasExit: true, ExitCode: 0}, nil
		}
		last := report.Steps[len(report.Steps)-1]
		return last.Result, last.Err

	case step.Script != "":
		return r.scriptRunner.RunFile(ctx, step.Script, nil)

	default:
		return r.execCommand(ctx, step.Command, tgt, params)
	}
}

func (r *Runner) execCommand(ctx context.Context, cmdTemplate string, tgt target.Target, params map[string]string) (*command.Result, error) {
	rendered, err := substitute(shellquote.DialectPOSIX, cmdTemplate, params)
	if err != nil {
		return nil, err
	}

	a, err := r.newAdapter(ctx, tgt)
	if err != nil {
		return nil, err
	}

	opts := command.Options{Command: command.New(rendered)}
	opts.Shell = command.ShellMode{Enabled: true}

	handle, err := a.Execute(ctx, opts)
	if err != nil {
		return nil, err
	}
	return handle.Wait(ctx)
}

// resolveStepTargets applies the target-selection precedence: the
// step's own target, then the task's primary target, then a fan-out over
// the task's default `targets` list, finally local.
func (r *Runner) resolveStepTargets(t config.Task, step config.TaskStep) ([]target.Target, error) {
	switch {
	case step.Target != "":
		tgt, err := r.cfg.ResolveTarget(step.Target)
		if err != nil {
			return nil, err
		}
		return []target.Target{tgt}, nil

	case t.Target != "":
		tgt, err := r.cfg.ResolveTarget(t.Target)
		if err != nil {
			return nil, err
		}
		return []target.Target{tgt}, nil

	case len(t.Targets) > 0:
		out := make([]target.Target, 0, len(t.Targets))
		for _, name := range t.Targets {
			tgt, err := r.cfg.ResolveTarget(name)
			if err != nil {
				return nil, err
			}
			out = append(out, tgt)
		}
		return out, nil

	default:
		return []target.Target{target.NewLocal()}, nil
	}
}

// resolveParams merges caller-provided params onto the task's declared
// schema: declared parameters fall back to their default, or raise
// ParamRequired when required and absent; undeclared caller-provided
// values pass through unchanged so `${name}` can reference ad hoc values.
func resolveParams(spec map[string]config.ParamSpec, provided map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(spec)+len(provided))
	for name, p := range spec {
		if v, ok := provided[name]; ok {
			out[name] = v
			continue
		}
		if p.Required {
			return nil, xerr.Newf(xerr.ParamRequired, "task", "missing required parameter %q", name)
		}
		out[name] = p.Default
	}
	for name, v := range provided {
		if _, ok := out[name]; !ok {
			out[name] = v
		}
	}
	return out, nil
}

// mergeStepParams layers a `task` step's param overrides onto the parent
// task's resolved parameters for the sub-task call.
func mergeStepParams(parent map[string]string, overrides map[string]string) map[string]string {
	out := make(map[string]string, len(parent)+len(overrides))
	for k, v := range parent {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}
