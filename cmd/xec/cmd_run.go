// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xec-sh/xec/internal/adapter"
	"github.com/xec-sh/xec/internal/target"
	"github.com/xec-sh/xec/internal/task"
	"github.com/xec-sh/xec/pkg/types"
)

// newRunCommand implements `run <script-or-task> [--param k=v]...`: a
// script file is delegated to the script-runner, a task name executes its
// steps through the shared engine's adapters.
func newRunCommand() *cobra.Command {
	var params []string

	cmd := &cobra.Command{
		Use:   "run <script-or-task>",
		Short: "Run a script file or a named task from the configuration",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if looksLikeScriptFile(args[0]) {
				return dispatchBare(cmd.Context(), cmd, args)
			}

			overrides, err := parseParams(params)
			if err != nil {
				return usageError(err)
			}

			runner := task.NewRunner(cfg, func(ctx context.Context, tgt target.Target) (adapter.Adapter, error) {
				return eng.AdapterFor(ctx, tgt)
			}, nil)

			report, err := runner.Run(cmd.Context(), args[0], overrides)
			if report != nil {
				printTaskReport(report)
			}
			if err != nil {
				return &ExitError{Code: exitCodeForTask(err)}
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&params, "param", nil, "task parameter override as name=value (repeatable)")
	return cmd
}

func parseParams(raw []string) (map[string]string, error) {
	out := make(map[string]string, len(raw))
	for _, p := range raw {
		name, value, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("xec: run: --param %q: expected name=value", p)
		}
		out[name] = value
	}
	return out, nil
}

func printTaskReport(report *task.Report) {
	for _, step := range report.Steps {
		label := fmt.Sprintf("%s[%d]", report.Task, step.StepIdx)
		if step.Err != nil {
			fmt.Fprintf(os.Stderr, "%s %s: %v\n", failureSymbol(), label, step.Err)
			continue
		}
		printResult(step.Result, quiet)
		fmt.Fprintf(os.Stdout, "%s %s\n", successStyle.Render("✓"), label)
	}
}

func exitCodeForTask(err error) types.ExitCode {
	if err == nil {
		return 0
	}
	return exitCodeFor(nil, err)
}

// runEval implements the `--eval`/`-e` global flag: delegate inline script
// text to the task runner's ScriptRunner collaborator. No script-runner is
// wired into this module, so
// this always surfaces ErrScriptRunnerUnavailable until one is configured.
func runEval(ctx context.Context, code string, args []string) error {
	result, err := (task.UnavailableScriptRunner{}).Eval(ctx, code, args)
	printResult(result, quiet)
	if err != nil {
		reportFailure(result, err, verbose, jsonOutput)
		return &ExitError{Code: exitCodeFor(result, err)}
	}
	return nil
}
