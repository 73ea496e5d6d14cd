// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xec-sh/xec/internal/adapter"
	"github.com/xec-sh/xec/internal/strdist"
	"github.com/xec-sh/xec/internal/target"
	"github.com/xec-sh/xec/internal/task"
	"github.com/xec-sh/xec/internal/xerr"
)

// scriptExtensions mark a first positional as a script file for the
// external script-runner, even when the file does not exist yet.
var scriptExtensions = map[string]bool{
	".js": true, ".mjs": true, ".cjs": true,
	".ts": true, ".mts": true, ".cts": true,
}

// maxCommandSuggestDistance bounds the "did you mean" suggestion for an
// unknown bare argument.
const maxCommandSuggestDistance = 2

// looksLikeScriptFile reports whether the first positional should be
// delegated to the script-runner: it carries a script extension, or it
// names an existing regular file.
func looksLikeScriptFile(arg string) bool {
	if scriptExtensions[strings.ToLower(filepath.Ext(arg))] {
		return true
	}
	info, err := os.Stat(arg)
	return err == nil && info.Mode().IsRegular()
}

// dispatchBare handles a first positional that matched no registered
// subcommand: a script file goes to the script-runner, a configured task
// name goes to the task runner, anything else fails as UnknownCommand with
// an edit-distance suggestion.
func dispatchBare(ctx context.Context, cmd *cobra.Command, args []string) error {
	name := args[0]

	if looksLikeScriptFile(name) {
		result, err := (task.UnavailableScriptRunner{}).RunFile(ctx, name, args[1:])
		printResult(result, quiet)
		if err != nil {
			reportFailure(result, err, verbose, jsonOutput)
			return &ExitError{Code: exitCodeFor(result, err), Err: err}
		}
		return nil
	}

	if _, ok := cfg.Tasks[name]; ok {
		runner := task.NewRunner(cfg, func(ctx context.Context, tgt target.Target) (adapter.Adapter, error) {
			return eng.AdapterFor(ctx, tgt)
		}, nil)
		report, err := runner.Run(ctx, name, nil)
		if report != nil {
			printTaskReport(report)
		}
		if err != nil {
			return &ExitError{Code: exitCodeForTask(err), Err: err}
		}
		return nil
	}

	return unknownCommand(cmd, name)
}

// unknownCommand builds the UnknownCommand failure, suggesting the closest
// registered command or task name within edit distance 2.
func unknownCommand(cmd *cobra.Command, name string) error {
	candidates := make([]string, 0, len(cfg.Tasks)+16)
	for _, c := range cmd.Root().Commands() {
		candidates = append(candidates, c.Name())
	}
	for taskName := range cfg.Tasks {
		candidates = append(candidates, taskName)
	}

	msg := fmt.Sprintf("unknown command or task %q", name)
	if best, ok := strdist.Closest(name, candidates, maxCommandSuggestDistance); ok {
		msg += fmt.Sprintf(", did you mean %q?", best)
	}
	return usageError(xerr.Newf(xerr.UnknownCommand, "cli", "%s", msg))
}
