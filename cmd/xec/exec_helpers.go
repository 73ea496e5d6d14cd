// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/xec-sh/xec/internal/command"
	"github.com/xec-sh/xec/internal/engine"
	"github.com/xec-sh/xec/internal/shellquote"
	"github.com/xec-sh/xec/internal/target"
)

// joinShellLine escapes and joins argv into a single POSIX shell string, the
// same per-token quoting the SSH adapter uses to reproduce an argv command
// as a shell invocation (internal/adapter/ssh's commandString). Every
// built-in command that accepts a trailing `<command...>` goes through this
// so a caller's arguments never need to be shell-escaped by hand.
func joinShellLine(args []string) (string, error) {
	parts := make([]string, len(args))
	for i, a := range args {
		q, err := shellquote.Quote(shellquote.DialectPOSIX, a)
		if err != nil {
			return "", err
		}
		parts[i] = q
	}
	return strings.Join(parts, " "), nil
}

// buildShellOptions renders argv as a single escaped shell string and wraps
// it in Options with shell mode enabled.
func buildShellOptions(args []string) (command.Options, error) {
	rendered, err := joinShellLine(args)
	if err != nil {
		return command.Options{}, err
	}
	opts := command.Options{Command: command.New(rendered)}
	opts.Shell = command.ShellMode{Enabled: true}
	return opts, nil
}

// renderDisplay formats opts for --dry-run output: the shell string when
// shell-wrapped, or the escaped argv line otherwise.
func renderDisplay(opts command.Options) string {
	if opts.Shell.Enabled && len(opts.Args) == 0 {
		return opts.Program
	}
	line, err := joinShellLine(append([]string{opts.Program}, opts.Args...))
	if err != nil {
		return opts.Program
	}
	return line
}

// execOnTarget layers the configuration's defaults onto opts, resolves the
// Adapter for tgt via the shared engine, and runs opts to completion.
func execOnTarget(ctx context.Context, eng *engine.Engine, tgt target.Target, opts command.Options) (*command.Result, error) {
	opts = engine.ApplyDefaults(eng.Config.Defaults, opts)

	a, err := eng.AdapterFor(ctx, tgt)
	if err != nil {
		return nil, err
	}
	handle, err := a.Execute(ctx, opts)
	if err != nil {
		return nil, err
	}
	return handle.Wait(ctx)
}

// printResult mirrors a finished Result's stdout/stderr to the process's own
// streams unless quiet is set.
func printResult(result *command.Result, quiet bool) {
	if result == nil || quiet {
		return
	}
	if len(result.Stdout) > 0 {
		os.Stdout.Write(result.Stdout)
	}
	if len(result.Stderr) > 0 {
		os.Stderr.Write(result.Stderr)
	}
}

// dryRunLine prints the resolved target and rendered command for --dry-run.
func dryRunLine(tgt target.Target, opts command.Options) {
	fmt.Fprintf(os.Stdout, "%s %s\n", subtitleStyle.Render(tgt.String()+":"), cmdStyle.Render(renderDisplay(opts)))
}
