// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xec-sh/xec/internal/command"
	"github.com/xec-sh/xec/internal/parallel"
	"github.com/xec-sh/xec/internal/target"
	"github.com/xec-sh/xec/pkg/types"
)

// newOnCommand implements `on <host[,host…]> <command…>`:
// resolve each host to an SSH target and execute the command, fanning out
// with --parallel up to --concurrency (default: count of hosts).
func newOnCommand() *cobra.Command {
	var (
		runParallel bool
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "on <host[,host...]> <command...>",
		Short: "Run a command over SSH on one or more configured hosts",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			hosts := strings.Split(args[0], ",")
			opts, err := buildShellOptions(args[1:])
			if err != nil {
				return usageError(err)
			}

			targets := make([]target.Target, len(hosts))
			for i, h := range hosts {
				tgt, err := cfg.ResolveTarget(strings.TrimSpace(h))
				if err != nil {
					return err
				}
				if tgt.Kind != target.SSH {
					return usageError(fmt.Errorf("xec: on: %q does not resolve to an SSH host", h))
				}
				targets[i] = tgt
			}

			if runParallel && len(targets) > 1 {
				return runOnParallel(cmd, targets, opts, concurrency)
			}
			return runOnSequential(cmd, targets, opts)
		},
	}

	cmd.Flags().BoolVar(&runParallel, "parallel", false, "run against every host concurrently")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "max concurrent hosts when --parallel is set (default: all hosts)")
	return cmd
}

func runOnSequential(cmd *cobra.Command, targets []target.Target, opts command.Options) error {
	ctx := cmd.Context()
	exitCode := types.ExitCode(0)
	for _, tgt := range targets {
		if dryRun {
			dryRunLine(tgt, opts)
			continue
		}
		result, err := execOnTarget(ctx, eng, tgt, opts)
		printResult(result, quiet)
		if err != nil {
			reportFailure(result, err, verbose, jsonOutput)
			if code := exitCodeFor(result, err); code > exitCode {
				exitCode = code
			}
			continue
		}
	}
	if exitCode != 0 {
		return &ExitError{Code: exitCode}
	}
	return nil
}

func runOnParallel(cmd *cobra.Command, targets []target.Target, opts command.Options, concurrency int) error {
	ctx := cmd.Context()
	if dryRun {
		for _, tgt := range targets {
			dryRunLine(tgt, opts)
		}
		return nil
	}

	type outcome struct {
		result *command.Result
		err    error
	}
	batched := parallel.Batch(ctx, targets, concurrency, func(ctx context.Context, tgt target.Target) (outcome, error) {
		result, err := execOnTarget(ctx, eng, tgt, opts)
		return outcome{result: result, err: err}, nil
	})

	exitCode := types.ExitCode(0)
	for _, b := range batched {
		printResult(b.Output.result, quiet)
		if b.Output.err != nil {
			reportFailure(b.Output.result, b.Output.err, verbose, jsonOutput)
			if code := exitCodeFor(b.Output.result, b.Output.err); code > exitCode {
				exitCode = code
			}
		}
	}
	if exitCode != 0 {
		return &ExitError{Code: exitCode}
	}
	return nil
}
