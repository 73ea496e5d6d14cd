// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/xec-sh/xec/internal/command"
	"github.com/xec-sh/xec/internal/target"
	"github.com/xec-sh/xec/internal/watch"
)

// newWatchCommand implements `watch <glob...> --exec
// <command>`: re-run a local command whenever a matching file changes,
// debounced so a burst of edits fires once.
func newWatchCommand() *cobra.Command {
	var (
		execLine    string
		ignore      []string
		debounce    time.Duration
		clearScreen bool
	)

	cmd := &cobra.Command{
		Use:   "watch <pattern...>",
		Short: "Re-run a command whenever matching files change",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if execLine == "" {
				return usageError(fmt.Errorf("xec: watch: --exec is required"))
			}

			w, err := watch.New(watch.Config{
				Patterns:    args,
				Ignore:      ignore,
				Debounce:    debounce,
				ClearScreen: clearScreen,
				BaseDir:     cwdFlag,
				OnChange: func(ctx context.Context, changed []string) error {
					return runWatchExec(ctx, execLine, changed)
				},
			})
			if err != nil {
				return err
			}
			defer w.Close()

			fmt.Fprintf(os.Stdout, "%s watching %v\n", subtitleStyle.Render("watch"), args)
			return w.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&execLine, "exec", "", "shell command to run on each change")
	cmd.Flags().StringSliceVar(&ignore, "ignore", nil, "additional glob patterns to ignore")
	cmd.Flags().DurationVar(&debounce, "debounce", 0, "quiet period after the last event before re-running")
	cmd.Flags().BoolVar(&clearScreen, "clear", false, "clear the terminal before each run")
	return cmd
}

func runWatchExec(ctx context.Context, execLine string, changed []string) error {
	opts := command.Options{Command: command.New(execLine)}
	opts.Shell = command.ShellMode{Enabled: true}

	result, err := execOnTarget(ctx, eng, target.NewLocal(), opts)
	printResult(result, false)
	if err != nil {
		reportFailure(result, err, verbose, jsonOutput)
	}
	return nil
}
