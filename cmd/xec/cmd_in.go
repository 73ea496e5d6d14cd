// SPDX-License-Identifier: MPL-2.0

package main

import (
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// newInCommand implements `in <target> <command…>`: resolve
// a container/pod (accepting `pod:name`, `docker:name`, or a bare configured
// name) and execute the command against it.
func newInCommand() *cobra.Command {
	var interactive bool

	cmd := &cobra.Command{
		Use:   "in <target> <command...>",
		Short: "Run a command inside a Docker container or Kubernetes pod",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tgt, err := cfg.ResolveTarget(args[0])
			if err != nil {
				return err
			}
			opts, err := buildShellOptions(args[1:])
			if err != nil {
				return usageError(err)
			}

			if interactive {
				opts.Stdin = os.Stdin
				restore, rawErr := makeStdinRaw()
				if rawErr == nil {
					defer restore()
				}
			}

			if dryRun {
				dryRunLine(tgt, opts)
				return nil
			}

			result, err := execOnTarget(cmd.Context(), eng, tgt, opts)
			printResult(result, quiet)
			if err != nil {
				reportFailure(result, err, verbose, jsonOutput)
				return &ExitError{Code: exitCodeFor(result, err)}
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "forward stdin to the remote command (raw mode when attached to a terminal)")
	return cmd
}

// makeStdinRaw switches the controlling terminal into raw mode so keystrokes
// reach the remote side unbuffered, returning a restore function. A
// non-terminal stdin (a pipe, a redirect) is left untouched.
func makeStdinRaw() (func(), error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return func() {}, nil
	}
	state, err := term.MakeRaw(fd)
	if err != nil {
		return func() {}, err
	}
	return func() { _ = term.Restore(fd, state) }, nil
}
