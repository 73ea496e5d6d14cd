// SPDX-License-Identifier: MPL-2.0

// Package dockercli builds argv slices for the `docker compose` binary.
// The wrappers are deliberately thin: they assemble flags and leave process
// handling to the caller, so compose failures surface with the same
// semantics as any other subprocess.
package dockercli

import (
	"context"
	"os/exec"
	"strconv"
)

// ComposeOptions configures a `docker compose` invocation shared by every
// compose sub-command.
type ComposeOptions struct {
	Files      []string // -f flags, in order
	Project    string   // -p; empty means compose infers it from the directory
	WorkingDir string   // --project-directory; empty means compose's cwd
}

func (o ComposeOptions) baseArgs() []string {
	args := make([]string, 0, len(o.Files)*2+4)
	for _, f := range o.Files {
		args = append(args, "-f", f)
	}
	if o.Project != "" {
		args = append(args, "-p", o.Project)
	}
	if o.WorkingDir != "" {
		args = append(args, "--project-directory", o.WorkingDir)
	}
	return args
}

// UpArgs builds `compose up` arguments. Detach is always set: the
// command/task runner never wants compose to hold the terminal.
func UpArgs(opts ComposeOptions, services []string) []string {
	args := append([]string{"compose"}, opts.baseArgs()...)
	args = append(args, "up", "-d")
	return append(args, services...)
}

// DownArgs builds `compose down` arguments.
func DownArgs(opts ComposeOptions, removeVolumes bool) []string {
	args := append([]string{"compose"}, opts.baseArgs()...)
	args = append(args, "down")
	if removeVolumes {
		args = append(args, "-v")
	}
	return args
}

// PsArgs builds `compose ps` arguments, requesting JSON output for
// machine parsing.
func PsArgs(opts ComposeOptions) []string {
	args := append([]string{"compose"}, opts.baseArgs()...)
	return append(args, "ps", "--format", "json")
}

// LogsArgs builds `compose logs` arguments.
func LogsArgs(opts ComposeOptions, services []string, follow bool, tail int) []string {
	args := append([]string{"compose"}, opts.baseArgs()...)
	args = append(args, "logs")
	if follow {
		args = append(args, "-f")
	}
	if tail > 0 {
		args = append(args, "--tail", strconv.Itoa(tail))
	}
	return append(args, services...)
}

// Command builds the *exec.Cmd for a `docker` invocation with the given
// argv, using binaryPath resolved by the caller (normally "docker" via
// exec.LookPath).
func Command(ctx context.Context, binaryPath string, args ...string) *exec.Cmd {
	return exec.CommandContext(ctx, binaryPath, args...)
}
