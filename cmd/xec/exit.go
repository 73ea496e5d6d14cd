// SPDX-License-Identifier: MPL-2.0

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/xec-sh/xec/internal/command"
	"github.com/xec-sh/xec/internal/xerr"
	"github.com/xec-sh/xec/pkg/types"
)

// ExitError signals a specific process exit code without forcing os.Exit
// from deep inside a RunE handler.
type ExitError struct {
	Code types.ExitCode
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

func (e *ExitError) Unwrap() error { return e.Err }

// usageError wraps a flag/argument-parsing failure as exit code 2.
func usageError(err error) error {
	return &ExitError{Code: 2, Err: err}
}

// exitCodeFor maps a finished Result/error pair to an exit code: 0 success,
// 1 generic failure, 2 bad usage, 124 timeout, 126 permission, 127 command
// not found, 130 interrupted, otherwise the underlying process exit code is
// propagated verbatim.
func exitCodeFor(result *command.Result, err error) types.ExitCode {
	if err == nil && (result == nil || result.Ok()) {
		return 0
	}

	if kind, ok := xerr.KindOf(err); ok {
		switch kind {
		case xerr.Timeout, xerr.HealthCheckTimeout, xerr.PoolAcquisitionTimeout:
			return 124
		case xerr.Cancelled:
			return 130
		case xerr.SpawnFailed:
			if errors.Is(err, os.ErrPermission) {
				return 126
			}
			return 127
		}
	}

	if result != nil && result.HasExit {
		return types.ExitCode(result.ExitCode)
	}
	if result != nil && result.Signal == "SIGINT" {
		return 130
	}
	return 1
}

// reportFailure prints a human-readable failure summary, or a
// strictly single-line JSON block when jsonOutput is set.
func reportFailure(result *command.Result, err error, verbose, jsonOutput bool) {
	if jsonOutput {
		printJSONFailure(result, err)
		return
	}

	kind, _ := xerr.KindOf(err)
	adapter := ""
	duration := ""
	if result != nil {
		adapter = result.Adapter
		duration = result.Duration.String()
	}
	fmt.Fprintf(os.Stderr, "%s %s", failureSymbol(), errorStyle.Render(errMessage(err)))
	if kind != "" {
		fmt.Fprintf(os.Stderr, " %s", subtitleStyle.Render("("+string(kind)+")"))
	}
	fmt.Fprintln(os.Stderr)
	if adapter != "" {
		fmt.Fprintf(os.Stderr, "  %s %s\n", subtitleStyle.Render("adapter:"), adapter)
	}
	if duration != "" {
		fmt.Fprintf(os.Stderr, "  %s %s\n", subtitleStyle.Render("duration:"), duration)
	}
	if result != nil && len(result.Stderr) > 0 {
		lines := strings.Split(strings.TrimRight(result.StderrString(), "\n"), "\n")
		if !verbose && len(lines) > 20 {
			lines = lines[len(lines)-20:]
		}
		fmt.Fprintln(os.Stderr, subtitleStyle.Render("  stderr:"))
		for _, l := range lines {
			fmt.Fprintln(os.Stderr, "    "+l)
		}
	}
}

func errMessage(err error) string {
	if err == nil {
		return "command failed"
	}
	return err.Error()
}

type jsonFailure struct {
	Error    string `json:"error"`
	Kind     string `json:"kind,omitempty"`
	Adapter  string `json:"adapter,omitempty"`
	ExitCode int    `json:"exitCode,omitempty"`
}

func printJSONFailure(result *command.Result, err error) {
	kind, _ := xerr.KindOf(err)
	jf := jsonFailure{Error: errMessage(err), Kind: string(kind)}
	if result != nil {
		jf.Adapter = result.Adapter
		jf.ExitCode = result.ExitCode
	}
	b, marshalErr := json.Marshal(jf)
	if marshalErr != nil {
		fmt.Fprintln(os.Stderr, errMessage(err))
		return
	}
	fmt.Fprintln(os.Stderr, string(b))
}
