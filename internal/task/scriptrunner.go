// SPDX-License-Identifier: MPL-2.0

package task

import (
	"context"
	"errors"

	"github.com/xec-sh/xec/internal/command"
)

// ErrScriptRunnerUnavailable is returned by UnavailableScriptRunner: the
// script-file and --eval execution paths depend on the external
// script-runner collaborator (its TypeScript-transpilation loop and CDN
// module fetch), which is explicitly out of scope for this module.
var ErrScriptRunnerUnavailable = errors.New("task: script execution requires the external script-runner collaborator, which is not configured")

// ScriptRunner is the boundary the engine calls through for a `script` task
// step and for the CLI dispatcher's script-file/--eval paths. The engine
// depends only on this interface; no script-runner implementation lives in
// this module.
type ScriptRunner interface {
	RunFile(ctx context.Context, path string, args []string) (*command.Result, error)
	Eval(ctx context.Context, code string, args []string) (*command.Result, error)
}

// UnavailableScriptRunner is the default ScriptRunner: every call fails with
// ErrScriptRunnerUnavailable. It lets the task runner and CLI dispatcher be
// fully wired and testable before a real script-runner is plugged in.
type UnavailableScriptRunner struct{}

// RunFile implements ScriptRunner.
func (UnavailableScriptRunner) RunFile(ctx context.Context, path string, args []string) (*command.Result, error) {
	return nil, ErrScriptRunnerUnavailable
}

// Eval implements ScriptRunner.
func (UnavailableScriptRunner) Eval(ctx context.Context, code string, args []string) (*command.Result, error) {
	return nil, ErrScriptRunnerUnavailable
}
