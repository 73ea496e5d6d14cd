// SPDX-License-Identifier: MPL-2.0

package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/xec-sh/xec/internal/command"
	"github.com/xec-sh/xec/internal/config"
	"github.com/xec-sh/xec/pkg/types"
)

func TestApplyDefaultsFillsUnsetFieldsOnly(t *testing.T) {
	throw := false
	d := config.Defaults{
		Timeout:  types.Duration(10 * time.Second),
		Shell:    "/bin/bash",
		Cwd:      "/srv",
		Encoding: "utf-8",
		Env:      map[string]string{"A": "default", "B": "default"},

		ThrowOnNonZeroExit: &throw,
	}

	opts := command.Options{Command: command.Command{
		Cwd:     "/app",
		Timeout: types.Duration(time.Second),
		Env:     map[string]string{"B": "mine"},
	}}

	out := ApplyDefaults(d, opts)

	assert.Equal(t, types.FilesystemPath("/app"), out.Cwd, "command cwd wins over default")
	assert.Equal(t, types.Duration(time.Second), out.Timeout, "command timeout wins over default")
	assert.True(t, out.Shell.Enabled, "default shell applies when the command set none")
	assert.Equal(t, "/bin/bash", out.Shell.Path)
	assert.Equal(t, "utf-8", out.Encoding)
	assert.False(t, out.ThrowOnNonZero)
	assert.Equal(t, map[string]string{"A": "default", "B": "mine"}, out.Env, "env deep-merges with command keys winning")
}

func TestApplyDefaultsLeavesExplicitShellAlone(t *testing.T) {
	d := config.Defaults{Shell: "/bin/bash"}

	opts := command.Options{Command: command.Command{Shell: command.ShellMode{Enabled: true, Path: "/bin/zsh"}}}
	out := ApplyDefaults(d, opts)
	assert.Equal(t, "/bin/zsh", out.Shell.Path)
}

func TestApplyDefaultsZeroConfigIsIdentityForSetFields(t *testing.T) {
	opts := command.Options{Command: command.New("echo", "hi")}
	out := ApplyDefaults(config.Defaults{}, opts)
	assert.Equal(t, opts.Program, out.Program)
	assert.Equal(t, opts.Timeout, out.Timeout)
	assert.Equal(t, opts.ThrowOnNonZero, out.ThrowOnNonZero)
}
