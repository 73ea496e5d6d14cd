// SPDX-License-Identifier: MPL-2.0

package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder_Immutability(t *testing.T) {
	t.Parallel()

	base := NewBuilder()
	withEnv := base.Env(map[string]string{"A": "1"})

	assert.Empty(t, base.Options().Env, "base builder must not be mutated by deriving withEnv")
	assert.Equal(t, "1", withEnv.Options().Env["A"])
}

func TestBuilder_EnvOverride(t *testing.T) {
	t.Parallel()

	b := NewBuilder().Env(map[string]string{"A": "1", "B": "2"}).Env(map[string]string{"A": "3"})
	assert.Equal(t, map[string]string{"A": "3", "B": "2"}, b.Options().Env)
}

func TestBuilder_ShellFalseWithRaw_Invalid(t *testing.T) {
	t.Parallel()

	b := NewBuilder().AsRaw().Shell(false, "")
	err := b.Validate()
	require.Error(t, err)
}

func TestBuilder_ShellTrueWithRaw_Valid(t *testing.T) {
	t.Parallel()

	b := NewBuilder().AsRaw().Shell(true, "")
	require.NoError(t, b.Validate())
}

func TestBuilder_CwdResolution(t *testing.T) {
	t.Parallel()

	b := NewBuilder().Cwd("/tmp").Cwd("sub")
	assert.Equal(t, "/tmp/sub", string(b.Options().Cwd))
}
