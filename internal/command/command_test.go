// SPDX-License-Identifier: MPL-2.0

package command

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestResult_Ok(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		result Result
		want   bool
	}{
		{"zero exit", Result{HasExit: true, ExitCode: 0}, true},
		{"nonzero exit", Result{HasExit: true, ExitCode: 1}, false},
		{"signal killed", Result{HasExit: true, ExitCode: 0, Signal: "SIGTERM"}, false},
		{"no exit recorded", Result{HasExit: false}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.result.Ok())
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	cmd := New("echo", "hello")
	assert.Equal(t, "utf-8", cmd.Encoding)
	assert.Equal(t, DefaultMaxBuffer, cmd.MaxBuffer)
	assert.True(t, cmd.ThrowOnNonZero)
	assert.Equal(t, 30*time.Second, cmd.Timeout.AsStd())
}
