// SPDX-License-Identifier: MPL-2.0

//go:build windows

package watch

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWatchExhaustedNeverTriggersOnWindows(t *testing.T) {
	t.Parallel()

	assert.False(t, watchExhausted(errors.New("any error at all")))
	assert.False(t, watchExhausted(nil))
}
