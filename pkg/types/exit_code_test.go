// SPDX-License-Identifier: MPL-2.0

package types

import (
	"errors"
	"testing"
)

func TestExitCodeValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		code ExitCode
		ok   bool
	}{
		{"success", 0, true},
		{"generic failure", 1, true},
		{"top of the byte", 255, true},
		{"negative", -1, false},
		{"past a byte", 256, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.code.Validate()
			if tt.ok && err != nil {
				t.Fatalf("Validate(%d) = %v, want nil", tt.code, err)
			}
			if !tt.ok {
				if err == nil {
					t.Fatalf("Validate(%d) = nil, want error", tt.code)
				}
				if !errors.Is(err, ErrInvalidExitCode) {
					t.Errorf("error should wrap ErrInvalidExitCode, got %v", err)
				}
			}
		})
	}
}

func TestExitCodeIsSuccess(t *testing.T) {
	t.Parallel()

	if !ExitCode(0).IsSuccess() {
		t.Error("0 must be success")
	}
	if ExitCode(130).IsSuccess() {
		t.Error("130 must not be success")
	}
}

func TestExitCodeString(t *testing.T) {
	t.Parallel()

	if got := ExitCode(127).String(); got != "127" {
		t.Errorf("String() = %q, want %q", got, "127")
	}
}
