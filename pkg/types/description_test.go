// SPDX-License-Identifier: MPL-2.0

package types

import (
	"errors"
	"testing"
)

func TestDescriptionTextValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text DescriptionText
		ok   bool
	}{
		{"empty means no description", "", true},
		{"plain text", "Deploy the api service", true},
		{"spaces only", "   ", false},
		{"newline only", "\n", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.text.Validate()
			if tt.ok && err != nil {
				t.Fatalf("Validate(%q) = %v, want nil", tt.text, err)
			}
			if !tt.ok {
				if err == nil {
					t.Fatalf("Validate(%q) = nil, want error", tt.text)
				}
				if !errors.Is(err, ErrInvalidDescriptionText) {
					t.Errorf("error should wrap ErrInvalidDescriptionText, got %v", err)
				}
			}
		})
	}
}
