// SPDX-License-Identifier: MPL-2.0

package types

import (
	"errors"
	"testing"
	"time"
)

func TestParseDuration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"empty is zero", "", 0, false},
		{"seconds", "30s", 30 * time.Second, false},
		{"compound", "1h30m", 90 * time.Minute, false},
		{"malformed", "not-a-duration", 0, true},
		{"negative", "-5s", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseDuration(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseDuration(%q) returned nil, want error", tt.in)
				}
				if !errors.Is(err, ErrInvalidDuration) {
					t.Errorf("error should wrap ErrInvalidDuration, got: %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDuration(%q) returned unexpected error: %v", tt.in, err)
			}
			if got.AsStd() != tt.want {
				t.Errorf("ParseDuration(%q) = %v, want %v", tt.in, got.AsStd(), tt.want)
			}
		})
	}
}

func TestDuration_UnmarshalText(t *testing.T) {
	t.Parallel()

	var d Duration
	if err := d.UnmarshalText([]byte("2m")); err != nil {
		t.Fatalf("UnmarshalText returned error: %v", err)
	}
	if d.AsStd() != 2*time.Minute {
		t.Errorf("UnmarshalText set %v, want 2m", d.AsStd())
	}
}
