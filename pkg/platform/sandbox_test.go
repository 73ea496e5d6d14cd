// SPDX-License-Identifier: MPL-2.0

package platform

import "testing"

// probeFor builds a hostProbe with the given SNAP_NAME value and Flatpak
// marker presence.
func probeFor(snapName string, flatpakMarker bool) hostProbe {
	return hostProbe{
		getenv: func(key string) string {
			if key == "SNAP_NAME" {
				return snapName
			}
			return ""
		},
		fileExists: func(path string) bool {
			return flatpakMarker && path == "/.flatpak-info"
		},
	}
}

func TestDetectNoSandbox(t *testing.T) {
	t.Parallel()

	if got := probeFor("", false).detect(); got != NoSandbox {
		t.Errorf("detect() = %q, want none", got)
	}
}

func TestDetectFlatpak(t *testing.T) {
	t.Parallel()

	if got := probeFor("", true).detect(); got != FlatpakSandbox {
		t.Errorf("detect() = %q, want flatpak", got)
	}
}

func TestDetectSnap(t *testing.T) {
	t.Parallel()

	if got := probeFor("my-snap", false).detect(); got != SnapSandbox {
		t.Errorf("detect() = %q, want snap", got)
	}
}

func TestDetectFlatpakWinsOverSnap(t *testing.T) {
	t.Parallel()

	if got := probeFor("my-snap", true).detect(); got != FlatpakSandbox {
		t.Errorf("detect() = %q, want flatpak to take precedence", got)
	}
}

func TestSpawnPrefixPerSandbox(t *testing.T) {
	t.Parallel()

	tests := []struct {
		sandbox  Sandbox
		program  string
		argCount int
	}{
		{NoSandbox, "", 0},
		{FlatpakSandbox, "flatpak-spawn", 1},
		{SnapSandbox, "snap", 2},
	}
	for _, tt := range tests {
		program, args := tt.sandbox.SpawnPrefix()
		if program != tt.program || len(args) != tt.argCount {
			t.Errorf("%q.SpawnPrefix() = (%q, %v)", tt.sandbox, program, args)
		}
	}
}

func TestSandboxString(t *testing.T) {
	t.Parallel()

	if got := NoSandbox.String(); got != "none" {
		t.Errorf("NoSandbox.String() = %q, want none", got)
	}
	if got := SnapSandbox.String(); got != "snap" {
		t.Errorf("SnapSandbox.String() = %q, want snap", got)
	}
}
