// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestMustChdirRoundTrip(t *testing.T) {
	before, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	restore := MustChdir(t, dir)

	now, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if got, want := mustEval(t, now), mustEval(t, dir); got != want {
		t.Fatalf("cwd = %s, want %s", got, want)
	}

	restore()
	after, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if after != before {
		t.Fatalf("cwd after restore = %s, want %s", after, before)
	}
}

// mustEval resolves symlinks so macOS-style /private temp paths compare
// equal to their /tmp aliases.
func mustEval(t *testing.T, path string) string {
	t.Helper()
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		t.Fatal(err)
	}
	return resolved
}

func TestSetHomeDirSetsAndRestores(t *testing.T) {
	key := homeVar()
	orig, had := os.LookupEnv(key)

	dir := t.TempDir()
	restore := SetHomeDir(t, dir)
	if got := os.Getenv(key); got != dir {
		t.Fatalf("%s = %s, want %s", key, got, dir)
	}

	restore()
	now, has := os.LookupEnv(key)
	if has != had || now != orig {
		t.Fatalf("%s after restore = (%q, %v), want (%q, %v)", key, now, has, orig, had)
	}
}

func TestSetHomeDirRestoresUnsetState(t *testing.T) {
	key := homeVar()
	orig, had := os.LookupEnv(key)
	t.Cleanup(func() {
		if had {
			os.Setenv(key, orig)
		} else {
			os.Unsetenv(key)
		}
	})

	os.Unsetenv(key)
	restore := SetHomeDir(t, t.TempDir())
	restore()

	if _, has := os.LookupEnv(key); has {
		t.Fatalf("%s should be unset after restoring an unset state", key)
	}
}
