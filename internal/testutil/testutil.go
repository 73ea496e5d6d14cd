// SPDX-License-Identifier: MPL-2.0

// Package testutil carries the few helpers the test suites share: working
// directory and home directory redirection with restore functions, and the
// process-wide semaphore bounding concurrent container tests.
package testutil

import (
	"os"
	"runtime"
	"testing"
)

// MustChdir moves the process into dir and returns a function that moves it
// back. The test fails immediately if either directory is unusable.
func MustChdir(t testing.TB, dir string) func() {
	t.Helper()

	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("reading working directory: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("entering %s: %v", dir, err)
	}
	return func() {
		if err := os.Chdir(prev); err != nil {
			t.Errorf("restoring working directory %s: %v", prev, err)
		}
	}
}

// homeVar names the environment variable the platform resolves the user's
// home directory from.
func homeVar() string {
	if runtime.GOOS == "windows" {
		return "USERPROFILE"
	}
	return "HOME"
}

// SetHomeDir points the platform's home variable at dir and returns a
// function restoring whatever was there before, including "unset". Pair it
// with t.Cleanup so tests never leak a fake home into each other.
func SetHomeDir(t testing.TB, dir string) func() {
	t.Helper()

	key := homeVar()
	prev, existed := os.LookupEnv(key)
	if err := os.Setenv(key, dir); err != nil {
		t.Fatalf("setting %s: %v", key, err)
	}
	return func() {
		var err error
		if existed {
			err = os.Setenv(key, prev)
		} else {
			err = os.Unsetenv(key)
		}
		if err != nil {
			t.Errorf("restoring %s: %v", key, err)
		}
	}
}
