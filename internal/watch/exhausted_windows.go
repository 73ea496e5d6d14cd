// SPDX-License-Identifier: MPL-2.0

//go:build windows

package watch

// watchExhausted always reports false on Windows: ReadDirectoryChangesW
// has no inotify-style per-process watch budget, so there is no
// exhaustion condition to bail out on.
func watchExhausted(err error) bool { return false }
