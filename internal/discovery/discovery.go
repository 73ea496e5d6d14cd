// SPDX-License-Identifier: MPL-2.0

// Package discovery implements the configuration search path: an upward
// directory walk from the working directory looking for .xec/config.yaml,
// .xec.yaml, or xec.yaml, falling back to the user's home directory.
package discovery

import (
	"os"
	"path/filepath"

	"github.com/xec-sh/xec/pkg/fspath"
	"github.com/xec-sh/xec/pkg/types"
)

// projectCandidates are checked, in order, within each directory visited
// during the upward walk.
var projectCandidates = []string{
	filepath.Join(".xec", "config.yaml"),
	".xec.yaml",
	"xec.yaml",
}

// homeCandidates are checked, in order, once the upward walk reaches the
// filesystem boundary without finding a project-local file.
var homeCandidates = []string{
	filepath.Join(".xec", "config.yaml"),
	".xec.yaml",
}

// Find walks upward from startDir looking for a configuration file. It
// stops at the first directory where one of
// projectCandidates exists; barring that, it stops at the first filesystem
// boundary (volume root or the user's home directory) it crosses and checks
// homeCandidates against the home directory once. Find returns "" with no
// error when no file is found anywhere along the path.
func Find(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}
	home, _ := os.UserHomeDir()

	for {
		for _, candidate := range projectCandidates {
			path := filepath.Join(dir, candidate)
			if fileExists(path) {
				return path, nil
			}
		}

		if dir == home {
			break
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached the volume root without crossing $HOME.
			break
		}
		dir = parent
	}

	if home != "" {
		for _, candidate := range homeCandidates {
			path := filepath.Join(home, candidate)
			if fileExists(path) {
				return path, nil
			}
		}
	}

	return "", nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// FindPath is Find with types.FilesystemPath convenience wrapping.
func FindPath(startDir types.FilesystemPath) (types.FilesystemPath, error) {
	found, err := Find(string(startDir))
	if err != nil {
		return "", err
	}
	return types.FilesystemPath(found), nil
}

// SourceID identifies the origin of a resolved configuration or task: the
// absolute path of the file it was loaded from, or a synthetic identifier
// (e.g. "builtin-defaults") for sources with no backing file.
type SourceID string

// ResolveDir returns the directory a discovered configuration file lives
// in, used as the base for relative task/script paths.
func ResolveDir(configPath types.FilesystemPath) types.FilesystemPath {
	return fspath.Dir(configPath)
}
