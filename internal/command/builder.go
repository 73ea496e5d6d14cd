// SPDX-License-Identifier: MPL-2.0

package command

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xec-sh/xec/pkg/types"
)

// Builder is the fluent options cascade. Every method returns a new
// Builder; the receiver is never mutated, so a Builder is safe to branch
// from and reuse.
type Builder struct {
	opts Options
	raw  bool
}

// NewBuilder starts a cascade from an empty Command with spec defaults.
func NewBuilder() Builder {
	return Builder{opts: Options{Command: New("")}}
}

// Build finalizes the cascade for program/args (direct argv form).
func (b Builder) Build(program string, args ...string) Options {
	out := b.opts
	out.Program = program
	out.Args = append([]string(nil), args...)
	return out
}

// Options returns the accumulated Options as built so far, for callers that
// construct Program/Args separately (e.g. via Render).
func (b Builder) Options() Options { return b.opts }

// Raw reports whether this builder's template interpolation is unescaped.
func (b Builder) Raw() bool { return b.raw }

// AsRaw returns a builder variant whose template interpolation does not
// escape values; the caller accepts the injection risk.
func (b Builder) AsRaw() Builder {
	out := b
	out.raw = true
	return out
}

// Cwd resolves path against the current builder's cwd: tilde expands to
// the process user's home, relative paths resolve against the existing
// cwd (which starts at the process cwd unless previously set).
func (b Builder) Cwd(path string) Builder {
	out := b
	out.opts.Cwd = types.FilesystemPath(resolveCwd(string(b.opts.Cwd), path))
	return out
}

func resolveCwd(base, path string) string {
	if strings.HasPrefix(path, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	if base == "" {
		base, _ = os.Getwd()
	}
	return filepath.Clean(filepath.Join(base, path))
}

// Env merges m into the existing environment mapping; later keys override
// earlier ones. Env is the only deep-merged option.
func (b Builder) Env(m map[string]string) Builder {
	out := b
	merged := make(map[string]string, len(out.opts.Env)+len(m))
	for k, v := range out.opts.Env {
		merged[k] = v
	}
	for k, v := range m {
		merged[k] = v
	}
	out.opts.Env = merged
	return out
}

// Timeout sets or replaces the timeout; 0 disables it.
func (b Builder) Timeout(d types.Duration) Builder {
	out := b
	out.opts.Timeout = d
	return out
}

// Shell configures shell wrapping. enabled=false selects direct argv;
// enabled=true with an empty path selects the adapter's default shell;
// a non-empty path selects that shell binary explicitly.
func (b Builder) Shell(enabled bool, path string) Builder {
	out := b
	out.opts.Shell = ShellMode{Enabled: enabled, Path: path}
	return out
}

// Nothrow suppresses the exception on non-zero exit for handles derived
// from this builder.
func (b Builder) Nothrow() Builder {
	out := b
	out.opts.Nothrow = true
	return out
}

// Quiet suppresses default stdout/stderr mirroring.
func (b Builder) Quiet() Builder {
	out := b
	out.opts.Quiet = true
	return out
}

// Retry attaches a retry policy.
func (b Builder) Retry(policy RetryPolicy) Builder {
	out := b
	out.opts.Retry = &policy
	return out
}

// Cache attaches a result-memoization policy.
func (b Builder) Cache(policy CachePolicy) Builder {
	out := b
	out.opts.Cache = &policy
	return out
}

// MaxBuffer overrides the output-buffer cap.
func (b Builder) MaxBuffer(size types.ByteSize) Builder {
	out := b
	out.opts.MaxBuffer = size
	return out
}

// Validate enforces the shell/raw constraint: disabling shell while the
// builder carries a raw template value is an error, since argv form has no
// shell to interpolate into.
func (b Builder) Validate() error {
	if !b.opts.Shell.Enabled && b.raw {
		return fmt.Errorf("command: raw template interpolation requires shell mode, got shell(false)")
	}
	return nil
}
