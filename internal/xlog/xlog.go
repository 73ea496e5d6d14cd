// SPDX-License-Identifier: MPL-2.0

// Package xlog threads a single process-wide github.com/charmbracelet/log
// logger through the engine via context.Context rather than a package-level
// global, so adapters and the SSH pool can be unit tested with a captured
// logger instead of reaching for a singleton.
package xlog

import (
	"context"
	"io"
	"os"

	"github.com/charmbracelet/log"
)

type contextKey struct{}

// defaultLogger is returned by FromContext when no logger has been
// attached, so adapters never need a nil check.
var defaultLogger = log.NewWithOptions(io.Discard, log.Options{})

// New constructs the process-wide logger per cmd/xec's -v/--verbose and
// --no-color global flags.
func New(verbose, noColor bool) *log.Logger {
	l := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: verbose,
		Prefix:          "xec",
	})
	if verbose {
		l.SetLevel(log.DebugLevel)
	} else {
		l.SetLevel(log.WarnLevel)
	}
	if noColor {
		l.SetColorProfile(0)
	}
	return l
}

// WithLogger returns a new context carrying logger.
func WithLogger(ctx context.Context, logger *log.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext returns the logger attached to ctx, or a discarding logger
// when none was attached (e.g. in unit tests that never call WithLogger).
func FromContext(ctx context.Context) *log.Logger {
	if l, ok := ctx.Value(contextKey{}).(*log.Logger); ok && l != nil {
		return l
	}
	return defaultLogger
}
