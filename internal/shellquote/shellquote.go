// SPDX-License-Identifier: MPL-2.0

// Package shellquote escapes and joins interpolated values into a single
// shell string without letting any interpolated value escape its argument
// position. It is the system's primary safety property: every adapter that
// accepts a shell-string Command routes interpolation through this package
// unless the caller explicitly opts into Raw.
package shellquote

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// ErrUnsupportedValue is the sentinel error wrapped by UnsupportedValueError.
var ErrUnsupportedValue = errors.New("unsupported interpolation value")

type (
	// Dialect identifies the target shell's quoting rules.
	Dialect string

	// UnsupportedValueError is returned when a value passed to Render is not
	// one of the supported kinds (string, number, bool, []Value, Raw).
	UnsupportedValueError struct {
		Value any
	}

	// Raw wraps a string so it is inserted into the template verbatim,
	// bypassing escaping entirely. Callers that use Raw accept the
	// injection risk for that value; there is no partial-raw mode.
	Raw string
)

const (
	// DialectPOSIX is the default /bin/sh-compatible single-quote dialect.
	DialectPOSIX Dialect = "posix"
	// DialectCmd is cmd.exe's double-quote/caret-escape dialect.
	DialectCmd Dialect = "cmd"
	// DialectPowerShell is PowerShell's backtick-escape dialect.
	DialectPowerShell Dialect = "powershell"
)

// Error implements the error interface for UnsupportedValueError.
func (e *UnsupportedValueError) Error() string {
	return fmt.Sprintf("shellquote: unsupported interpolation value of type %T", e.Value)
}

// Unwrap returns ErrUnsupportedValue for errors.Is() compatibility.
func (e *UnsupportedValueError) Unwrap() error { return ErrUnsupportedValue }

// Quote escapes a single value for the given dialect, returning the quoted
// token (including surrounding quotes/escapes, ready to splice into a
// literal fragment). It does not handle sequences; Render flattens those.
func Quote(dialect Dialect, value any) (string, error) {
	switch v := value.(type) {
	case Raw:
		return string(v), nil
	case string:
		return quoteString(dialect, v), nil
	case bool:
		if v {
			return "true", nil
		}
		return "false", nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64), nil
	case []any:
		parts := make([]string, len(v))
		for i, elem := range v {
			q, err := Quote(dialect, elem)
			if err != nil {
				return "", err
			}
			parts[i] = q
		}
		return strings.Join(parts, " "), nil
	default:
		return "", &UnsupportedValueError{Value: value}
	}
}

func quoteString(dialect Dialect, s string) string {
	switch dialect {
	case DialectCmd:
		return quoteCmd(s)
	case DialectPowerShell:
		return quotePowerShell(s)
	default:
		return quotePOSIX(s)
	}
}

// quotePOSIX wraps s in single quotes, replacing each embedded single quote
// with the sequence '\” (close quote, escaped quote, reopen quote). This is
// the only escaping rule needed for POSIX sh: inside single quotes nothing
// is special except the single quote itself.
func quotePOSIX(s string) string {
	if s == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// cmdMetachars are the characters cmd.exe treats specially even inside a
// double-quoted string and that must additionally be caret-escaped.
const cmdMetachars = "&|<>^\""

func quoteCmd(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		if strings.ContainsRune(cmdMetachars, r) {
			b.WriteByte('^')
		}
		b.WriteRune(r)
	}
	b.WriteByte('"')
	return b.String()
}

func quotePowerShell(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"', '`', '$':
			b.WriteByte('`')
		}
		b.WriteRune(r)
	}
	b.WriteByte('"')
	return b.String()
}

// Render joins literal fragments and escaped values into a single shell
// string: fragments[0] + escape(values[0]) + fragments[1] + escape(values[1])
// + ... There must be exactly one more fragment than value, mirroring a
// tagged-template-literal's structure. Non-Raw values are always escaped per
// dialect; Raw values are spliced in verbatim and carry the injection risk.
func Render(dialect Dialect, fragments []string, values []any) (string, error) {
	if len(fragments) != len(values)+1 {
		return "", fmt.Errorf("shellquote: expected %d fragments for %d values, got %d", len(values)+1, len(values), len(fragments))
	}
	var b strings.Builder
	b.WriteString(fragments[0])
	for i, v := range values {
		q, err := Quote(dialect, v)
		if err != nil {
			return "", err
		}
		b.WriteString(q)
		b.WriteString(fragments[i+1])
	}
	return b.String(), nil
}

// ValidatePOSIX pre-flight checks a shell:true command string before it is
// handed to a real shell binary: a malformed
// template (an unbalanced quote, a dangling heredoc) is caught with a
// location instead of surfacing as an opaque non-zero exit from the
// spawned shell. Only the POSIX dialect is checked; cmd.exe and PowerShell
// have no mvdan.cc/sh grammar to validate against and are passed through
// unchecked, exactly like the rest of this package's dialect handling.
func ValidatePOSIX(s string) error {
	_, err := syntax.NewParser().Parse(strings.NewReader(s), "")
	if err != nil {
		return fmt.Errorf("shellquote: %w", err)
	}
	return nil
}
