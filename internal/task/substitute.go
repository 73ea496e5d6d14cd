// SPDX-License-Identifier: MPL-2.0

package task

import (
	"fmt"
	"regexp"

	"github.com/xec-sh/xec/internal/shellquote"
)

// placeholderPattern matches `${name}` parameter placeholders.
var placeholderPattern = regexp.MustCompile(`\$\{(\w+)\}`)

// substitute replaces every `${name}` placeholder in cmd with its escaped
// value from params: each value is quoted as a single shell token, never
// spliced in raw.
func substitute(dialect shellquote.Dialect, cmd string, params map[string]string) (string, error) {
	var firstErr error
	result := placeholderPattern.ReplaceAllStringFunc(cmd, func(match string) string {
		if firstErr != nil {
			return match
		}
		name := match[2 : len(match)-1]
		value, ok := params[name]
		if !ok {
			firstErr = fmt.Errorf("task: undefined parameter %q in %q", name, cmd)
			return match
		}
		quoted, err := shellquote.Quote(dialect, value)
		if err != nil {
			firstErr = err
			return match
		}
		return quoted
	})
	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}
