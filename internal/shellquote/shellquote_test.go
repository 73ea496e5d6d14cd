// SPDX-License-Identifier: MPL-2.0

package shellquote

import (
	"errors"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuotePOSIX_InjectionAttempt(t *testing.T) {
	malicious := `'; rm -rf /; echo '`
	q, err := Quote(DialectPOSIX, malicious)
	require.NoError(t, err)

	rendered := "touch " + q
	out, err := exec.Command("sh", "-c", "echo "+rendered).CombinedOutput()
	require.NoError(t, err, "rendered command must parse as a single safe argument: %s", out)
	assert.Equal(t, "touch "+malicious+"\n", string(out))
}

func TestQuotePOSIX_Empty(t *testing.T) {
	q, err := Quote(DialectPOSIX, "")
	require.NoError(t, err)
	assert.Equal(t, "''", q)
}

func TestQuotePOSIX_Simple(t *testing.T) {
	q, err := Quote(DialectPOSIX, "hello")
	require.NoError(t, err)
	assert.Equal(t, "'hello'", q)
}

func TestQuoteCmd_Metachars(t *testing.T) {
	q, err := Quote(DialectCmd, `a&b`)
	require.NoError(t, err)
	assert.Equal(t, `"a^&b"`, q)
}

func TestQuotePowerShell_Metachars(t *testing.T) {
	q, err := Quote(DialectPowerShell, `a"b$c`)
	require.NoError(t, err)
	assert.Equal(t, "\"a`\"b`$c\"", q)
}

func TestQuote_Numbers_Bool_Raw(t *testing.T) {
	q, err := Quote(DialectPOSIX, 42)
	require.NoError(t, err)
	assert.Equal(t, "42", q)

	q, err = Quote(DialectPOSIX, true)
	require.NoError(t, err)
	assert.Equal(t, "true", q)

	q, err = Quote(DialectPOSIX, Raw("$HOME"))
	require.NoError(t, err)
	assert.Equal(t, "$HOME", q)
}

func TestQuote_Sequence(t *testing.T) {
	q, err := Quote(DialectPOSIX, []any{"a", "b c"})
	require.NoError(t, err)
	assert.Equal(t, "'a' 'b c'", q)
}

func TestQuote_UnsupportedValue(t *testing.T) {
	_, err := Quote(DialectPOSIX, struct{}{})
	require.Error(t, err)

	var uve *UnsupportedValueError
	require.True(t, errors.As(err, &uve))
	assert.True(t, errors.Is(err, ErrUnsupportedValue))
}

func TestRender(t *testing.T) {
	out, err := Render(DialectPOSIX, []string{"touch ", ""}, []any{`'; rm -rf /; echo '`})
	require.NoError(t, err)
	assert.Equal(t, `touch ''\''; rm -rf /; echo '\'''`, out)
}

func TestRender_FragmentMismatch(t *testing.T) {
	_, err := Render(DialectPOSIX, []string{"a"}, []any{"x", "y"})
	require.Error(t, err)
}
