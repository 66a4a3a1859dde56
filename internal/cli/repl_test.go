package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepl_Session(t *testing.T) {
	stdout, _, err := execute(t, "var x = 20\nx * 2 + 2\nconsole.log('side effect')\nexit\n", "repl")
	require.NoError(t, err)

	assert.Equal(t, "Welcome to alan!\n> undefined\n> 42\n> side effect\nundefined\n> ", stdout)
}

func TestRepl_UncaughtContinues(t *testing.T) {
	stdout, _, err := execute(t, "throw new TypeError('bad')\n'still here'\n", "repl")
	require.NoError(t, err)

	assert.Equal(t, "Welcome to alan!\n> Uncaught TypeError: bad\n> still here\n> ", stdout)
}

func TestRepl_TimerExpression(t *testing.T) {
	stdout, _, err := execute(t, "setTimeout(function () { console.log('fired'); }, 0) > 0\n", "repl")
	require.NoError(t, err)

	assert.Contains(t, stdout, "> true\n> ")
}
