package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// write drops src into a fresh file under t.TempDir and returns its path.
func write(t *testing.T, name, src string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func exitCodeOf(t *testing.T, err error) int {
	t.Helper()
	if err == nil {
		return exitOK
	}
	var ee *exitError
	require.True(t, errors.As(err, &ee), "error was not an *exitError: %v", err)
	return ee.code
}

func TestRun_Success(t *testing.T) {
	in := write(t, "ok.c", `int main() { return 0; }`)
	out := filepath.Join(t.TempDir(), "ok.s")
	cfg := &config{input: in, output: out, optLevel: 1}
	err := run(cfg)
	require.NoError(t, err)
	assert.Equal(t, exitOK, exitCodeOf(t, err))

	data, readErr := os.ReadFile(out)
	require.NoError(t, readErr)
	assert.Contains(t, string(data), "main:")
}

func TestRun_MissingInputFile(t *testing.T) {
	cfg := &config{input: filepath.Join(t.TempDir(), "missing.c"), optLevel: 1}
	err := run(cfg)
	assert.Equal(t, exitSystemError, exitCodeOf(t, err))
}

func TestRun_ParseError(t *testing.T) {
	in := write(t, "bad.c", `int main() { return 1 + ; }`)
	cfg := &config{input: in, output: filepath.Join(t.TempDir(), "bad.s"), optLevel: 1}
	err := run(cfg)
	assert.Equal(t, exitParseError, exitCodeOf(t, err))
}

func TestRun_TypeError(t *testing.T) {
	in := write(t, "undeclared.c", `int main() { return undeclared_name; }`)
	cfg := &config{input: in, output: filepath.Join(t.TempDir(), "undeclared.s"), optLevel: 1}
	err := run(cfg)
	assert.Equal(t, exitTypeError, exitCodeOf(t, err))
}

func TestRun_DefaultsToStdoutWhenNoOutputGiven(t *testing.T) {
	in := write(t, "stdout.c", `int main() { return 1; }`)
	cfg := &config{input: in, optLevel: 1}
	err := run(cfg)
	require.NoError(t, err)
}

func TestNewRootCommand_RequiresExactlyOneArg(t *testing.T) {
	cfg := &config{}
	cmd := newRootCommand(cfg)
	cmd.SetArgs([]string{})
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	assert.Error(t, cmd.Execute())
}
