package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// CommandResult is one captured invocation of a cobra command.
type CommandResult struct {
	Stdout string
	Stderr string
	Err    error
}

// Run executes cmd with args. Output is captured only if the command writes
// through cmd.OutOrStdout and cmd.ErrOrStderr.
func Run(cmd *cobra.Command, args ...string) *CommandResult {
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return &CommandResult{Stdout: out.String(), Stderr: errOut.String(), Err: err}
}

func (r *CommandResult) dump() string {
	return "stdout:\n" + r.Stdout + "\nstderr:\n" + r.Stderr
}

func (r *CommandResult) AssertSuccess(t *testing.T) {
	t.Helper()
	require.NoError(t, r.Err, r.dump())
}

func (r *CommandResult) AssertError(t *testing.T) {
	t.Helper()
	require.Error(t, r.Err, r.dump())
}

func (r *CommandResult) AssertContains(t *testing.T, want string) {
	t.Helper()
	assert.Contains(t, r.Stdout, want)
}

func (r *CommandResult) AssertNotContains(t *testing.T, unwanted string) {
	t.Helper()
	assert.NotContains(t, r.Stdout, unwanted)
}

// AssertPrefix compares against stdout with surrounding whitespace removed.
func (r *CommandResult) AssertPrefix(t *testing.T, want string) {
	t.Helper()
	got := strings.TrimSpace(r.Stdout)
	assert.Truef(t, strings.HasPrefix(got, want), "stdout %q does not start with %q", got, want)
}

// WriteConfig stores content as podnotes.yaml in a fresh temp dir and
// returns the file path.
func WriteConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "podnotes.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}
