package cli

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoCmd() *cobra.Command {
	return &cobra.Command{
		Use: "echo",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 && args[0] == "fail" {
				cmd.PrintErrln("failing")
				return errors.New("failed")
			}
			cmd.Println(strings.Join(args, " "))
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

func TestRun_CapturesStdout(t *testing.T) {
	t.Log("Verifying Run captures stdout and reports success")

	result := Run(echoCmd(), "hello", "pod")
	result.AssertSuccess(t)
	result.AssertPrefix(t, "hello pod")
	result.AssertContains(t, "pod")
	result.AssertNotContains(t, "failing")
}

func TestRun_CapturesErrorAndStderr(t *testing.T) {
	t.Log("Verifying Run captures the returned error and stderr")

	result := Run(echoCmd(), "fail")
	result.AssertError(t)
	assert.Contains(t, result.Stderr, "failing")
	assert.EqualError(t, result.Err, "failed")
}

func TestWriteConfig(t *testing.T) {
	path := WriteConfig(t, "log:\n  level: debug\n")

	assert.Equal(t, "podnotes.yaml", filepath.Base(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "log:\n  level: debug\n", string(data))
}
