package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gobeyondidentity/podnotes/pkg/clierror"
)

// ExactArgsWithUsage requires exactly n positional arguments and names the
// expected ones from the command's Use string when the count is wrong.
func ExactArgsWithUsage(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) == n {
			return nil
		}
		names := argNames(cmd.Use)
		return &clierror.CLIError{
			Code: clierror.CodeInvalidInput,
			Message: fmt.Sprintf("requires %d argument(s), received %d; usage: %s %s",
				n, len(args), cmd.CommandPath(), strings.Join(names, " ")),
			Hint:     fmt.Sprintf("Run '%s --help' for details", cmd.CommandPath()),
			ExitCode: clierror.ExitInput,
		}
	}
}

// argNames returns the <required> and [optional] words of a Use string.
func argNames(use string) []string {
	var names []string
	for _, part := range strings.Fields(use)[1:] {
		if strings.HasPrefix(part, "<") || strings.HasPrefix(part, "[") {
			names = append(names, part)
		}
	}
	return names
}
