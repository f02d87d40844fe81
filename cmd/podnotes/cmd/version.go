package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gobeyondidentity/podnotes/internal/version"
)

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the podnotes version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.Get()
			w := cmd.OutOrStdout()
			if handled, err := a.formatOutput(w, info); handled || err != nil {
				return err
			}
			fmt.Fprintf(w, "podnotes version %s\n", info.Version)
			if info.Revision != "" {
				fmt.Fprintf(w, "%s\n", dimFmt("revision "+info.Revision+", "+info.GoVersion))
			}
			return nil
		},
	}
}
