// Package cmd implements the podnotes CLI commands.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/gobeyondidentity/podnotes/internal/config"
	"github.com/gobeyondidentity/podnotes/internal/version"
	"github.com/gobeyondidentity/podnotes/pkg/clierror"
)

// app carries state shared by every command of one invocation.
type app struct {
	configPath   string
	outputFormat string

	cfg    *config.Config
	logger *slog.Logger
}

// NewRootCmd builds the podnotes command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "podnotes",
		Short: "Notes stored in a Solid pod",
		Long: `podnotes keeps notes as Turtle documents in a Solid pod.

It logs in to a Community Solid Server account, obtains a DPoP-bound
access token, and creates, lists, updates and deletes notes in the
configured container. Settings come from podnotes.yaml and PODNOTES_*
environment variables.`,
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch a.outputFormat {
			case "table", "json", "yaml":
			default:
				return fmt.Errorf("unknown output format %q (want table, json or yaml)", a.outputFormat)
			}
			if skipsConfig(cmd) {
				return nil
			}
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return clierror.InvalidConfig(err)
			}
			a.cfg = cfg
			a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: cfg.SlogLevel()}))
			return nil
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Config file (default: ./podnotes.yaml)")
	root.PersistentFlags().StringVarP(&a.outputFormat, "output", "o", "table", "Output format: table, json, yaml")

	root.AddCommand(
		newAccountCmd(a),
		newNoteCmd(a),
		newServeCmd(a),
		newVersionCmd(a),
	)
	return root
}

// skipsConfig reports whether cmd runs without loading configuration.
func skipsConfig(cmd *cobra.Command) bool {
	switch cmd.Name() {
	case "version", "help", "completion":
		return true
	}
	return false
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd()
	err := root.ExecuteContext(ctx)
	if err == nil {
		return clierror.ExitSuccess
	}

	format, _ := root.PersistentFlags().GetString("output")
	cliErr := clierror.FromError(err)
	clierror.PrintError(os.Stderr, cliErr, format)
	return cliErr.ExitCode
}

// formatOutput writes data as JSON or YAML. It reports false for table
// output, which each command renders itself.
func (a *app) formatOutput(w io.Writer, data any) (bool, error) {
	switch a.outputFormat {
	case "json":
		return true, outputJSON(w, data)
	case "yaml":
		return true, outputYAML(w, data)
	default:
		return false, nil
	}
}

func outputJSON(w io.Writer, data any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func outputYAML(w io.Writer, data any) error {
	out, err := yaml.Marshal(data)
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}
