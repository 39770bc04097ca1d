// Package commands defines the cobra command tree and flag bindings.
// Execution is delegated to the handlers package.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/KaranKendre11/VibeOPS/cmd/vibeops/handlers"
)

var globals handlers.Globals

// Root returns the root command for the vibeops CLI.
func Root() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "vibeops",
		Short:         "Turn infrastructure requests into deployed GCP environments",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&globals.ConfigPath, "config", "c", "config.yaml", "Path to configuration file")
	cmd.PersistentFlags().StringVar(&globals.LogLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(Serve())
	cmd.AddCommand(Run())
	cmd.AddCommand(History())
	cmd.AddCommand(Version())

	return cmd
}
