package commands

import (
	"github.com/spf13/cobra"

	"github.com/KaranKendre11/VibeOPS/cmd/vibeops/handlers"
)

// History returns the command that inspects recorded runs.
func History() *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List recorded runs or print the events of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return handlers.HistoryEvents(cmd.Context(), globals, args[0], cmd.OutOrStdout())
			}
			return handlers.HistoryList(cmd.Context(), globals, limit, offset, cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of runs to skip")

	return cmd
}
