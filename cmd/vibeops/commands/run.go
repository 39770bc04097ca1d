package commands

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/KaranKendre11/VibeOPS/cmd/vibeops/handlers"
)

// Run returns the command that executes one pipeline run locally.
func Run() *cobra.Command {
	var historyFile string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "run <request>",
		Short: "Run the pipeline once and print the event stream",
		Long: `Run the pipeline for a single request without starting the server.

Events are written to stdout in the same framing the chat endpoint uses,
ending with "data: [DONE]". Logs go to stderr.
`,
		Example: `  vibeops run "A web app with a Postgres database" --dry-run`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return handlers.Run(cmd.Context(), globals, handlers.RunOptions{
				Input:       strings.Join(args, " "),
				HistoryFile: historyFile,
				DryRun:      dryRun,
				Out:         cmd.OutOrStdout(),
				Err:         cmd.ErrOrStderr(),
			})
		},
	}

	cmd.Flags().StringVar(&historyFile, "history", "", "JSON file with prior conversation turns ([{role, content}])")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Generate Terraform without applying it")

	return cmd
}
