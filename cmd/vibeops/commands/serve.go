package commands

import (
	"github.com/spf13/cobra"

	"github.com/KaranKendre11/VibeOPS/cmd/vibeops/handlers"
)

// Serve returns the command that runs the HTTP API.
func Serve() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Start the HTTP API.

Endpoints:
  POST /api/chat                     stream a pipeline run as server-sent events
  GET  /api/gcp/resources            current project inventory
  GET  /api/deployments              run history
  GET  /api/deployments/{id}/events  replay the events of a run
  GET  /api/health                   health check
  GET  /metrics                      Prometheus metrics
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Serve(cmd.Context(), globals, version)
		},
	}
}
