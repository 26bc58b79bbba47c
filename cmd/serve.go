package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Runs the HTTP API and the pipeline scheduler",
		Long: `Starts the health/metrics HTTP server and runs the monitoring pipeline
every schedule.interval_minutes until SIGINT or SIGTERM. In-flight runs are
given server.shutdown_timeout_seconds to finish.`,
		RunE: runServeCommand,
	}
}

func runServeCommand(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(ctx context.Context, a App) error {
		if err := a.Serve(ctx); err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
}
