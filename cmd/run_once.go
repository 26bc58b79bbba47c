package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRunOnceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run-once",
		Short: "Runs the pipeline a single time and prints the outcome",
		Long: `Processes every active target once, prints the run outcome as JSON and
exits. The exit status is non-zero when any target failed.`,
		RunE: runOnceCommand,
	}
}

func runOnceCommand(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(ctx context.Context, a App) error {
		out, runErr := a.RunOnce(ctx)
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			a.GetLogger().Warn("write run outcome failed", zap.Error(err))
		}
		if runErr != nil {
			return fmt.Errorf("run-once: %w", runErr)
		}
		return nil
	})
}
