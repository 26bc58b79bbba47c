package cmd

import (
	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Applies the Postgres schema",
		Long:  `Creates the monitored_target, snapshot and change_event tables if they do not exist. Requires db.driver=postgres.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			return migrate(cmd.Context(), rt.cfg, rt.logger)
		},
	}
}
