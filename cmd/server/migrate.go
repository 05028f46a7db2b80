package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/scontrini/backend/internal/infrastructure/postgres"
)

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the Postgres schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cfg.Store.Type != "postgres" {
				return fmt.Errorf("migrate requires store type 'postgres', got %q", cfg.Store.Type)
			}

			version, err := postgres.Migrate(cfg.Store.DatabaseURL)
			if err != nil {
				return err
			}
			ctx.logger.Info("database migrated", zap.Uint("version", version))
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", version)
			return nil
		},
	}
}
