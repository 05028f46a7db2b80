package main

import (
	"github.com/spf13/cobra"
)

func newCatalogCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage the canonical product catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newCatalogImportCommand(ctx))
	return cmd
}

func newCatalogImportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Import products, mappings and purchase history from a YAML seed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cfg.Store.Type == "memory" {
				ctx.logger.Warn("importing into the in-memory store, nothing will persist")
			}

			st, err := openStores(cmd.Context(), cfg, ctx.logger)
			if err != nil {
				return err
			}
			defer st.close()

			stats, err := importSeedFile(cmd.Context(), args[0], st, ctx.logger)
			if err != nil {
				return err
			}
			return writeJSON(cmd, stats)
		},
	}
}
