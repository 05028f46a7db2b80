package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/scontrini/backend/config"
	"github.com/scontrini/backend/internal/infrastructure/logging"
)

// commandContext lazily loads the configuration and logger shared by every
// subcommand
type commandContext struct {
	configPath *string
	cfg        *config.Config
	logger     *zap.Logger
}

func newCommandContext(configPath *string) *commandContext {
	return &commandContext{configPath: configPath}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}

	cfg, err := config.LoadFile(*c.configPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)

	c.cfg = cfg
	c.logger = logger
	return cfg, nil
}

func (c *commandContext) sync() {
	if c.logger != nil {
		_ = c.logger.Sync()
	}
}

func newRootCommand() *cobra.Command {
	var configFlag string

	ctx := newCommandContext(&configFlag)
	serve := newServeCommand(ctx)

	rootCmd := &cobra.Command{
		Use:           "scontrini",
		Short:         "Receipt product normalization service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			ctx.sync()
		},
		// serve is the default command
		RunE: serve.RunE,
	}
	rootCmd.Flags().AddFlagSet(serve.Flags())

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	rootCmd.AddCommand(serve)
	rootCmd.AddCommand(newResolveCommand(ctx))
	rootCmd.AddCommand(newMigrateCommand(ctx))
	rootCmd.AddCommand(newCatalogCommand(ctx))

	return rootCmd
}

// shouldSkipConfig reports commands that run without configuration
func shouldSkipConfig(cmd *cobra.Command) bool {
	switch cmd.Name() {
	case "help", "completion", "__complete":
		return true
	}
	return false
}

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
