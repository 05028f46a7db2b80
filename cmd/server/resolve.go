package main

import (
	"github.com/spf13/cobra"

	"github.com/scontrini/backend/internal/domain"
)

func newResolveCommand(ctx *commandContext) *cobra.Command {
	var (
		storeName string
		price     float64
		seedPath  string
	)

	cmd := &cobra.Command{
		Use:   "resolve RAW_NAME",
		Short: "Resolve one raw receipt name and print the result as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			p, err := buildPipeline(cmd.Context(), cfg, seedPath, nil, ctx.logger)
			if err != nil {
				return err
			}
			defer p.Close()

			req := domain.ResolveRequest{RawName: args[0], StoreName: storeName}
			if cmd.Flags().Changed("price") {
				req.Price = &price
			}
			return writeJSON(cmd, p.normalizer.Resolve(cmd.Context(), req))
		},
	}

	cmd.Flags().StringVar(&storeName, "store", "", "Store the receipt comes from")
	cmd.Flags().Float64Var(&price, "price", 0, "Unit price on the receipt")
	cmd.Flags().StringVar(&seedPath, "seed", "", "YAML catalog seed to import first")
	return cmd
}
