package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lubricentro/usagepredict/app"
	"github.com/lubricentro/usagepredict/pkg/fixtures"
)

var importCmd = &cobra.Command{
	Use:   "import <fixtures.yaml>",
	Short: "Load vehicles and work orders from a YAML file into the store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := fixtures.Load(args[0])
		if err != nil {
			return fmt.Errorf("load fixtures: %w", err)
		}
		return withService(cmd, func(ctx context.Context, svc *app.Service) error {
			if err := f.Apply(ctx, svc.Store()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d vehicles and %d work orders\n", len(f.Vehicles), len(f.WorkOrders))
			return nil
		}, app.WithoutConsumers())
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
}
