package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lubricentro/usagepredict/app"
)

var refreshJSON bool

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Recompute the usage prediction of every vehicle once",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withService(cmd, func(ctx context.Context, svc *app.Service) error {
			sum, err := svc.RefreshOnce(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if refreshJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(sum)
			}
			fmt.Fprintf(out, "run %s: %d vehicles in %s\n", sum.RunID, sum.Total, sum.Duration.Round(time.Millisecond))
			fmt.Fprintf(out, "  predicted:     %d\n", sum.Predicted)
			fmt.Fprintf(out, "  no prediction: %d\n", sum.NoPrediction)
			fmt.Fprintf(out, "  skipped:       %d\n", sum.Skipped)
			fmt.Fprintf(out, "  failed:        %d\n", sum.Failed)
			for _, id := range sum.FailedVehicles {
				fmt.Fprintf(out, "    - %s\n", id)
			}
			return nil
		}, app.WithoutConsumers())
	},
}

func init() {
	refreshCmd.Flags().BoolVar(&refreshJSON, "json", false, "print the summary as JSON")
	rootCmd.AddCommand(refreshCmd)
}
