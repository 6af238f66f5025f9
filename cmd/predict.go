package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/lubricentro/usagepredict/app"
	"github.com/lubricentro/usagepredict/core/model"
	"github.com/lubricentro/usagepredict/core/prediction"
)

var (
	predictDryRun bool
	predictJSON   bool
)

var predictCmd = &cobra.Command{
	Use:   "predict <vehicle-id>",
	Short: "Predict the next service of one vehicle",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]
		return withService(cmd, func(ctx context.Context, svc *app.Service) error {
			if _, err := svc.Store().Vehicle(ctx, id); err != nil {
				return fmt.Errorf("vehicle %s: %w", id, err)
			}
			var (
				res *prediction.Result
				err error
			)
			if predictDryRun {
				res, err = svc.Predictor().Preview(ctx, id)
			} else {
				res, err = svc.Predictor().Predict(ctx, id)
			}
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if predictJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			hist, err := svc.Store().History(ctx, id, svc.Predictor().Config().HistoryLimit)
			if err != nil {
				return err
			}
			printPrediction(out, id, res, predictDryRun)
			printHistory(out, hist)
			return nil
		}, app.WithoutConsumers())
	},
}

func init() {
	predictCmd.Flags().BoolVar(&predictDryRun, "dry-run", false, "compute without storing the result")
	predictCmd.Flags().BoolVar(&predictJSON, "json", false, "print the result as JSON")
	rootCmd.AddCommand(predictCmd)
}

func printPrediction(w io.Writer, id string, res *prediction.Result, dryRun bool) {
	if res == nil {
		fmt.Fprintf(w, "vehicle %s: not enough usable history for a prediction\n", id)
		return
	}
	fmt.Fprintf(w, "vehicle %s\n", id)
	fmt.Fprintf(w, "  average daily distance: %.1f km\n", res.AverageDailyDistance)
	fmt.Fprintf(w, "  last service:           %s at %d km\n", res.LastServiceDate.Format(time.DateOnly), res.LastServiceMileage)
	fmt.Fprintf(w, "  next service:           %s at %d km (in %d days)\n",
		res.PredictedDate.Format(time.DateOnly), res.NextServiceMileage, res.DaysRemaining)
	fmt.Fprintf(w, "  confidence:             %s (%d records)\n", res.Confidence, res.DataPoints)
	if dryRun {
		fmt.Fprintln(w, "  (dry run, not stored)")
	}
}

func printHistory(w io.Writer, hist []model.ServiceRecord) {
	recs := prediction.SortAscending(hist)
	if len(recs) < 2 {
		return
	}
	data := make([]float64, len(recs))
	for i, r := range recs {
		data[i] = float64(r.Odometer)
	}
	caption := fmt.Sprintf("odometer (km), %s to %s",
		recs[0].Date.Format(time.DateOnly), recs[len(recs)-1].Date.Format(time.DateOnly))
	fmt.Fprintln(w)
	fmt.Fprintln(w, asciigraph.Plot(data,
		asciigraph.Height(8),
		asciigraph.Width(40),
		asciigraph.Caption(caption)))
}
