package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lubricentro/usagepredict/app"
	"github.com/lubricentro/usagepredict/core/model"
	"github.com/lubricentro/usagepredict/pkg/export"
)

var (
	upcomingDays   int
	upcomingFormat string
)

var upcomingCmd = &cobra.Command{
	Use:   "upcoming",
	Short: "List vehicles due for service in the next days",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if upcomingDays < 1 || upcomingDays > 366 {
			return fmt.Errorf("--days must be between 1 and 366")
		}
		return withService(cmd, func(ctx context.Context, svc *app.Service) error {
			today := model.Day(time.Now())
			vehicles, err := svc.Store().Upcoming(ctx, today.AddDate(0, 0, upcomingDays+1).Add(-time.Nanosecond))
			if err != nil {
				return err
			}
			entries := export.Upcoming(vehicles, today)
			switch upcomingFormat {
			case "csv":
				return export.WriteCSV(cmd.OutOrStdout(), entries)
			case "json":
				return export.WriteJSON(cmd.OutOrStdout(), entries)
			default:
				return fmt.Errorf("unknown format %q", upcomingFormat)
			}
		}, app.WithoutConsumers())
	},
}

func init() {
	upcomingCmd.Flags().IntVar(&upcomingDays, "days", 30, "window in days")
	upcomingCmd.Flags().StringVar(&upcomingFormat, "format", "csv", "output format (csv or json)")
	rootCmd.AddCommand(upcomingCmd)
}
