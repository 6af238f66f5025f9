package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lubricentro/usagepredict/app"
	"github.com/lubricentro/usagepredict/config"
	"github.com/lubricentro/usagepredict/infra/logger"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:           "usagepredict",
	Short:         "Vehicle usage and next-service prediction service",
	RunE:          serve,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.yaml", "configuration file")
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

// loadConfig reads the configuration file. A missing default file falls
// back to environment variables only.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := cfgPath
	if !cmd.Flags().Changed("config") {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			path = ""
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger.Configure(cfg.Logging.Level, cfg.Logging.Console)
	return cfg, nil
}

// withService loads the configuration, builds the service and runs fn
// until it returns or the process is interrupted.
func withService(cmd *cobra.Command, fn func(context.Context, *app.Service) error, opts ...app.Option) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	svc, err := app.New(ctx, cfg, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.New("main").Errorf("service close: %v", err)
		}
	}()
	return fn(ctx, svc)
}

func serve(cmd *cobra.Command, _ []string) error {
	return withService(cmd, func(ctx context.Context, svc *app.Service) error {
		return svc.Run(ctx)
	})
}
