package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/data-hunter/internal/config"
	"github.com/JakeFAU/data-hunter/internal/server"
)

// runner is what serve needs from the built application.
type runner interface {
	Run(ctx context.Context) error
}

// buildApp is a variable so tests can swap in a fake application.
var buildApp = func(ctx context.Context, cfg *config.Config) (runner, error) {
	app, err := server.Build(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return app, nil
}

func newServeCmd(cfgFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Starts the HTTP dashboard and API",
		Long: `Serves the dashboard, the control API and the event stream. Crawl
sessions are started and stopped from the dashboard or POST /api/start and
POST /api/stop.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			app, err := buildApp(cmd.Context(), &cfg)
			if err != nil {
				return fmt.Errorf("build app: %w", err)
			}
			if err := app.Run(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("run server: %w", err)
			}
			return nil
		},
	}
}
