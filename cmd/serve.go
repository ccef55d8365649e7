package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/site-discovery-crawler/internal/config"
	"github.com/JakeFAU/site-discovery-crawler/internal/server"
)

// runner is the slice of *server.App the serve command drives.
type runner interface {
	Run(ctx context.Context) error
}

// newApp builds the service. Tests replace it with a stub.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (runner, error) {
	app, err := server.Build(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return app, nil
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Runs the crawl job HTTP service",
		Long: `Starts the HTTP API and the crawl worker pool. Jobs are accepted on
/v1/crawls and run in the background until SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: runServeCommand,
	}
}

func runServeCommand(cmd *cobra.Command, _ []string) error {
	e, err := resolveEnv(cmd.Context())
	if err != nil {
		return err
	}
	cfg := e.cfg
	if port, ok := portFromEnv(); ok {
		cfg.Server.Port = port
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, cfg, e.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application services: %w", err)
	}
	if err := app.Run(ctx); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	e.logger.Info("serve command finished")
	return nil
}

// portFromEnv honours the PORT variable set by container platforms.
func portFromEnv() (int, bool) {
	raw := os.Getenv("PORT")
	if raw == "" {
		return 0, false
	}
	port, err := strconv.Atoi(raw)
	if err != nil || port <= 0 {
		return 0, false
	}
	return port, true
}
