package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httpif "github.com/garyjia/procurement-tracker/internal/interfaces/http"
	"github.com/garyjia/procurement-tracker/pkg/utils"
)

func serveCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the sweep scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			c, cfg, logger, err := opts.startContainer(ctx, true)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck
			defer func() {
				if err := c.Close(); err != nil {
					logger.Error("Container close failed", zap.Error(err))
				}
			}()

			logger.Info("Starting procurement tracker",
				zap.String("version", Version),
				zap.String("store", cfg.Store.Driver),
				zap.Int("port", cfg.Server.Port))

			server := httpif.NewServer(
				httpif.ServerConfig{
					Host:           cfg.Server.Host,
					Port:           cfg.Server.Port,
					ReadTimeout:    cfg.Server.ReadTimeout,
					WriteTimeout:   cfg.Server.WriteTimeout,
					ReservedActors: []string{cfg.Workflow.SystemActor},
				},
				c.Engine(),
				c.Documents(),
				func(ctx context.Context) error { return c.HealthCheck(ctx) },
				c.Metrics().Handler(),
				utils.NewZapAdapter(logger),
			)

			return server.Start(ctx)
		},
	}
}
