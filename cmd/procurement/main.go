// Package main is the procurement tracker binary: the HTTP API, the sweep
// scheduler and one-shot administrative commands.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/garyjia/procurement-tracker/internal/config"
	"github.com/garyjia/procurement-tracker/internal/container"
	"github.com/garyjia/procurement-tracker/pkg/utils"
)

const (
	Version = "1.0.0"
	appName = "procurement"
)

type globalOptions struct {
	configPath string
	envFiles   []string
	logLevel   string
}

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Procurement status workflow engine",
		Long: `Tracks purchase requisitions and purchase orders through their status
workflow: validated transitions, audit history, notifications, delivery
reminders and automatic cancellation of overdue orders.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "configs/config.yaml", "Config file path (YAML); empty to use defaults and environment only")
	cmd.PersistentFlags().StringSliceVar(&opts.envFiles, "env-file", []string{".env"}, "Env files loaded before the config")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override logger.level")

	cmd.AddCommand(
		serveCmd(opts),
		transitionCmd(opts),
		allowedCmd(opts),
		sweepCmd(opts),
		migrateCmd(opts),
		vendorCmd(opts),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, Version)
			},
		},
	)

	return cmd
}

// load reads configuration and builds the logger
func (o *globalOptions) load() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(o.configPath, o.envFiles...)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if o.logLevel != "" {
		cfg.Logger.Level = o.logLevel
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("initialize logger: %w", err)
	}
	return cfg, logger, nil
}

// startContainer loads configuration and starts a container. One-shot
// commands pass withScheduler=false so no cron jobs run alongside them.
func (o *globalOptions) startContainer(ctx context.Context, withScheduler bool) (*container.Container, *config.Config, *zap.Logger, error) {
	cfg, logger, err := o.load()
	if err != nil {
		return nil, nil, nil, err
	}

	containerCfg, err := cfg.ToContainerConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	if !withScheduler {
		containerCfg.Scheduler.Enabled = false
	}

	c, err := container.NewContainer(containerCfg, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := c.Start(ctx); err != nil {
		return nil, nil, nil, err
	}
	return c, cfg, logger, nil
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
