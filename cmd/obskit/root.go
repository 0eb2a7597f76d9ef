package main

import (
	"context"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"obskit/internal/app"
	"obskit/internal/domain"
	"obskit/internal/infra/telemetry"
)

type cliOptions struct {
	configPath string
	workspace  string
	logLevel   string
	listen     string
	jsonOutput bool

	cfg      app.Config
	manager  *app.Manager
	registry *prometheus.Registry
	logger   *zap.Logger
}

func newRootCommand(opts *cliOptions) *cobra.Command {
	if opts.logger == nil {
		opts.logger = zap.NewNop()
	}

	root := &cobra.Command{
		Use:           "obskit",
		Short:         "Observability kernel for infrastructure tooling",
		Version:       app.VersionString(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.setup(cmd)
		},
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to the obskit YAML config")
	root.PersistentFlags().StringVar(&opts.workspace, "workspace", "", "workspace directory (overrides diagnostics.workspaceDir)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "minimum log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "output JSON")

	root.AddCommand(
		newHealthCmd(opts),
		newSnapshotCmd(opts),
		newPromptCmd(opts),
		newHistoryCmd(opts),
		newLogsCmd(opts),
		newMetricsCmd(opts),
		newWatchCmd(opts),
		newRunCmd(opts),
	)

	return root
}

func (o *cliOptions) setup(cmd *cobra.Command) error {
	cfg, err := app.LoadConfig(o.configPath)
	if err != nil {
		return err
	}
	if err := applyRootFlagBindings(cmd, o, &cfg); err != nil {
		return err
	}

	logger, err := zap.NewProduction()
	if err == nil {
		o.logger = logger.With(telemetry.LogSourceField(telemetry.LogSourceCLI))
	}

	o.cfg = cfg
	o.registry = prometheus.NewRegistry()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	manager, err := app.Initialize(ctx, cfg,
		app.WithRegisterer(o.registry),
		app.WithListenAddress(o.listen),
		app.WithExporterLogger(o.logger),
	)
	if err != nil {
		return err
	}
	o.manager = manager
	return nil
}

func (o *cliOptions) teardown(ctx context.Context) error {
	defer func() {
		_ = o.logger.Sync()
	}()
	if o.manager == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return o.manager.Shutdown(ctx)
}

func applyRootFlagBindings(cmd *cobra.Command, opts *cliOptions, cfg *app.Config) error {
	var err error
	cmd.Flags().Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "workspace":
			cfg.Diagnostics.WorkspaceDir = strings.TrimSpace(opts.workspace)
		case "log-level":
			level, parseErr := domain.ParseLogLevel(opts.logLevel)
			if parseErr != nil {
				err = parseErr
				return
			}
			cfg.Logger.Level = level
		}
	})
	return err
}
