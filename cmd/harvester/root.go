package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/user/harvester/pkg/config"
	"github.com/user/harvester/pkg/logger"
)

type rootOptions struct {
	configFile string
	logLevel   string
	logFormat  string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "harvester",
		Short:         "Harvest articles from publisher feeds and institutional web sites",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.PersistentFlags().StringVar(&opts.configFile, "config", ".env", "env-style config file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "INFO", "DEBUG, INFO, WARNING, ERROR or CRITICAL")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "json", "json or console")

	cmd.AddCommand(
		newCrawlCommand(opts),
		newSpiderCommand(opts),
		newLoginCommand(opts),
		newMergeCommand(opts),
		newExportCommand(opts),
		newServeCommand(opts),
		newScheduleCommand(opts),
	)
	return cmd
}

// setup loads configuration and the logger and returns a context cancelled on SIGINT/SIGTERM.
func setup(cmd *cobra.Command, opts *rootOptions, extra ...config.Option) (context.Context, context.CancelFunc, *config.Config, *zap.Logger, error) {
	// Values from a plain .env are exported first so child processes see them too.
	_ = godotenv.Load()

	flags := cmd.Flags()
	extra = append(extra,
		config.WithFlag("LOG_LEVEL", flags.Lookup("log-level")),
		config.WithFlag("LOG_FORMAT", flags.Lookup("log-format")),
	)
	cfg, err := config.Load(opts.configFile, extra...)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	return ctx, cancel, cfg, log, nil
}
