package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/user/harvester/internal/usecase"
	"github.com/user/harvester/pkg/config"
)

func newScheduleCommand(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Crawl every source and export on a cron schedule",
		Example: `  harvester schedule --cron "0 */4 * * *"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel, cfg, logger, err := setup(cmd, root,
				config.WithFlag("SCHEDULE", cmd.Flags().Lookup("cron")),
			)
			if err != nil {
				return err
			}
			defer cancel()
			defer logger.Sync() //nolint:errcheck

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.close()

			s, err := usecase.NewScheduler(cfg.Schedule, func(ctx context.Context) error {
				return crawlAndExport(ctx, a)
			}, logger)
			if err != nil {
				return err
			}
			return s.Run(ctx)
		},
	}
	cmd.Flags().String("cron", "0 */4 * * *", "five-field cron spec")
	return cmd
}
