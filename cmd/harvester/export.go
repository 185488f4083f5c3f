package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/user/harvester/pkg/config"
)

func newExportCommand(root *rootOptions) *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Upload staged records into the central store",
		Long: `Export reads batches from the configured export source starting at the saved
cursor and upserts them into PostgreSQL. A batch with an incomplete record is
rejected as a whole and the cursor stays where it was.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel, cfg, logger, err := setup(cmd, root,
				config.WithFlag("EXPORT_BATCH_SIZE", cmd.Flags().Lookup("batch-size")),
				config.WithFlag("EXPORT_SOURCE", cmd.Flags().Lookup("from")),
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

			// The dataset is only as fresh as the last merge.
			if cfg.ExportSource == config.ExportDataset {
				if _, err := refreshDataset(ctx, cfg, logger); err != nil {
					return err
				}
			}

			exp, err := a.exporter(ctx)
			if err != nil {
				return err
			}

			if once {
				res, err := exp.ExportNextBatch(ctx, cfg.ExportBatchSize)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "export %s: rows=%d offset=%d\n", res.Outcome, res.Rows, res.Offset)
				return nil
			}

			sum, err := exp.ExportAll(ctx, cfg.ExportBatchSize)
			if err != nil {
				return err
			}
			logger.Info("export finished",
				zap.Int("batches", sum.Batches),
				zap.Int("rows", sum.Rows),
				zap.Int64("offset", sum.Offset),
				zap.String("last", string(sum.Last)),
			)
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d rows in %d batches, offset=%d (%s)\n", sum.Rows, sum.Batches, sum.Offset, sum.Last)
			return nil
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "export a single batch")
	cmd.Flags().Int("batch-size", 100, "records per batch")
	cmd.Flags().String("from", "", "export source: sqlite, mongo or dataset (defaults to the content backend's)")
	return cmd
}
