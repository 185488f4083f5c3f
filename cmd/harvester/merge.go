package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/user/harvester/internal/usecase"
	"github.com/user/harvester/pkg/config"
)

func newMergeCommand(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Merge per-item metadata files into one deduplicated dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel, cfg, logger, err := setup(cmd, root,
				config.WithFlag("DATA_DIR", cmd.Flags().Lookup("data-dir")),
				config.WithFlag("DATASET_PATH", cmd.Flags().Lookup("output")),
			)
			if err != nil {
				return err
			}
			defer cancel()
			defer logger.Sync() //nolint:errcheck

			res, err := refreshDataset(ctx, cfg, logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "merged %d files into %d items at %s\n", res.Files, len(res.Items), cfg.DatasetPath)
			return nil
		},
	}
	cmd.Flags().String("data-dir", "data", "directory holding per-item metadata files")
	cmd.Flags().String("output", "data/merged.json", "dataset file to write")
	return cmd
}

// refreshDataset rebuilds the dataset file from the per-item files under the
// data directory. Items already in the dataset keep their positions.
func refreshDataset(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*usecase.MergeResult, error) {
	m := usecase.NewMerger(cfg.DatasetPath, logger)
	files, err := m.FindFiles(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	res, err := m.Merge(ctx, files)
	if err != nil {
		return nil, err
	}
	if err := m.WriteDataset(cfg.DatasetPath, res.Items); err != nil {
		return nil, err
	}
	logger.Info("merge finished",
		zap.Int("files", res.Files),
		zap.Int("records", res.Records),
		zap.Int("previous", res.Previous),
		zap.Int("items", len(res.Items)),
		zap.Int("duplicates", res.Duplicates),
		zap.Int("title_fallback_merges", res.TitleFallbackMerges),
		zap.Int("invalid", res.Invalid),
	)
	return res, nil
}
