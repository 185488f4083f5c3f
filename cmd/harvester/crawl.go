package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/user/harvester/pkg/config"
)

type crawlOptions struct {
	source string
	all    bool
}

func newCrawlCommand(root *rootOptions) *cobra.Command {
	opts := &crawlOptions{}
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Run one crawl for a source or for every source",
		Example: `  harvester crawl --source wechat
  harvester crawl --all --workers 4`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.all == (opts.source != "") {
				return errors.New("exactly one of --source or --all is required")
			}
			sources := []string{opts.source}
			if opts.all {
				sources = knownSources
			}
			return runCrawl(cmd, root, sources)
		},
	}
	cmd.Flags().StringVar(&opts.source, "source", "", fmt.Sprintf("source to crawl (%s or %s)", sourceWechat, sourceWeb))
	cmd.Flags().BoolVar(&opts.all, "all", false, "crawl every source concurrently")
	cmd.Flags().Int("workers", 1, "concurrent fetches per source")
	return cmd
}

func newSpiderCommand(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "spider",
		Short: "Crawl the configured institutional web sites",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrawl(cmd, root, []string{sourceWeb})
		},
	}
	cmd.Flags().Int("workers", 1, "concurrent fetches")
	cmd.Flags().Int("max-depth", 3, "maximum link depth from the seeds")
	return cmd
}

func runCrawl(cmd *cobra.Command, root *rootOptions, sources []string) error {
	ctx, cancel, cfg, logger, err := setup(cmd, root,
		config.WithFlag("CRAWL_WORKERS", cmd.Flags().Lookup("workers")),
		config.WithFlag("SPIDER_MAX_DEPTH", cmd.Flags().Lookup("max-depth")),
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

	// One source failing must not cancel the others, so the group context is not used.
	var g errgroup.Group
	for _, source := range sources {
		g.Go(func() error {
			report, err := a.run(ctx, source)
			if report != nil {
				fmt.Fprintln(cmd.OutOrStdout(), report.Summary())
			}
			if err != nil {
				logger.Error("crawl run failed", zap.String("source", source), zap.Error(err))
				return fmt.Errorf("crawl %s: %w", source, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// crawlAndExport is the scheduled job: every source, then one export pass.
func crawlAndExport(ctx context.Context, a *app) error {
	var errs []error
	for _, source := range knownSources {
		if _, err := a.run(ctx, source); err != nil {
			errs = append(errs, fmt.Errorf("crawl %s: %w", source, err))
		}
	}
	if ctx.Err() != nil {
		return errors.Join(append(errs, ctx.Err())...)
	}
	if a.cfg.ExportSource == config.ExportDataset {
		if _, err := refreshDataset(ctx, a.cfg, a.logger); err != nil {
			return errors.Join(append(errs, fmt.Errorf("merge: %w", err))...)
		}
	}
	exp, err := a.exporter(ctx)
	if err != nil {
		return errors.Join(append(errs, err)...)
	}
	if _, err := exp.ExportAll(ctx, a.cfg.ExportBatchSize); err != nil {
		errs = append(errs, fmt.Errorf("export: %w", err))
	}
	return errors.Join(errs...)
}
