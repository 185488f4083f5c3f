package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/user/harvester/internal/adapter/filestore"
	"github.com/user/harvester/internal/adapter/postgres"
	redisrepo "github.com/user/harvester/internal/adapter/redis"
	"github.com/user/harvester/internal/repository"
	"github.com/user/harvester/internal/usecase"
	"github.com/user/harvester/pkg/config"
	"github.com/user/harvester/pkg/logger"
)

type options struct {
	configFile string
	resume     bool
	noResume   bool
	dryRun     bool
	batchSize  int
}

func newCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "importer <data-dir>",
		Short: "Import per-item metadata files into the central store",
		Long: `Importer walks data-dir for per-item JSON metadata files and inserts every
complete record whose source id is not yet stored. Processed files are
listed in processed.txt inside data-dir so an interrupted import can resume.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, args[0])
		},
	}
	cmd.Flags().StringVar(&opts.configFile, "config", ".env", "env-style config file")
	cmd.Flags().BoolVar(&opts.resume, "resume", false, "skip files listed in the progress file")
	cmd.Flags().BoolVar(&opts.noResume, "no-resume", false, "start over and reset the progress file (default)")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "validate records without writing")
	cmd.Flags().IntVar(&opts.batchSize, "batch-size", usecase.DefaultImportBatch, "records per insert batch")
	cmd.Flags().String("log-level", "INFO", "DEBUG, INFO, WARNING, ERROR or CRITICAL")
	cmd.MarkFlagsMutuallyExclusive("resume", "no-resume")
	return cmd
}

func run(cmd *cobra.Command, opts *options, dataDir string) error {
	cfg, err := config.Load(opts.configFile, config.WithFlag("LOG_LEVEL", cmd.Flags().Lookup("log-level")))
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var central repository.CentralStore
	if !opts.dryRun {
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return fmt.Errorf("create postgres pool: %w", err)
		}
		defer pool.Close()
		repo := postgres.NewArticleRepo(pool)
		if err := repo.Ping(ctx); err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		if err := repo.EnsureSchema(ctx); err != nil {
			return err
		}
		central = repo
	}

	locks, closeLocks, err := lockRepo(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeLocks()

	im := usecase.NewImporter(central, locks, cfg.LockTTL, log)
	stats, err := im.Import(ctx, usecase.ImportOptions{
		DataDir:   dataDir,
		Resume:    opts.resume && !opts.noResume,
		DryRun:    opts.dryRun,
		BatchSize: opts.batchSize,
	})
	if err != nil {
		log.Error("import aborted", zap.Error(err))
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "total=%d success=%d failed=%d skipped=%d\n",
		stats.Total, stats.Success, stats.Failed, stats.Skipped)
	return nil
}

func lockRepo(ctx context.Context, cfg *config.Config) (repository.LockRepository, func(), error) {
	if cfg.LockBackend != "redis" {
		return filestore.NewLockRepo(cfg.DataDir), func() {}, nil
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("connect to redis: %w", err)
	}
	return redisrepo.NewLockRepo(rdb), func() { _ = rdb.Close() }, nil
}
