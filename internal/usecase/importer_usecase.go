package usecase

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/user/harvester/internal/entity"
	"github.com/user/harvester/internal/repository"
	"github.com/user/harvester/pkg/utils"
)

const (
	importLockSource   = "import"
	importProgressFile = "processed.txt"
	DefaultImportBatch = 200
)

type ImportOptions struct {
	DataDir   string
	Resume    bool
	DryRun    bool
	BatchSize int
}

// Importer loads a directory of per-item metadata files into the central store.
type Importer interface {
	Import(ctx context.Context, opts ImportOptions) (*entity.ImportStats, error)
}

type importer struct {
	central repository.CentralStore
	locks   repository.LockRepository
	lockTTL time.Duration
	files   Merger
	logger  *zap.Logger
}

func NewImporter(central repository.CentralStore, locks repository.LockRepository, lockTTL time.Duration, logger *zap.Logger) Importer {
	return &importer{
		central: central,
		locks:   locks,
		lockTTL: lockTTL,
		files:   NewMerger("", logger),
		logger:  logger,
	}
}

type importBatch struct {
	items []*entity.ContentItem
	files []string
}

func (im *importer) Import(ctx context.Context, opts ImportOptions) (stats *entity.ImportStats, err error) {
	if opts.BatchSize < 1 {
		opts.BatchSize = DefaultImportBatch
	}
	stats = &entity.ImportStats{}

	if !opts.DryRun {
		marker := &entity.LockMarker{Source: importLockSource, Owner: uuid.NewString(), CreatedAt: time.Now()}
		if err := im.locks.Acquire(ctx, marker, im.lockTTL); err != nil {
			return stats, err
		}
		defer func() {
			if relErr := im.locks.Release(context.WithoutCancel(ctx), marker); relErr != nil {
				im.logger.Error("failed to release import lock", zap.Error(relErr))
			}
		}()
	}

	progressPath := filepath.Join(opts.DataDir, importProgressFile)
	done := map[string]struct{}{}
	switch {
	case opts.Resume:
		if done, err = loadProgress(progressPath); err != nil {
			return stats, err
		}
		im.logger.Info("resuming import", zap.Int("already_processed", len(done)))
	case !opts.DryRun:
		if err := os.Remove(progressPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return stats, fmt.Errorf("failed to reset progress file: %w", err)
		}
	}

	files, err := im.files.FindFiles(opts.DataDir)
	if err != nil {
		return stats, err
	}
	im.logger.Info("import started", zap.String("dir", opts.DataDir), zap.Int("files", len(files)), zap.Bool("dry_run", opts.DryRun))

	batch := &importBatch{}
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		records, err := readRecords(path)
		if err != nil {
			im.logger.Warn("unreadable metadata file", zap.String("path", path), zap.Error(err))
			stats.Failed++
			continue
		}
		if _, ok := done[path]; ok {
			stats.Total += len(records)
			stats.Skipped += len(records)
			continue
		}
		for _, item := range records {
			stats.Total++
			if !item.Complete() {
				stats.Failed++
				im.logger.Debug("incomplete record", zap.String("path", path), zap.String("source_id", item.SourceID))
				continue
			}
			if _, err := utils.ParseTime(item.PublishTime, time.Local); err != nil {
				stats.Failed++
				im.logger.Debug("unparseable publish time", zap.String("path", path), zap.String("publish_time", item.PublishTime))
				continue
			}
			batch.items = append(batch.items, item)
		}
		batch.files = append(batch.files, path)

		if len(batch.items) >= opts.BatchSize {
			im.flush(ctx, batch, opts, progressPath, stats)
			batch = &importBatch{}
		}
	}
	im.flush(ctx, batch, opts, progressPath, stats)

	im.logger.Info("import finished",
		zap.Int("total", stats.Total),
		zap.Int("success", stats.Success),
		zap.Int("failed", stats.Failed),
		zap.Int("skipped", stats.Skipped),
	)
	return stats, nil
}

// flush writes one batch. Files of a failed batch stay out of the progress
// file so a resumed import retries them.
func (im *importer) flush(ctx context.Context, b *importBatch, opts ImportOptions, progressPath string, stats *entity.ImportStats) {
	if len(b.items) == 0 && len(b.files) == 0 {
		return
	}
	if opts.DryRun {
		stats.Success += len(b.items)
		return
	}
	if len(b.items) > 0 {
		n, err := im.central.InsertNew(ctx, b.items)
		if err != nil {
			im.logger.Error("batch insert failed", zap.Int("records", len(b.items)), zap.Error(err))
			stats.Failed += len(b.items)
			return
		}
		stats.Success += n
		stats.Skipped += len(b.items) - n
	}
	if err := appendProgress(progressPath, b.files); err != nil {
		im.logger.Warn("failed to record progress", zap.Error(err))
	}
}

func loadProgress(path string) (map[string]struct{}, error) {
	done := make(map[string]struct{})
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return done, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open progress file: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			done[line] = struct{}{}
		}
	}
	return done, sc.Err()
}

func appendProgress(path string, files []string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	for _, p := range files {
		fmt.Fprintln(w, p)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
