package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/user/harvester/internal/entity"
	"github.com/user/harvester/internal/repository"
	"github.com/user/harvester/pkg/metrics"
	"github.com/user/harvester/pkg/utils"
)

// ExportSummary aggregates an ExportAll call.
type ExportSummary struct {
	Batches int
	Rows    int
	Offset  int64
	// Last is the outcome that ended the loop: empty or rejected.
	Last entity.ExportOutcome
}

// Exporter synchronizes staged records into the central store.
type Exporter interface {
	// ExportNextBatch commits the next batch all-or-nothing. An incomplete
	// record rejects the whole batch without returning an error.
	ExportNextBatch(ctx context.Context, batchSize int) (*entity.ExportResult, error)
	ExportAll(ctx context.Context, batchSize int) (*ExportSummary, error)
}

type exporter struct {
	source  repository.ExportSource
	central repository.CentralStore
	cursors repository.CursorRepository
	loc     *time.Location
	now     func() time.Time
	logger  *zap.Logger
}

func NewExporter(source repository.ExportSource, central repository.CentralStore, cursors repository.CursorRepository, logger *zap.Logger) Exporter {
	return &exporter{
		source:  source,
		central: central,
		cursors: cursors,
		loc:     time.Local,
		now:     time.Now,
		logger:  logger,
	}
}

func (e *exporter) ExportNextBatch(ctx context.Context, batchSize int) (*entity.ExportResult, error) {
	cursor, err := e.cursors.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load export cursor: %w", err)
	}

	items, err := e.source.ReadBatch(ctx, cursor.Offset, batchSize)
	if err != nil {
		metrics.ExportBatchesTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("failed to read batch at offset %d: %w", cursor.Offset, err)
	}
	if len(items) == 0 {
		metrics.ExportBatchesTotal.WithLabelValues(string(entity.ExportEmpty)).Inc()
		e.logger.Info("nothing to export", zap.Int64("offset", cursor.Offset))
		return &entity.ExportResult{Outcome: entity.ExportEmpty, Offset: cursor.Offset, InvalidIndex: -1}, nil
	}

	if idx, err := e.validate(items); err != nil {
		metrics.ExportBatchesTotal.WithLabelValues(string(entity.ExportRejected)).Inc()
		e.logger.Warn("incomplete data, upload cancelled",
			zap.Int64("offset", cursor.Offset),
			zap.Int("index", idx),
			zap.String("source_id", items[idx].SourceID),
			zap.Error(err),
		)
		return &entity.ExportResult{Outcome: entity.ExportRejected, Offset: cursor.Offset, InvalidIndex: idx}, nil
	}

	rows, err := e.central.UpsertBatch(ctx, items)
	if err != nil {
		metrics.ExportBatchesTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("failed to upsert batch at offset %d: %w", cursor.Offset, err)
	}

	next := &entity.ExportCursor{Offset: cursor.Offset + int64(len(items)), LastExportTime: e.now()}
	if err := e.cursors.Save(ctx, next); err != nil {
		// The batch is committed; re-exporting it is an idempotent upsert.
		return nil, fmt.Errorf("batch committed but cursor not saved at offset %d: %w", next.Offset, err)
	}

	metrics.ExportBatchesTotal.WithLabelValues(string(entity.ExportCommitted)).Inc()
	metrics.ExportedRowsTotal.Add(float64(rows))
	e.logger.Info("batch exported", zap.Int("rows", rows), zap.Int64("offset", next.Offset))
	return &entity.ExportResult{Outcome: entity.ExportCommitted, Rows: rows, Offset: next.Offset, InvalidIndex: -1}, nil
}

// validate returns the index of the first record missing a source id, a title
// or a parseable publish time.
func (e *exporter) validate(items []*entity.ContentItem) (int, error) {
	for i, item := range items {
		if !item.Complete() {
			return i, repository.ErrIncompleteRecord
		}
		if _, err := utils.ParseTime(item.PublishTime, e.loc); err != nil {
			return i, fmt.Errorf("%w: %v", repository.ErrIncompleteRecord, err)
		}
	}
	return -1, nil
}

func (e *exporter) ExportAll(ctx context.Context, batchSize int) (*ExportSummary, error) {
	sum := &ExportSummary{}
	for {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		res, err := e.ExportNextBatch(ctx, batchSize)
		if err != nil {
			return sum, err
		}
		sum.Offset = res.Offset
		if res.Outcome != entity.ExportCommitted {
			sum.Last = res.Outcome
			return sum, nil
		}
		sum.Batches++
		sum.Rows += res.Rows
	}
}
