package repository

import (
	"context"

	"github.com/user/harvester/internal/entity"
)

// ExportSource reads staged items in a stable order.
type ExportSource interface {
	ReadBatch(ctx context.Context, offset int64, limit int) ([]*entity.ContentItem, error)
}

// CentralStore is the relational store records are synchronized into.
type CentralStore interface {
	EnsureSchema(ctx context.Context) error
	// UpsertBatch writes all items in one transaction or none of them.
	UpsertBatch(ctx context.Context, items []*entity.ContentItem) (int, error)
	// InsertNew inserts items whose SourceID is unknown and returns how many were inserted.
	InsertNew(ctx context.Context, items []*entity.ContentItem) (int, error)
}

// CursorRepository persists the export cursor.
type CursorRepository interface {
	Load(ctx context.Context) (*entity.ExportCursor, error)
	Save(ctx context.Context, cursor *entity.ExportCursor) error
}
