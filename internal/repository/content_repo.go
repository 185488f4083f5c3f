package repository

import (
	"context"

	"github.com/user/harvester/internal/entity"
)

// ContentRepository stores harvested items. Implementations enforce SourceID uniqueness.
type ContentRepository interface {
	// Keys returns every SourceID stored for platform.
	Keys(ctx context.Context, platform string) ([]string, error)
	// Insert stores item and reports false when its SourceID already existed.
	Insert(ctx context.Context, item *entity.ContentItem) (bool, error)
	// Find returns ErrNotFound for unknown items.
	Find(ctx context.Context, platform, sourceID string) (*entity.ContentItem, error)
}

// SnapshotRepository keeps the raw page of an item. Saving the same key again overwrites.
type SnapshotRepository interface {
	SaveSnapshot(ctx context.Context, platform, sourceID string, raw []byte) error
}

// LinkRepository stores the link graph. AddEdge reports false for an existing edge.
type LinkRepository interface {
	AddEdge(ctx context.Context, edge entity.LinkEdge) (bool, error)
}

// CounterRepository keeps one line per finished run.
type CounterRepository interface {
	Append(ctx context.Context, report *entity.RunReport) error
}
