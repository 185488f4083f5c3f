package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/user/harvester/internal/entity"
	"github.com/user/harvester/internal/repository"
)

type PersistResult int

const (
	PersistInserted PersistResult = iota
	// PersistSkipped means the key was already stored. It is not an error.
	PersistSkipped
)

func (r PersistResult) String() string {
	if r == PersistInserted {
		return "inserted"
	}
	return "skipped"
}

// ContentPipeline persists items, raw snapshots and link edges idempotently.
type ContentPipeline interface {
	Persist(ctx context.Context, item *entity.ContentItem) (PersistResult, error)
	PersistSnapshot(ctx context.Context, platform, key string, raw []byte) error
	PersistEdge(ctx context.Context, from, to string) error
}

type contentPipeline struct {
	content   repository.ContentRepository
	snapshots repository.SnapshotRepository
	links     repository.LinkRepository
	logger    *zap.Logger

	// mu serializes inserts across workers and sources.
	mu sync.Mutex
}

// NewContentPipeline creates a pipeline. snapshots and links may be nil when
// the backend does not keep them.
func NewContentPipeline(
	content repository.ContentRepository,
	snapshots repository.SnapshotRepository,
	links repository.LinkRepository,
	logger *zap.Logger,
) ContentPipeline {
	return &contentPipeline{
		content:   content,
		snapshots: snapshots,
		links:     links,
		logger:    logger,
	}
}

func (p *contentPipeline) Persist(ctx context.Context, item *entity.ContentItem) (PersistResult, error) {
	if item.SourceID == "" {
		return PersistSkipped, errors.New("item has no source id")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	inserted, err := p.content.Insert(ctx, item)
	if errors.Is(err, repository.ErrDuplicateKey) {
		inserted, err = false, nil
	}
	if err != nil {
		return PersistSkipped, fmt.Errorf("failed to persist %s: %w", item.SourceID, err)
	}
	if !inserted {
		p.logger.Debug("item already stored", zap.String("source_id", item.SourceID))
		return PersistSkipped, nil
	}
	return PersistInserted, nil
}

func (p *contentPipeline) PersistSnapshot(ctx context.Context, platform, key string, raw []byte) error {
	if p.snapshots == nil {
		return nil
	}
	if err := p.snapshots.SaveSnapshot(ctx, platform, key, raw); err != nil {
		return fmt.Errorf("failed to save snapshot of %s: %w", key, err)
	}
	return nil
}

func (p *contentPipeline) PersistEdge(ctx context.Context, from, to string) error {
	if p.links == nil || from == "" || to == "" {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := p.links.AddEdge(ctx, entity.LinkEdge{SourceKey: from, TargetKey: to}); err != nil && !errors.Is(err, repository.ErrDuplicateKey) {
		return fmt.Errorf("failed to save edge %s -> %s: %w", from, to, err)
	}
	return nil
}
