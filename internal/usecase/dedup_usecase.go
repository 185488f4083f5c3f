package usecase

import (
	"context"
	"fmt"
	"sync"

	"github.com/user/harvester/internal/repository"
)

// DedupStore is the in-memory set of captured keys for one source. It is
// loaded once at run start; storage enforces uniqueness independently.
type DedupStore interface {
	Load(ctx context.Context, platform string) error
	Contains(key string) bool
	Add(key string)
	Len() int
}

type dedupStore struct {
	repo repository.ContentRepository

	mu   sync.RWMutex
	keys map[string]struct{}
}

func NewDedupStore(repo repository.ContentRepository) DedupStore {
	return &dedupStore{repo: repo, keys: make(map[string]struct{})}
}

func (d *dedupStore) Load(ctx context.Context, platform string) error {
	keys, err := d.repo.Keys(ctx, platform)
	if err != nil {
		return fmt.Errorf("failed to load captured keys for %s: %w", platform, err)
	}
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	d.mu.Lock()
	d.keys = set
	d.mu.Unlock()
	return nil
}

func (d *dedupStore) Contains(key string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.keys[key]
	return ok
}

func (d *dedupStore) Add(key string) {
	d.mu.Lock()
	d.keys[key] = struct{}{}
	d.mu.Unlock()
}

func (d *dedupStore) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.keys)
}
