package filestore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/user/harvester/internal/entity"
)

// DatasetRepoImpl reads the merged dataset (a JSON array) as an export source.
type DatasetRepoImpl struct {
	path string

	once  sync.Once
	items []*entity.ContentItem
	err   error
}

func NewDatasetRepo(path string) *DatasetRepoImpl {
	return &DatasetRepoImpl{path: path}
}

func (r *DatasetRepoImpl) ReadBatch(_ context.Context, offset int64, limit int) ([]*entity.ContentItem, error) {
	r.once.Do(r.load)
	if r.err != nil {
		return nil, r.err
	}
	if offset < 0 || offset >= int64(len(r.items)) || limit <= 0 {
		return nil, nil
	}
	end := offset + int64(limit)
	if end > int64(len(r.items)) {
		end = int64(len(r.items))
	}
	return r.items[offset:end], nil
}

func (r *DatasetRepoImpl) load() {
	data, err := os.ReadFile(r.path)
	if err != nil {
		r.err = fmt.Errorf("read dataset: %w", err)
		return
	}
	if err := json.Unmarshal(data, &r.items); err != nil {
		r.err = fmt.Errorf("decode dataset %s: %w", r.path, err)
	}
}
