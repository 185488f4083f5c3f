package filestore

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/user/harvester/internal/entity"
	"github.com/user/harvester/internal/repository"
	"github.com/user/harvester/pkg/utils"
)

const (
	indexFile    = "scraped_urls.json"
	edgesFile    = "edges.jsonl"
	snapshotsDir = "snapshots"
)

// ContentRepoImpl stores one JSON metadata file per item under
// <root>/<platform>/<yyyymm>/<sha256(source_id)>.json and keeps the set of
// stored keys in <root>/<platform>/scraped_urls.json.
type ContentRepoImpl struct {
	root string
	now  func() time.Time

	mu    sync.Mutex
	index map[string]map[string]struct{}
	edges map[entity.LinkEdge]struct{}
}

func NewContentRepo(root string) *ContentRepoImpl {
	return &ContentRepoImpl{
		root:  root,
		now:   time.Now,
		index: make(map[string]map[string]struct{}),
	}
}

func platformDir(platform string) string {
	if platform == "" {
		return "default"
	}
	return platform
}

func (r *ContentRepoImpl) Keys(_ context.Context, platform string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx, err := r.loadIndex(platform)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(idx))
	for k := range idx {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (r *ContentRepoImpl) Insert(_ context.Context, item *entity.ContentItem) (bool, error) {
	if item.SourceID == "" {
		return false, fmt.Errorf("insert item: empty source id")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	idx, err := r.loadIndex(item.Platform)
	if err != nil {
		return false, err
	}
	if _, ok := idx[item.SourceID]; ok {
		return false, nil
	}

	data, err := json.MarshalIndent(item, "", "  ")
	if err != nil {
		return false, fmt.Errorf("encode item %s: %w", item.SourceID, err)
	}
	if err := writeFileAtomic(r.itemPath(item), data); err != nil {
		return false, fmt.Errorf("write item %s: %w", item.SourceID, err)
	}

	idx[item.SourceID] = struct{}{}
	if err := r.saveIndex(item.Platform, idx); err != nil {
		return false, err
	}
	return true, nil
}

func (r *ContentRepoImpl) Find(_ context.Context, platform, sourceID string) (*entity.ContentItem, error) {
	pattern := filepath.Join(r.root, platformDir(platform), "*", utils.HashURL(sourceID)+".json")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, repository.ErrNotFound
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		return nil, fmt.Errorf("read item: %w", err)
	}
	var item entity.ContentItem
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, fmt.Errorf("decode item %s: %w", matches[0], err)
	}
	return &item, nil
}

// SaveSnapshot writes <root>/<platform>/snapshots/<sha256(source_id)>.html.
func (r *ContentRepoImpl) SaveSnapshot(_ context.Context, platform, sourceID string, raw []byte) error {
	path := filepath.Join(r.root, platformDir(platform), snapshotsDir, utils.HashURL(sourceID)+".html")
	return writeFileAtomic(path, raw)
}

// AddEdge appends to <root>/edges.jsonl unless the edge is already recorded.
func (r *ContentRepoImpl) AddEdge(_ context.Context, edge entity.LinkEdge) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.loadEdges(); err != nil {
		return false, err
	}
	if _, ok := r.edges[edge]; ok {
		return false, nil
	}

	line, err := json.Marshal(edge)
	if err != nil {
		return false, err
	}
	if err := os.MkdirAll(r.root, 0o755); err != nil {
		return false, err
	}
	f, err := os.OpenFile(filepath.Join(r.root, edgesFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return false, fmt.Errorf("open edges file: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return false, fmt.Errorf("append edge: %w", err)
	}
	r.edges[edge] = struct{}{}
	return true, nil
}

func (r *ContentRepoImpl) itemPath(item *entity.ContentItem) string {
	month := r.now().Format("200601")
	if t, err := utils.ParseTime(item.PublishTime, time.Local); err == nil {
		month = t.Format("200601")
	} else if !item.ScrapeTime.IsZero() {
		month = item.ScrapeTime.Format("200601")
	}
	return filepath.Join(r.root, platformDir(item.Platform), month, utils.HashURL(item.SourceID)+".json")
}

func (r *ContentRepoImpl) loadIndex(platform string) (map[string]struct{}, error) {
	if idx, ok := r.index[platform]; ok {
		return idx, nil
	}
	idx := make(map[string]struct{})
	data, err := os.ReadFile(filepath.Join(r.root, platformDir(platform), indexFile))
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read key index: %w", err)
	default:
		var keys []string
		if err := json.Unmarshal(data, &keys); err != nil {
			return nil, fmt.Errorf("decode key index: %w", err)
		}
		for _, k := range keys {
			idx[k] = struct{}{}
		}
	}
	r.index[platform] = idx
	return idx, nil
}

func (r *ContentRepoImpl) saveIndex(platform string, idx map[string]struct{}) error {
	keys := make([]string, 0, len(idx))
	for k := range idx {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	data, err := json.Marshal(keys)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(filepath.Join(r.root, platformDir(platform), indexFile), data); err != nil {
		return fmt.Errorf("write key index: %w", err)
	}
	return nil
}

func (r *ContentRepoImpl) loadEdges() error {
	if r.edges != nil {
		return nil
	}
	r.edges = make(map[entity.LinkEdge]struct{})
	f, err := os.Open(filepath.Join(r.root, edgesFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open edges file: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e entity.LinkEdge
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			continue
		}
		r.edges[e] = struct{}{}
	}
	return sc.Err()
}
