package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/user/harvester/internal/entity"
	"github.com/user/harvester/pkg/utils"
)

// MergeResult describes one merge of per-item files into a dataset.
type MergeResult struct {
	Items      []*entity.ContentItem
	Files      int
	Records    int
	Duplicates int
	// TitleFallbackMerges counts records without a source id that were merged
	// into an existing entry with the same title.
	TitleFallbackMerges int
	Invalid             int
	// Previous counts items carried over from the existing dataset. They keep
	// their positions; new items are appended after them.
	Previous int
}

// Merger collapses per-item metadata files into one deduplicated dataset.
type Merger interface {
	FindFiles(dir string) ([]string, error)
	Merge(ctx context.Context, files []string) (*MergeResult, error)
	WriteDataset(path string, items []*entity.ContentItem) error
}

type merger struct {
	dataset string
	exclude string
	now     func() time.Time
	logger  *zap.Logger
}

// NewMerger creates a Merger. Files at datasetPath are never read back as input.
func NewMerger(datasetPath string, logger *zap.Logger) Merger {
	exclude := ""
	if datasetPath != "" {
		if abs, err := filepath.Abs(datasetPath); err == nil {
			exclude = abs
		}
	}
	return &merger{dataset: datasetPath, exclude: exclude, now: time.Now, logger: logger}
}

// isBookkeeping reports files written by the stores next to the items.
func isBookkeeping(name string) bool {
	return strings.HasPrefix(name, "scraped") || strings.HasPrefix(name, "edges")
}

func (m *merger) isDataset(path string) bool {
	if m.exclude == "" {
		return false
	}
	abs, err := filepath.Abs(path)
	return err == nil && abs == m.exclude
}

func (m *merger) FindFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == "snapshots" {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".json" || isBookkeeping(d.Name()) {
			return nil
		}
		if m.isDataset(path) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", dir, err)
	}
	sort.Strings(files)
	return files, nil
}

func (m *merger) Merge(ctx context.Context, files []string) (*MergeResult, error) {
	files = append([]string(nil), files...)
	sort.Strings(files)

	res := &MergeResult{}
	byID := make(map[string]*entity.ContentItem)
	byTitle := make(map[string]*entity.ContentItem)
	now := m.now()

	// The export cursor is a position in the dataset, so earlier items must
	// never move. Seed the merge with the dataset as it was last written.
	prev, err := m.previous()
	if err != nil {
		return nil, err
	}
	for _, item := range prev {
		switch {
		case item.SourceID != "":
			if _, ok := byID[item.SourceID]; ok {
				continue
			}
			byID[item.SourceID] = item
		case item.Title != "":
			if _, ok := byTitle[item.Title]; ok {
				continue
			}
		default:
			continue
		}
		if _, ok := byTitle[item.Title]; !ok && item.Title != "" {
			byTitle[item.Title] = item
		}
		res.Items = append(res.Items, item)
	}
	res.Previous = len(res.Items)

	var fresh []*entity.ContentItem

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if isBookkeeping(filepath.Base(path)) || m.isDataset(path) {
			continue
		}
		records, err := readRecords(path)
		if err != nil {
			m.logger.Warn("skipping unreadable file", zap.String("path", path), zap.Error(err))
			res.Invalid++
			continue
		}
		res.Files++

		for _, item := range records {
			res.Records++
			if norm, ok := utils.NormalizeDate(item.PublishTime, now); ok {
				item.PublishTime = norm
			}

			switch {
			case item.SourceID != "":
				if existing, ok := byID[item.SourceID]; ok {
					fillMissing(existing, item)
					res.Duplicates++
					continue
				}
				byID[item.SourceID] = item
			case item.Title != "":
				if existing, ok := byTitle[item.Title]; ok {
					fillMissing(existing, item)
					res.Duplicates++
					res.TitleFallbackMerges++
					continue
				}
			default:
				res.Invalid++
				continue
			}
			if _, ok := byTitle[item.Title]; !ok && item.Title != "" {
				byTitle[item.Title] = item
			}
			fresh = append(fresh, item)
		}
	}
	// New items follow crawl order. File order breaks ties.
	sort.SliceStable(fresh, func(i, j int) bool {
		return fresh[i].ScrapeTime.Before(fresh[j].ScrapeTime)
	})
	res.Items = append(res.Items, fresh...)

	m.logger.Info("merge done",
		zap.Int("files", res.Files),
		zap.Int("records", res.Records),
		zap.Int("items", len(res.Items)),
		zap.Int("duplicates", res.Duplicates),
		zap.Int("title_fallback_merges", res.TitleFallbackMerges),
		zap.Int("invalid", res.Invalid),
		zap.Int("previous", res.Previous),
	)
	return res, nil
}

// previous reads the dataset written by the last merge. A missing dataset is empty.
func (m *merger) previous() ([]*entity.ContentItem, error) {
	if m.dataset == "" {
		return nil, nil
	}
	items, err := readRecords(m.dataset)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read previous dataset %s: %w", m.dataset, err)
	}
	return items, nil
}

// readRecords decodes a file holding one item or an array of items.
func readRecords(path string) ([]*entity.ContentItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty file")
	}
	if data[0] == '[' {
		var items []*entity.ContentItem
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, err
		}
		out := items[:0]
		for _, it := range items {
			if it != nil {
				out = append(out, it)
			}
		}
		return out, nil
	}
	var item entity.ContentItem
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, err
	}
	return []*entity.ContentItem{&item}, nil
}

func fillMissing(dst, src *entity.ContentItem) {
	fill := func(d *string, s string) {
		if strings.TrimSpace(*d) == "" {
			*d = s
		}
	}
	fill(&dst.Title, src.Title)
	fill(&dst.PublishTime, src.PublishTime)
	fill(&dst.Author, src.Author)
	fill(&dst.ContentType, src.ContentType)
	fill(&dst.Content, src.Content)
	fill(&dst.MediaReference, src.MediaReference)
	fill(&dst.DownloadStatus, src.DownloadStatus)
	fill(&dst.Platform, src.Platform)
	if dst.ScrapeTime.IsZero() {
		dst.ScrapeTime = src.ScrapeTime
	}
}

func (m *merger) WriteDataset(path string, items []*entity.ContentItem) error {
	if items == nil {
		items = []*entity.ContentItem{}
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode dataset: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to write dataset %s: %w", path, err)
	}
	m.logger.Info("dataset written", zap.String("path", path), zap.Int("items", len(items)))
	return nil
}
