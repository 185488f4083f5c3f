package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/user/harvester/internal/entity"
)

func writeJSON(t *testing.T, path string, v any) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func newTestMerger(t *testing.T, dataset string) *merger {
	m := NewMerger(dataset, zaptest.NewLogger(t)).(*merger)
	m.now = func() time.Time { return time.Date(2024, 3, 10, 12, 0, 0, 0, time.Local) }
	return m
}

func TestMerger_FindFiles(t *testing.T) {
	dir := t.TempDir()
	writeJSON(t, filepath.Join(dir, "news", "202403", "a.json"), map[string]string{"source_id": "a"})
	writeJSON(t, filepath.Join(dir, "news", "scraped_urls.json"), []string{"a"})
	writeJSON(t, filepath.Join(dir, "news", "snapshots", "x.json"), map[string]string{})
	writeJSON(t, filepath.Join(dir, "merged.json"), []string{})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "edges.jsonl"), []byte("{}\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "news", "counter.txt"), []byte("x"), 0o644))

	files, err := newTestMerger(t, filepath.Join(dir, "merged.json")).FindFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "news", "202403", "a.json")}, files)
}

func TestMerger_MergeDeduplicatesBySourceID(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "1.json")
	b := filepath.Join(dir, "2.json")
	c := filepath.Join(dir, "3.json")
	writeJSON(t, a, entity.ContentItem{SourceID: "https://x/1", Title: "Opening", PublishTime: "2024年3月1日"})
	writeJSON(t, b, []entity.ContentItem{
		{SourceID: "https://x/1", Title: "Opening", Author: "Press office"},
		{SourceID: "https://x/2", Title: "Opening"},
	})
	writeJSON(t, c, map[string]string{"title": "Untitled notice", "publish_time": "2024/03/05 09:30"})

	res, err := newTestMerger(t, "").Merge(context.Background(), []string{c, b, a})
	require.NoError(t, err)

	require.Len(t, res.Items, 3)
	assert.Equal(t, 3, res.Files)
	assert.Equal(t, 4, res.Records)
	assert.Equal(t, 1, res.Duplicates)
	assert.Equal(t, 0, res.TitleFallbackMerges)

	first := res.Items[0]
	assert.Equal(t, "https://x/1", first.SourceID)
	assert.Equal(t, "2024-03-01", first.PublishTime)
	assert.Equal(t, "Press office", first.Author, "missing fields are filled from duplicates")

	// Same title, distinct source ids: both survive.
	assert.Equal(t, "https://x/2", res.Items[1].SourceID)
	assert.Equal(t, "Opening", res.Items[1].Title)

	assert.Equal(t, "Untitled notice", res.Items[2].Title)
	assert.Equal(t, "2024-03-05 09:30:00", res.Items[2].PublishTime)

	seen := map[string]bool{}
	for _, it := range res.Items {
		if it.SourceID == "" {
			continue
		}
		assert.False(t, seen[it.SourceID], "duplicate source id %s", it.SourceID)
		seen[it.SourceID] = true
	}
}

func TestMerger_TitleFallback(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.json")
	b := filepath.Join(dir, "b.json")
	bad := filepath.Join(dir, "c.json")
	writeJSON(t, a, entity.ContentItem{SourceID: "https://x/1", Title: "Notice"})
	writeJSON(t, b, map[string]string{"title": "Notice", "author": "Dean"})
	require.NoError(t, os.WriteFile(bad, []byte("{broken"), 0o644))

	res, err := newTestMerger(t, "").Merge(context.Background(), []string{a, b, bad})
	require.NoError(t, err)

	require.Len(t, res.Items, 1)
	assert.Equal(t, 1, res.TitleFallbackMerges)
	assert.Equal(t, "Dean", res.Items[0].Author)
	assert.Equal(t, 1, res.Invalid)
}

func TestMerger_WriteDataset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "merged.json")
	m := newTestMerger(t, path)
	items := []*entity.ContentItem{{SourceID: "https://x/1", Title: "a"}}

	require.NoError(t, m.WriteDataset(path, items))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got []entity.ContentItem
	require.NoError(t, json.Unmarshal(data, &got))
	require.Len(t, got, 1)
	assert.Equal(t, "https://x/1", got[0].SourceID)
}

// datasetSource reads the merged dataset the way the file export source does.
type datasetSource struct {
	path string
}

func (s datasetSource) ReadBatch(_ context.Context, offset int64, limit int) ([]*entity.ContentItem, error) {
	items, err := readRecords(s.path)
	if err != nil {
		return nil, err
	}
	if offset >= int64(len(items)) {
		return nil, nil
	}
	return items[offset:min(offset+int64(limit), int64(len(items)))], nil
}

type memCentral struct {
	keys []string
}

func (c *memCentral) EnsureSchema(context.Context) error { return nil }

func (c *memCentral) UpsertBatch(_ context.Context, items []*entity.ContentItem) (int, error) {
	for _, it := range items {
		c.keys = append(c.keys, it.SourceID)
	}
	return len(items), nil
}

func (c *memCentral) InsertNew(ctx context.Context, items []*entity.ContentItem) (int, error) {
	return c.UpsertBatch(ctx, items)
}

func TestMerger_RemergeKeepsExportedPositions(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	dataset := filepath.Join(dir, "merged.json")
	base := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	writeItem := func(name, key string, scraped time.Time) {
		writeJSON(t, filepath.Join(dir, "news", "202403", name+".json"), entity.ContentItem{
			SourceID:    key,
			Title:       "title " + key,
			PublishTime: "2024-03-01 10:00:00",
			ScrapeTime:  scraped,
		})
	}
	for i := 1; i <= 5; i++ {
		writeItem(fmt.Sprintf("b%d", i), fmt.Sprintf("https://a.edu/info/%d.htm", 100+i), base.Add(time.Duration(i)*time.Minute))
	}

	central := &memCentral{}
	cursors := &memCursorRepo{}
	exp := NewExporter(datasetSource{path: dataset}, central, cursors, zaptest.NewLogger(t))

	mergeAndWrite := func() *MergeResult {
		m := newTestMerger(t, dataset)
		files, err := m.FindFiles(dir)
		require.NoError(t, err)
		res, err := m.Merge(ctx, files)
		require.NoError(t, err)
		require.NoError(t, m.WriteDataset(dataset, res.Items))
		return res
	}

	first := mergeAndWrite()
	sum, err := exp.ExportAll(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), sum.Offset)

	// A later crawl stores an item whose file name sorts before every other.
	newKey := "https://a.edu/info/109.htm"
	writeItem("a0", newKey, base.Add(time.Hour))

	second := mergeAndWrite()
	assert.Equal(t, 5, second.Previous)
	require.Len(t, second.Items, 6)
	for i, it := range first.Items {
		assert.Equal(t, it.SourceID, second.Items[i].SourceID, "position %d moved", i)
	}
	assert.Equal(t, newKey, second.Items[5].SourceID)

	sum, err = exp.ExportAll(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(6), sum.Offset)
	assert.Contains(t, central.keys, newKey)
	assert.Len(t, central.keys, 6)
}
