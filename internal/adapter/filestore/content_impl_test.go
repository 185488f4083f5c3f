package filestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/harvester/internal/entity"
	"github.com/user/harvester/internal/repository"
	"github.com/user/harvester/pkg/utils"
)

func TestContentRepo_InsertIdempotent(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	repo := NewContentRepo(root)

	item := &entity.ContentItem{SourceID: "https://a/1", Title: "t", PublishTime: "2024-01-05", Platform: "nankai"}

	inserted, err := repo.Insert(ctx, item)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = repo.Insert(ctx, &entity.ContentItem{SourceID: "https://a/1", Title: "other", Platform: "nankai"})
	require.NoError(t, err)
	assert.False(t, inserted)

	_, err = os.Stat(filepath.Join(root, "nankai", "202401", utils.HashURL("https://a/1")+".json"))
	require.NoError(t, err)

	got, err := repo.Find(ctx, "nankai", "https://a/1")
	require.NoError(t, err)
	assert.Equal(t, "t", got.Title)

	_, err = repo.Find(ctx, "nankai", "https://a/2")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = repo.Insert(ctx, &entity.ContentItem{})
	assert.Error(t, err)
}

func TestContentRepo_KeysSurviveRestart(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	repo := NewContentRepo(root)
	for _, id := range []string{"https://a/2", "https://a/1"} {
		_, err := repo.Insert(ctx, &entity.ContentItem{SourceID: id, Platform: "wechat", ScrapeTime: time.Now()})
		require.NoError(t, err)
	}

	keys, err := NewContentRepo(root).Keys(ctx, "wechat")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a/1", "https://a/2"}, keys)

	keys, err = NewContentRepo(root).Keys(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestContentRepo_Snapshot(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	repo := NewContentRepo(root)

	require.NoError(t, repo.SaveSnapshot(ctx, "nankai", "https://a/1", []byte("v1")))
	require.NoError(t, repo.SaveSnapshot(ctx, "nankai", "https://a/1", []byte("v2")))

	data, err := os.ReadFile(filepath.Join(root, "nankai", snapshotsDir, utils.HashURL("https://a/1")+".html"))
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))
}

func TestContentRepo_Edges(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	edge := entity.LinkEdge{SourceKey: "https://a/list.htm", TargetKey: "https://a/1.htm"}

	added, err := NewContentRepo(root).AddEdge(ctx, edge)
	require.NoError(t, err)
	assert.True(t, added)

	repo := NewContentRepo(root)
	added, err = repo.AddEdge(ctx, edge)
	require.NoError(t, err)
	assert.False(t, added)

	added, err = repo.AddEdge(ctx, entity.LinkEdge{SourceKey: edge.TargetKey, TargetKey: edge.SourceKey})
	require.NoError(t, err)
	assert.True(t, added)
}
