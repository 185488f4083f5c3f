package filestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatasetRepo_ReadBatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "merged.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"source_id":"a"},{"source_id":"b"},{"source_id":"c"}]`), 0o644))
	repo := NewDatasetRepo(path)
	ctx := context.Background()

	batch, err := repo.ReadBatch(ctx, 1, 5)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, "b", batch[0].SourceID)

	batch, err = repo.ReadBatch(ctx, 3, 5)
	require.NoError(t, err)
	assert.Empty(t, batch)
}

func TestDatasetRepo_Missing(t *testing.T) {
	_, err := NewDatasetRepo(filepath.Join(t.TempDir(), "none.json")).ReadBatch(context.Background(), 0, 1)
	assert.Error(t, err)
}
