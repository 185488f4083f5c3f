package envfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/harvester/internal/entity"
)

func TestCursorRepo_MissingFile(t *testing.T) {
	repo := NewCursorRepo(filepath.Join(t.TempDir(), ".env"))

	c, err := repo.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), c.Offset)
	assert.True(t, c.LastExportTime.IsZero())
}

func TestCursorRepo_SaveKeepsOtherKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("POSTGRES_URL=postgres://x\nEXPORT_OFFSET=100\n"), 0o644))
	repo := NewCursorRepo(path)
	ctx := context.Background()

	c, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(100), c.Offset)

	when := time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Save(ctx, &entity.ExportCursor{Offset: 110, LastExportTime: when}))

	vals, err := godotenv.Read(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://x", vals["POSTGRES_URL"])
	assert.Equal(t, "110", vals[offsetKey])

	c, err = repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(110), c.Offset)
	assert.True(t, when.Equal(c.LastExportTime))
}

func TestCursorRepo_BadOffset(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("EXPORT_OFFSET=ten\n"), 0o644))

	_, err := NewCursorRepo(path).Load(context.Background())
	assert.Error(t, err)
}
