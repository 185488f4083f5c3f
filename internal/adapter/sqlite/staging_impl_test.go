package sqlite

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/harvester/internal/entity"
	"github.com/user/harvester/internal/repository"
)

var entryCols = []string{
	"url", "platform", "title", "push_time", "author", "content_type",
	"content", "img", "download_status", "scrape_time",
}

func newStagingRepo(t *testing.T) (*StagingRepoImpl, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	return NewStagingRepo(sqlx.NewDb(mockDB, "sqlite3")), mock
}

func TestStaging_Insert(t *testing.T) {
	repo, mock := newStagingRepo(t)
	item := &entity.ContentItem{SourceID: "https://a/1", Platform: "nankai", Title: "t"}

	mock.ExpectExec("INSERT OR IGNORE INTO entries").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT OR IGNORE INTO entries").
		WillReturnResult(sqlmock.NewResult(0, 0))

	inserted, err := repo.Insert(context.Background(), item)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = repo.Insert(context.Background(), item)
	require.NoError(t, err)
	assert.False(t, inserted)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStaging_Keys(t *testing.T) {
	repo, mock := newStagingRepo(t)

	mock.ExpectQuery("SELECT url FROM entries WHERE platform").
		WithArgs("nankai").
		WillReturnRows(sqlmock.NewRows([]string{"url"}).AddRow("https://a/1").AddRow("https://a/2"))

	keys, err := repo.Keys(context.Background(), "nankai")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a/1", "https://a/2"}, keys)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStaging_ReadBatch(t *testing.T) {
	repo, mock := newStagingRepo(t)
	scraped := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT .+ FROM entries ORDER BY id ASC LIMIT").
		WithArgs(2, int64(10)).
		WillReturnRows(sqlmock.NewRows(entryCols).
			AddRow("https://a/1", "nankai", "t1", "2024-01-05", "", "article", "c", "", "downloaded", scraped).
			AddRow("https://a/2", "nankai", "t2", "", "", "image", "", "https://a/p.png", "downloaded", nil))

	items, err := repo.ReadBatch(context.Background(), 10, 2)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "2024-01-05", items[0].PublishTime)
	assert.True(t, scraped.Equal(items[0].ScrapeTime))
	assert.Equal(t, "https://a/p.png", items[1].MediaReference)
	assert.True(t, items[1].ScrapeTime.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStaging_Find(t *testing.T) {
	repo, mock := newStagingRepo(t)

	mock.ExpectQuery("SELECT .+ FROM entries WHERE platform").
		WithArgs("nankai", "https://a/9").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Find(context.Background(), "nankai", "https://a/9")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStaging_AddEdge(t *testing.T) {
	repo, mock := newStagingRepo(t)

	mock.ExpectExec("INSERT OR IGNORE INTO link_graph").
		WithArgs("https://a/list.htm", "https://a/1.htm").
		WillReturnResult(sqlmock.NewResult(1, 1))

	added, err := repo.AddEdge(context.Background(), entity.LinkEdge{SourceKey: "https://a/list.htm", TargetKey: "https://a/1.htm"})
	require.NoError(t, err)
	assert.True(t, added)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStaging_EnsureSchema(t *testing.T) {
	repo, mock := newStagingRepo(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS entries").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
