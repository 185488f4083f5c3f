package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/user/harvester/internal/entity"
	"github.com/user/harvester/internal/repository"
)

const schema = `
CREATE TABLE IF NOT EXISTS entries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	url TEXT NOT NULL UNIQUE,
	platform TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL DEFAULT '',
	push_time TEXT NOT NULL DEFAULT '',
	author TEXT NOT NULL DEFAULT '',
	content_type TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL DEFAULT '',
	img TEXT NOT NULL DEFAULT '',
	download_status TEXT NOT NULL DEFAULT '',
	scrape_time DATETIME
);
CREATE INDEX IF NOT EXISTS idx_entries_platform ON entries (platform);
CREATE TABLE IF NOT EXISTS link_graph (
	source_url TEXT NOT NULL,
	target_url TEXT NOT NULL,
	PRIMARY KEY (source_url, target_url)
);`

const entryColumns = `url, platform, title, push_time, author, content_type, content, img, download_status, scrape_time`

// StagingRepoImpl is the spider's local staging database.
type StagingRepoImpl struct {
	db *sqlx.DB
}

// Open connects to the SQLite file at path.
func Open(path string) (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)
	return db, nil
}

func NewStagingRepo(db *sqlx.DB) *StagingRepoImpl {
	return &StagingRepoImpl{db: db}
}

func (r *StagingRepoImpl) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create staging schema: %w", err)
	}
	return nil
}

func (r *StagingRepoImpl) Keys(ctx context.Context, platform string) ([]string, error) {
	var keys []string
	if err := r.db.SelectContext(ctx, &keys, `SELECT url FROM entries WHERE platform = ?`, platform); err != nil {
		return nil, fmt.Errorf("select staged keys: %w", err)
	}
	return keys, nil
}

func (r *StagingRepoImpl) Insert(ctx context.Context, item *entity.ContentItem) (bool, error) {
	res, err := r.db.NamedExecContext(ctx,
		`INSERT OR IGNORE INTO entries (`+entryColumns+`)
		 VALUES (:url, :platform, :title, :push_time, :author, :content_type, :content, :img, :download_status, :scrape_time)`,
		toRow(item))
	if err != nil {
		return false, fmt.Errorf("insert entry %s: %w", item.SourceID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *StagingRepoImpl) Find(ctx context.Context, platform, sourceID string) (*entity.ContentItem, error) {
	var row entryRow
	err := r.db.GetContext(ctx, &row, `SELECT `+entryColumns+` FROM entries WHERE platform = ? AND url = ?`, platform, sourceID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find entry %s: %w", sourceID, err)
	}
	return row.toEntity(), nil
}

func (r *StagingRepoImpl) AddEdge(ctx context.Context, edge entity.LinkEdge) (bool, error) {
	res, err := r.db.NamedExecContext(ctx,
		`INSERT OR IGNORE INTO link_graph (source_url, target_url) VALUES (:source_url, :target_url)`, edge)
	if err != nil {
		return false, fmt.Errorf("insert edge: %w", err)
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// ReadBatch returns staged entries in insertion order.
func (r *StagingRepoImpl) ReadBatch(ctx context.Context, offset int64, limit int) ([]*entity.ContentItem, error) {
	var rows []entryRow
	if err := r.db.SelectContext(ctx, &rows,
		`SELECT `+entryColumns+` FROM entries ORDER BY id ASC LIMIT ? OFFSET ?`, limit, offset); err != nil {
		return nil, fmt.Errorf("read staged batch at %d: %w", offset, err)
	}
	items := make([]*entity.ContentItem, 0, len(rows))
	for i := range rows {
		items = append(items, rows[i].toEntity())
	}
	return items, nil
}

type entryRow struct {
	URL            string       `db:"url"`
	Platform       string       `db:"platform"`
	Title          string       `db:"title"`
	PushTime       string       `db:"push_time"`
	Author         string       `db:"author"`
	ContentType    string       `db:"content_type"`
	Content        string       `db:"content"`
	Img            string       `db:"img"`
	DownloadStatus string       `db:"download_status"`
	ScrapeTime     sql.NullTime `db:"scrape_time"`
}

func toRow(item *entity.ContentItem) entryRow {
	return entryRow{
		URL:            item.SourceID,
		Platform:       item.Platform,
		Title:          item.Title,
		PushTime:       item.PublishTime,
		Author:         item.Author,
		ContentType:    item.ContentType,
		Content:        item.Content,
		Img:            item.MediaReference,
		DownloadStatus: item.DownloadStatus,
		ScrapeTime:     sql.NullTime{Time: item.ScrapeTime, Valid: !item.ScrapeTime.IsZero()},
	}
}

func (r entryRow) toEntity() *entity.ContentItem {
	var scraped time.Time
	if r.ScrapeTime.Valid {
		scraped = r.ScrapeTime.Time
	}
	return &entity.ContentItem{
		SourceID:       r.URL,
		Platform:       r.Platform,
		Title:          r.Title,
		PublishTime:    r.PushTime,
		Author:         r.Author,
		ContentType:    r.ContentType,
		Content:        r.Content,
		MediaReference: r.Img,
		DownloadStatus: r.DownloadStatus,
		ScrapeTime:     scraped,
	}
}
