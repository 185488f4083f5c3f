package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/user/harvester/internal/entity"
	"github.com/user/harvester/pkg/utils"
)

const schema = `
CREATE TABLE IF NOT EXISTS articles (
	id BIGSERIAL PRIMARY KEY,
	source_id TEXT NOT NULL UNIQUE,
	title TEXT NOT NULL,
	publish_time TIMESTAMPTZ NOT NULL,
	author TEXT NOT NULL DEFAULT '',
	content_type TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL DEFAULT '',
	media_reference TEXT NOT NULL DEFAULT '',
	platform TEXT NOT NULL DEFAULT '',
	download_status TEXT NOT NULL DEFAULT '',
	scrape_time TIMESTAMPTZ,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_articles_publish_time ON articles (publish_time);
CREATE TABLE IF NOT EXISTS link_graph (
	source_key TEXT NOT NULL,
	target_key TEXT NOT NULL,
	PRIMARY KEY (source_key, target_key)
);`

const upsertArticle = `
INSERT INTO articles (source_id, title, publish_time, author, content_type, content, media_reference, platform, download_status, scrape_time)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (source_id) DO UPDATE SET
	title = EXCLUDED.title,
	publish_time = EXCLUDED.publish_time,
	author = EXCLUDED.author,
	content_type = EXCLUDED.content_type,
	content = EXCLUDED.content,
	media_reference = EXCLUDED.media_reference,
	platform = EXCLUDED.platform,
	download_status = EXCLUDED.download_status,
	scrape_time = EXCLUDED.scrape_time,
	updated_at = NOW()`

const insertArticle = `
INSERT INTO articles (source_id, title, publish_time, author, content_type, content, media_reference, platform, download_status, scrape_time)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (source_id) DO NOTHING`

// ArticleRepoImpl is the central store.
type ArticleRepoImpl struct {
	db  *pgxpool.Pool
	loc *time.Location
}

func NewArticleRepo(db *pgxpool.Pool) *ArticleRepoImpl {
	return &ArticleRepoImpl{db: db, loc: time.Local}
}

func (r *ArticleRepoImpl) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

func (r *ArticleRepoImpl) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create central schema: %w", err)
	}
	return nil
}

// UpsertBatch writes the whole batch in one transaction.
func (r *ArticleRepoImpl) UpsertBatch(ctx context.Context, items []*entity.ContentItem) (int, error) {
	return r.sendBatch(ctx, upsertArticle, items)
}

// InsertNew skips items whose source_id already exists.
func (r *ArticleRepoImpl) InsertNew(ctx context.Context, items []*entity.ContentItem) (int, error) {
	return r.sendBatch(ctx, insertArticle, items)
}

func (r *ArticleRepoImpl) sendBatch(ctx context.Context, query string, items []*entity.ContentItem) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}
	batch := &pgx.Batch{}
	for _, item := range items {
		args, err := articleArgs(item, r.loc)
		if err != nil {
			return 0, err
		}
		batch.Queue(query, args...)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	br := tx.SendBatch(ctx, batch)
	affected := 0
	for i := range items {
		tag, err := br.Exec()
		if err != nil {
			br.Close()
			return 0, fmt.Errorf("write %s: %w", items[i].SourceID, err)
		}
		affected += int(tag.RowsAffected())
	}
	if err := br.Close(); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return affected, nil
}

// articleArgs maps an item onto the article columns.
func articleArgs(item *entity.ContentItem, loc *time.Location) ([]any, error) {
	published, err := utils.ParseTime(item.PublishTime, loc)
	if err != nil {
		return nil, fmt.Errorf("item %s: publish time %q: %w", item.SourceID, item.PublishTime, err)
	}
	var scraped *time.Time
	if !item.ScrapeTime.IsZero() {
		scraped = &item.ScrapeTime
	}
	return []any{
		item.SourceID,
		item.Title,
		published,
		item.Author,
		item.ContentType,
		item.Content,
		item.MediaReference,
		item.Platform,
		item.DownloadStatus,
		scraped,
	}, nil
}
