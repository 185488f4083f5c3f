package entity

import (
	"strings"
	"time"
)

const (
	ContentTypeArticle  = "article"
	ContentTypeImage    = "image"
	ContentTypeDocument = "document"
)

const (
	DownloadStatusDownloaded = "downloaded"
	DownloadStatusListed     = "listed"
)

// ContentItem is one harvested article. SourceID is the canonical item URL
// and the only deduplication key.
type ContentItem struct {
	SourceID       string    `json:"source_id" bson:"source_id" db:"url"`
	Title          string    `json:"title" bson:"title" db:"title"`
	PublishTime    string    `json:"publish_time" bson:"publish_time" db:"push_time"`
	Author         string    `json:"author" bson:"author" db:"author"`
	ContentType    string    `json:"content_type" bson:"content_type" db:"content_type"`
	Content        string    `json:"content" bson:"content" db:"content"`
	MediaReference string    `json:"media_reference" bson:"media_reference" db:"img"`
	DownloadStatus string    `json:"download_status" bson:"download_status" db:"download_status"`
	Platform       string    `json:"platform,omitempty" bson:"platform" db:"platform"`
	ScrapeTime     time.Time `json:"scrape_time,omitempty" bson:"scrape_time" db:"scrape_time"`
}

// Complete reports whether the item carries everything the central store
// requires. SourceID is the upsert key, so it is required too.
func (c *ContentItem) Complete() bool {
	return strings.TrimSpace(c.SourceID) != "" &&
		strings.TrimSpace(c.Title) != "" &&
		strings.TrimSpace(c.PublishTime) != ""
}

// ParsedPage is the output of a site adapter.
type ParsedPage struct {
	Title       string
	PublishTime string
	Author      string
	Content     string
	MediaRef    string
	ContentType string
}

// Candidate is an item URL discovered during enumeration.
type Candidate struct {
	URL         string
	Title       string
	PublishTime string
	// Referrer is the page the link was found on, empty for feed listings.
	Referrer string
}

// FetchResult is a raw page as returned by a fetcher.
type FetchResult struct {
	URL        string
	StatusCode int
	Body       []byte
}
