package repository

import (
	"context"

	"github.com/user/harvester/internal/entity"
)

// FetcherRepository downloads a single page.
type FetcherRepository interface {
	Fetch(ctx context.Context, url string) (*entity.FetchResult, error)
}

// EnumeratorRepository lists candidate item URLs for one source.
type EnumeratorRepository interface {
	Enumerate(ctx context.Context, cookies entity.Cookies) ([]entity.Candidate, error)
}

// PageParser turns a raw page into structured fields. Implementations must be pure.
type PageParser interface {
	Parse(html []byte, pageURL string) (*entity.ParsedPage, error)
}

// ParserRegistry resolves the parser for a URL or returns *NoAdapterError.
type ParserRegistry interface {
	Resolve(pageURL string) (PageParser, error)
}
