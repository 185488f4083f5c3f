package sites

import (
	"bytes"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/user/harvester/internal/entity"
	"github.com/user/harvester/internal/repository"
	"github.com/user/harvester/pkg/utils"
)

// SelectorAdapter extracts fields with the CSS selectors of a Rule.
type SelectorAdapter struct {
	rule Rule
	now  func() time.Time
}

func NewSelectorAdapter(rule Rule, opts ...AdapterOption) *SelectorAdapter {
	o := newAdapterOptions(opts)
	return &SelectorAdapter{rule: rule, now: o.now}
}

func (a *SelectorAdapter) Name() string { return a.rule.Name }

// Parse applies the rule. Title and time selectors are tried in order; the
// time falls back to the date in the URL path and the title to og:title or
// <title>. When the page has neither body text nor media, an embedded
// document (e.g. a PDF player) stands in for the media reference.
func (a *SelectorAdapter) Parse(html []byte, pageURL string) (*entity.ParsedPage, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, &repository.ParseError{URL: pageURL, Reason: err.Error()}
	}
	doc.Find("script, style, noscript").Remove()

	page := &entity.ParsedPage{
		Title:  pickText(doc, a.rule.Title),
		Author: pickText(doc, a.rule.Author),
	}
	if page.Title == "" {
		page.Title = fallbackTitle(doc)
	}

	if raw := pickText(doc, a.rule.Time); raw != "" {
		page.PublishTime, _ = utils.ExtractDate(raw, a.now())
	}
	if page.PublishTime == "" {
		page.PublishTime, _ = utils.DateFromURL(pageURL)
	}

	page.Content = pickContent(doc, a.rule.Content)
	if media := pickText(doc, a.rule.Media); media != "" {
		page.MediaRef = utils.ResolveAgainst(pageURL, media)
	}

	switch {
	case page.Content != "":
		page.ContentType = entity.ContentTypeArticle
	case page.MediaRef != "":
		page.ContentType = entity.ContentTypeImage
	default:
		if d := pickText(doc, a.rule.Document); d != "" {
			page.MediaRef = utils.ResolveAgainst(pageURL, d)
			page.ContentType = entity.ContentTypeDocument
		}
	}

	if page.Content == "" && page.MediaRef == "" {
		return nil, &repository.ParseError{URL: pageURL, Reason: "no content, media or document found"}
	}
	return page, nil
}

// splitSelector separates "css@attr" into its parts.
func splitSelector(s string) (string, string) {
	i := strings.LastIndex(s, "@")
	if i <= 0 {
		return s, ""
	}
	attr := s[i+1:]
	if attr == "" || strings.ContainsAny(attr, " ]=") {
		return s, ""
	}
	return s[:i], attr
}

// pickText returns the first non-empty value among selectors, whitespace collapsed.
func pickText(doc *goquery.Document, selectors []string) string {
	for _, s := range selectors {
		css, attr := splitSelector(s)
		node := doc.Find(css).First()
		if node.Length() == 0 {
			continue
		}
		var v string
		if attr != "" {
			v, _ = node.Attr(attr)
		} else {
			v = node.Text()
		}
		if v = collapse(v); v != "" {
			return v
		}
	}
	return ""
}

// pickContent keeps line structure but drops blank lines.
func pickContent(doc *goquery.Document, selectors []string) string {
	for _, s := range selectors {
		node := doc.Find(s).First()
		if node.Length() == 0 {
			continue
		}
		if v := cleanContent(node.Text()); v != "" {
			return v
		}
	}
	return ""
}

func fallbackTitle(doc *goquery.Document) string {
	if v, ok := doc.Find(`meta[property="og:title"]`).First().Attr("content"); ok {
		if v = collapse(v); v != "" {
			return v
		}
	}
	return collapse(doc.Find("title").First().Text())
}

func collapse(s string) string {
	return strings.Join(strings.Fields(strings.ReplaceAll(s, "\u00a0", " ")), " ")
}

func cleanContent(s string) string {
	lines := strings.Split(strings.ReplaceAll(s, "\u00a0", " "), "\n")
	out := lines[:0]
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}
