package colly_spider

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	articlePathRe = regexp.MustCompile(`(/\d+\.(s?html?|chtml)$)|(/post/\d+$)|(/article/\d+$)`)
	skipExtRe     = regexp.MustCompile(`(?i)\.(docx?|xlsx?|pptx?|pdf|zip|rar|7z|jpe?g|png|gif|mp4|mp3)$`)
)

// ShouldSkipLink filters hrefs that never lead to an article or category page.
func ShouldSkipLink(href string) bool {
	href = strings.TrimSpace(href)
	if href == "" || href == "#" || strings.HasPrefix(href, "#") {
		return true
	}
	lower := strings.ToLower(href)
	switch {
	case strings.HasPrefix(lower, "javascript:"),
		strings.Contains(lower, "void(0)"),
		strings.HasPrefix(lower, "mailto:"),
		strings.HasPrefix(lower, "tel:"),
		strings.Contains(lower, "@"),
		strings.Contains(lower, "*"):
		return true
	}
	path := lower
	if u, err := url.Parse(href); err == nil {
		path = strings.ToLower(u.Path)
	}
	return skipExtRe.MatchString(path)
}

// IsArticleURL recognizes article pages by URL shape. Anything else reached
// by the spider is treated as a category page and followed.
func IsArticleURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	path := u.Path

	if host == "mp.weixin.qq.com" {
		return strings.HasPrefix(path, "/s")
	}
	if strings.Contains(path, "/list") {
		return false
	}
	switch {
	case articlePathRe.MatchString(path),
		strings.HasSuffix(path, "page.htm"),
		strings.Contains(path, "news-detail"),
		strings.Contains(path, "/info/"):
		return true
	}
	return false
}
