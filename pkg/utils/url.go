package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
)

// HashURL creates a SHA256 hash of a URL string.
// Used for snapshot file names, item file names and Redis keys.
func HashURL(rawURL string) string {
	h := sha256.New()
	h.Write([]byte(rawURL))
	return hex.EncodeToString(h.Sum(nil))
}

// ToAbsoluteURL converts a relative URL to an absolute URL given a base URL.
func ToAbsoluteURL(base *url.URL, relative string) (string, error) {
	relURL, err := url.Parse(strings.TrimSpace(relative))
	if err != nil {
		return "", err
	}
	return base.ResolveReference(relURL).String(), nil
}

// ResolveAgainst is ToAbsoluteURL for a raw page URL. Unparseable input is returned unchanged.
func ResolveAgainst(pageURL, relative string) string {
	if relative == "" {
		return ""
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return relative
	}
	abs, err := ToAbsoluteURL(base, relative)
	if err != nil {
		return relative
	}
	return abs
}

// Hostname returns the lower-cased host of rawURL without port, or "unknown".
func Hostname(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}
