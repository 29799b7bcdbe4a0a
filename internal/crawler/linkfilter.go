package crawler

import (
	"net/url"
	"path"
	"regexp"
	"strings"
)

// skippedExtensions lists binary and non-HTML suffixes that are never worth
// a browser navigation.
var skippedExtensions = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".webp": {}, ".svg": {},
	".ico": {}, ".css": {}, ".js": {}, ".json": {}, ".xml": {}, ".rss": {},
	".pdf": {}, ".doc": {}, ".docx": {}, ".xls": {}, ".xlsx": {}, ".ppt": {},
	".zip": {}, ".gz": {}, ".tar": {}, ".rar": {}, ".7z": {},
	".mp3": {}, ".mp4": {}, ".avi": {}, ".mov": {}, ".wmv": {}, ".flv": {},
	".exe": {}, ".dmg": {}, ".apk": {}, ".woff": {}, ".woff2": {}, ".ttf": {},
}

// administrativePaths are path segments for pages that carry no indexable
// content (auth, commerce and search plumbing).
var administrativePaths = []string{
	"login", "logout", "signin", "signup", "register", "account",
	"cart", "checkout", "wishlist", "search", "admin", "wp-admin",
	"wp-login", "password",
}

// LinkFilterConfig controls which discovered links are admitted to the
// frontier.
type LinkFilterConfig struct {
	Domain       string
	AllowQueries bool
	SkipPatterns []*regexp.Regexp
}

// LinkFilter decides whether a discovered link is worth crawling.
type LinkFilter struct {
	cfg LinkFilterConfig
}

// NewLinkFilter builds a filter scoped to cfg.Domain.
func NewLinkFilter(cfg LinkFilterConfig) *LinkFilter {
	cfg.Domain = strings.TrimPrefix(strings.ToLower(cfg.Domain), "www.")
	return &LinkFilter{cfg: cfg}
}

// Valid reports whether link should be enqueued: same-domain http(s) only, no
// binary/non-HTML extensions, no administrative paths, optionally no query
// strings, and nothing matching a configured skip pattern.
func (f *LinkFilter) Valid(link string) bool {
	u, err := url.Parse(EnsureScheme(link, "https"))
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	if !SameDomain(link, f.cfg.Domain) {
		return false
	}
	if !f.cfg.AllowQueries && u.RawQuery != "" {
		return false
	}

	lowerPath := strings.ToLower(u.Path)
	if _, skip := skippedExtensions[path.Ext(lowerPath)]; skip {
		return false
	}
	for _, segment := range strings.Split(strings.Trim(lowerPath, "/"), "/") {
		for _, admin := range administrativePaths {
			if segment == admin {
				return false
			}
		}
	}

	for _, pattern := range f.cfg.SkipPatterns {
		if pattern.MatchString(link) {
			return false
		}
	}
	return true
}
