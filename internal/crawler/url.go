package crawler

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// schemePattern matches a URL that already carries a scheme, per RFC 3986.
// Matching on the bare "scheme:" form keeps mailto:/tel:/javascript: links
// from being misread as schemeless hosts.
var schemePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.-]*:`)

// EnsureScheme injects scheme when a bare domain or schemeless path is
// supplied, preserving path and query. URLs that already have a scheme,
// http(s) or otherwise, pass through untouched.
func EnsureScheme(rawURL, scheme string) string {
	if scheme == "" {
		scheme = "https"
	}
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return trimmed
	}
	if strings.HasPrefix(trimmed, "//") {
		return scheme + "://" + strings.TrimPrefix(trimmed, "//")
	}
	if schemePattern.MatchString(trimmed) {
		return trimmed
	}
	return scheme + "://" + trimmed
}

// NormalizeURL standardizes a URL into the frontier dedup key. It injects a
// https scheme when missing, lowercases scheme and host, strips a leading
// "www.", removes default ports, drops the fragment, and trims the trailing
// slash so scheme/host variants of the same page collapse to one record.
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(EnsureScheme(rawURL, "https"))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("url %q has no host", rawURL)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("url %q has unsupported scheme %q", rawURL, u.Scheme)
	}
	u.Host = strings.TrimPrefix(strings.ToLower(u.Host), "www.")

	if u.Scheme == "http" {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Fragment = ""
	u.Path = strings.TrimSuffix(u.Path, "/")

	// Sort query parameters for a stable key.
	u.RawQuery = u.Query().Encode()

	return u.String(), nil
}

// SameDomain reports whether rawURL points at domain, ignoring a "www."
// prefix on either side.
func SameDomain(rawURL, domain string) bool {
	u, err := url.Parse(EnsureScheme(rawURL, "https"))
	if err != nil {
		return false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	want := strings.TrimPrefix(strings.ToLower(domain), "www.")
	return host == want
}
