package crawler

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestFilter(t *testing.T, allowQueries bool, patterns ...string) *LinkFilter {
	t.Helper()
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		compiled = append(compiled, regexp.MustCompile(p))
	}
	return NewLinkFilter(LinkFilterConfig{
		Domain:       "example.com",
		AllowQueries: allowQueries,
		SkipPatterns: compiled,
	})
}

func TestLinkFilter_SameDomainOnly(t *testing.T) {
	t.Parallel()

	f := newTestFilter(t, false)
	require.True(t, f.Valid("https://example.com/docs"))
	require.True(t, f.Valid("https://www.example.com/docs"))
	require.False(t, f.Valid("https://other.com/docs"))
	require.False(t, f.Valid("https://sub.example.com/docs"))
}

func TestLinkFilter_RejectsNonHTTP(t *testing.T) {
	t.Parallel()

	f := newTestFilter(t, false)
	require.False(t, f.Valid("mailto:someone@example.com"))
	require.False(t, f.Valid("ftp://example.com/file"))
	require.False(t, f.Valid("javascript:void(0)"))
}

func TestLinkFilter_RejectsBinaryExtensions(t *testing.T) {
	t.Parallel()

	f := newTestFilter(t, false)
	for _, link := range []string{
		"https://example.com/logo.png",
		"https://example.com/report.PDF",
		"https://example.com/app.js",
		"https://example.com/archive.tar",
	} {
		require.False(t, f.Valid(link), link)
	}
	require.True(t, f.Valid("https://example.com/page.html"))
}

func TestLinkFilter_RejectsAdministrativePaths(t *testing.T) {
	t.Parallel()

	f := newTestFilter(t, false)
	require.False(t, f.Valid("https://example.com/login"))
	require.False(t, f.Valid("https://example.com/shop/cart/items"))
	require.False(t, f.Valid("https://example.com/wp-admin/options"))
	require.True(t, f.Valid("https://example.com/blog/cartography"))
}

func TestLinkFilter_QueryStrings(t *testing.T) {
	t.Parallel()

	strict := newTestFilter(t, false)
	require.False(t, strict.Valid("https://example.com/p?page=2"))

	relaxed := newTestFilter(t, true)
	require.True(t, relaxed.Valid("https://example.com/p?page=2"))
}

func TestLinkFilter_SkipPatterns(t *testing.T) {
	t.Parallel()

	f := newTestFilter(t, false, `/tag/`, `\d{4}/\d{2}/print$`)
	require.False(t, f.Valid("https://example.com/tag/news"))
	require.False(t, f.Valid("https://example.com/2024/05/print"))
	require.True(t, f.Valid("https://example.com/2024/05/post"))
}
