package collyhttp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitecrawl/internal/crawler"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><body><a href="/a">A</a><a href="/b">B</a></body></html>`))
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	})
	mux.HandleFunc("/feed.xml", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(`<rss></rss>`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestFetcher_SuccessExtractsLinks(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)
	f := New(Config{UserAgent: "sitecrawl-test", Timeout: 5 * time.Second})

	resp, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: server.URL + "/"})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, resp.HTML, "<body>")
	require.Len(t, resp.Links, 2)
	require.Equal(t, server.URL+"/a", resp.Links[0])
}

func TestFetcher_NotFoundIsHTTPError(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)
	f := New(Config{Timeout: 5 * time.Second})

	_, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: server.URL + "/missing"})
	require.Error(t, err)

	var httpErr *crawler.HTTPError
	require.ErrorAs(t, err, &httpErr)
	require.Equal(t, http.StatusNotFound, httpErr.StatusCode)
}

func TestFetcher_NonHTMLHasNoBodyOrLinks(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)
	f := New(Config{Timeout: 5 * time.Second})

	resp, err := f.Fetch(context.Background(), crawler.FetchRequest{URL: server.URL + "/feed.xml"})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.False(t, resp.IsHTML())
	require.Empty(t, resp.HTML)
	require.Empty(t, resp.Links)
}

func TestFetcher_CanceledContext(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)
	f := New(Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.Fetch(ctx, crawler.FetchRequest{URL: server.URL + "/"})
	require.ErrorIs(t, err, context.Canceled)
}
