package cmd

import (
	"bytes"
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitecrawl/internal/config"
	"github.com/JakeFAU/sitecrawl/internal/crawler"
	"github.com/JakeFAU/sitecrawl/internal/frontier"
)

func TestResolveSite(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		cfg        config.SiteConfig
		wantDomain string
		wantSeeds  []string
	}{
		{
			name:       "domain only seeds its root",
			cfg:        config.SiteConfig{Domain: "Example.com"},
			wantDomain: "example.com",
			wantSeeds:  []string{"https://example.com"},
		},
		{
			name:       "seed only derives the domain",
			cfg:        config.SiteConfig{Seeds: []string{"https://www.example.com/docs/"}},
			wantDomain: "example.com",
			wantSeeds:  []string{"https://example.com/docs"},
		},
		{
			name:       "www prefix stripped from domain",
			cfg:        config.SiteConfig{Domain: "www.example.com", Seeds: []string{"example.com/start"}},
			wantDomain: "example.com",
			wantSeeds:  []string{"https://example.com/start"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			domain, seeds, err := resolveSite(config.Config{Site: tt.cfg})
			require.NoError(t, err)
			require.Equal(t, tt.wantDomain, domain)
			require.Equal(t, tt.wantSeeds, seeds)
		})
	}
}

func TestReportCommand_PrintsFailures(t *testing.T) {
	dir := t.TempDir()
	dataDir := filepath.Join(dir, "data")

	store, err := frontier.Open(dataDir, "example.com", frontier.Options{DefaultFrequencyDays: 7}, zap.NewNop())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.AddSeed(ctx, "https://example.com", 100, nil))
	require.NoError(t, store.Add(ctx, "https://example.com/gone"))
	require.NoError(t, store.MarkFailed(ctx, "https://example.com/gone",
		&crawler.HTTPError{StatusCode: http.StatusNotFound, URL: "https://example.com/gone"}))
	require.NoError(t, store.Close())

	cfgPath := filepath.Join(dir, "config.yaml")
	cfgYAML := "site:\n  domain: example.com\nstorage:\n  data_dir: " + dataDir + "\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfgYAML), 0o600))

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"report", "--config", cfgPath})

	require.NoError(t, root.ExecuteContext(ctx))

	report := out.String()
	require.Contains(t, report, "pending: 1")
	require.Contains(t, report, "failed:  1")
	require.Contains(t, report, "https://example.com/gone")
	require.Contains(t, report, "http status 404")
}
