package cmd

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitecrawl/internal/clock/system"
	"github.com/JakeFAU/sitecrawl/internal/config"
	"github.com/JakeFAU/sitecrawl/internal/crawler"
	"github.com/JakeFAU/sitecrawl/internal/daemon"
	"github.com/JakeFAU/sitecrawl/internal/embed"
	"github.com/JakeFAU/sitecrawl/internal/fetcher/collyhttp"
	"github.com/JakeFAU/sitecrawl/internal/fetcher/headless"
	"github.com/JakeFAU/sitecrawl/internal/frontier"
	md5hash "github.com/JakeFAU/sitecrawl/internal/hash/md5"
	"github.com/JakeFAU/sitecrawl/internal/logging"
	"github.com/JakeFAU/sitecrawl/internal/metrics"
	"github.com/JakeFAU/sitecrawl/internal/pipeline"
	"github.com/JakeFAU/sitecrawl/internal/policy/ratelimit"
	"github.com/JakeFAU/sitecrawl/internal/schedule"
	"github.com/JakeFAU/sitecrawl/internal/vector/memory"
)

// seedPriority ranks operator-supplied seeds above discovered links.
const seedPriority = 100

type crawlFlags struct {
	site        string
	activeHours string
	fresh       bool
	retryFailed bool
}

// newCrawlCmd creates and configures the 'crawl' subcommand.
func newCrawlCmd() *cobra.Command {
	flags := &crawlFlags{}
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Starts the crawl loop for the configured site",
		Long: `Opens (or creates) the frontier database for the configured domain, seeds
it, and runs the crawl loop until interrupted. Already-known URLs resume
exactly where the last run left off.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCrawl(cmd, flags)
		},
	}

	cmd.Flags().StringVar(&flags.site, "site", "", "site to crawl, e.g. example.com (overrides config)")
	cmd.Flags().StringVar(&flags.activeHours, "active-hours", "", `active crawl window, e.g. "09:00-17:30" or "9pm-6am" (overrides config)`)
	cmd.Flags().BoolVar(&flags.fresh, "fresh", false, "discard the existing frontier and start over")
	cmd.Flags().BoolVar(&flags.retryFailed, "retry-failed", false, "reset permanently failed URLs to pending before crawling")

	return cmd
}

func runCrawl(cmd *cobra.Command, flags *crawlFlags) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	domain, seeds, err := resolveSite(cfg)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush

	metrics.Init()
	ctx := cmd.Context()

	store, err := frontier.Open(cfg.Storage.DataDir, domain, frontier.Options{
		DefaultFrequencyDays: cfg.Site.CrawlFrequencyDays,
		Reset:                flags.fresh,
	}, logger)
	if err != nil {
		return fmt.Errorf("open frontier: %w", err)
	}
	defer store.Close() //nolint:errcheck // closed on exit

	if flags.retryFailed {
		reset, err := store.RetryFailed(ctx)
		if err != nil {
			return fmt.Errorf("retry failed urls: %w", err)
		}
		logger.Info("failed urls reset to pending", zap.Int64("count", reset))
	}

	for _, seed := range seeds {
		if err := store.AddSeed(ctx, seed, seedPriority, nil); err != nil {
			return fmt.Errorf("seed %s: %w", seed, err)
		}
	}

	fetcher, cleanup, err := buildFetcher(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	window, err := schedule.ParseWindow(cfg.Schedule.ActiveHours)
	if err != nil {
		return fmt.Errorf("parse active hours: %w", err)
	}

	adapter := pipeline.New(store, buildEmbedder(logger), memory.NewVectorStore(), md5hash.New(), pipeline.Config{
		Domain:      domain,
		ContentType: cfg.Pipeline.ContentType,
		Chunker: pipeline.ChunkerConfig{
			MaxTokens: cfg.Pipeline.ChunkMaxTokens,
			Overlap:   cfg.Pipeline.ChunkOverlap,
		},
		BatchSize: cfg.Pipeline.EmbedBatchSize,
	}, logger)

	filter := crawler.NewLinkFilter(crawler.LinkFilterConfig{
		Domain:       domain,
		AllowQueries: cfg.Site.AllowQueries,
		SkipPatterns: cfg.CompileSkipPatterns(),
	})
	robots := crawler.NewRobotsEnforcer(cfg.Site.RespectRobots, cfg.Fetcher.UserAgent, logger)

	d := daemon.New(store, fetcher, robots, adapter, filter, system.New(), daemon.Config{
		Domain:       domain,
		UserAgent:    cfg.Fetcher.UserAgent,
		RestartEvery: cfg.Fetcher.RestartEvery,
		Window:       window,
		Limiter:      ratelimit.FromDelay(cfg.Delay()),
	}, logger)

	return d.Run(ctx)
}

func loadConfig(flags *crawlFlags) (config.Config, error) {
	return config.LoadWithOverrides(cfgFile, func(cfg *config.Config) {
		if flags.site != "" {
			cfg.Site.Domain = flags.site
			cfg.Site.Seeds = nil
		}
		if flags.activeHours != "" {
			cfg.Schedule.ActiveHours = flags.activeHours
		}
	})
}

// resolveSite derives the crawl domain and seed list: an explicit domain seeds
// its own root page, and a seed-only config takes its domain from the first
// seed.
func resolveSite(cfg config.Config) (string, []string, error) {
	domain := strings.TrimPrefix(strings.ToLower(cfg.Site.Domain), "www.")
	seeds := cfg.Site.Seeds

	if domain == "" {
		u, err := url.Parse(crawler.EnsureScheme(seeds[0], "https"))
		if err != nil || u.Hostname() == "" {
			return "", nil, fmt.Errorf("derive domain from seed %q: invalid url", seeds[0])
		}
		domain = strings.TrimPrefix(u.Hostname(), "www.")
	}
	if len(seeds) == 0 {
		seeds = []string{"https://" + domain}
	}

	normalized := make([]string, 0, len(seeds))
	for _, seed := range seeds {
		n, err := crawler.NormalizeURL(seed)
		if err != nil {
			return "", nil, fmt.Errorf("seed %q: %w", seed, err)
		}
		normalized = append(normalized, n)
	}
	return domain, normalized, nil
}

func buildFetcher(cfg config.Config, logger *zap.Logger) (crawler.Fetcher, func(), error) {
	switch cfg.Fetcher.Mode {
	case "http":
		f := collyhttp.New(collyhttp.Config{
			UserAgent: cfg.Fetcher.UserAgent,
			Timeout:   cfg.NavTimeout(),
		})
		return f, func() {}, nil
	default:
		f, err := headless.New(headless.Config{
			UserAgent:         cfg.Fetcher.UserAgent,
			NavigationTimeout: cfg.NavTimeout(),
		}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("init headless fetcher: %w", err)
		}
		return f, func() { _ = f.Close() }, nil
	}
}

// buildEmbedder wires an OpenAI-backed embedder when credentials are present
// and otherwise falls back to the deterministic in-process one, which keeps
// crawls runnable (and the frontier warm) without an embedding backend.
func buildEmbedder(logger *zap.Logger) crawler.Embedder {
	if os.Getenv("OPENAI_API_KEY") == "" {
		logger.Warn("OPENAI_API_KEY not set; using in-process embedder")
		return memory.NewEmbedder(256)
	}
	llm, err := openai.New()
	if err != nil {
		logger.Warn("openai client init failed; using in-process embedder", zap.Error(err))
		return memory.NewEmbedder(256)
	}
	client, err := embeddings.NewEmbedder(llm)
	if err != nil {
		logger.Warn("embedder init failed; using in-process embedder", zap.Error(err))
		return memory.NewEmbedder(256)
	}
	return embed.NewLangChain(client)
}
