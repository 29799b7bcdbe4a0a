// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/sitecrawl/internal/schedule"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Site     SiteConfig     `mapstructure:"site"`
	Fetcher  FetcherConfig  `mapstructure:"fetcher"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// SiteConfig identifies the crawl target and its politeness settings.
type SiteConfig struct {
	Domain             string   `mapstructure:"domain"`
	Seeds              []string `mapstructure:"seeds"`
	CrawlFrequencyDays int      `mapstructure:"crawl_frequency_days"`
	RespectRobots      bool     `mapstructure:"respect_robots"`
	AllowQueries       bool     `mapstructure:"allow_queries"`
	SkipPatterns       []string `mapstructure:"skip_patterns"`
}

// FetcherConfig selects and tunes the page fetcher.
type FetcherConfig struct {
	Mode          string `mapstructure:"mode"` // "headless" or "http"
	UserAgent     string `mapstructure:"user_agent"`
	NavTimeoutSec int    `mapstructure:"nav_timeout_seconds"`
	RestartEvery  int    `mapstructure:"restart_every"`
	DelaySeconds  int    `mapstructure:"delay_seconds"`
}

// ScheduleConfig gates when the crawler is allowed to work.
type ScheduleConfig struct {
	ActiveHours string `mapstructure:"active_hours"`
}

// PipelineConfig tunes chunking and embedding of page content.
type PipelineConfig struct {
	ContentType    string `mapstructure:"content_type"`
	ChunkMaxTokens int    `mapstructure:"chunk_max_tokens"`
	ChunkOverlap   int    `mapstructure:"chunk_overlap"`
	EmbedBatchSize int    `mapstructure:"embed_batch_size"`
}

// StorageConfig sets where the frontier database lives.
type StorageConfig struct {
	DataDir string `mapstructure:"data_dir"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	return LoadWithOverrides(path, nil)
}

// LoadWithOverrides builds a Config and applies override (typically CLI flag
// values) before validation.
func LoadWithOverrides(path string, override func(*Config)) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SITECRAWL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if override != nil {
		override(&cfg)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("site.domain", "")
	v.SetDefault("site.seeds", []string{})
	v.SetDefault("site.crawl_frequency_days", 7)
	v.SetDefault("site.respect_robots", true)
	v.SetDefault("site.allow_queries", false)
	v.SetDefault("fetcher.mode", "headless")
	v.SetDefault("fetcher.user_agent", "sitecrawl-bot/1.0 (+https://github.com/JakeFAU/sitecrawl)")
	v.SetDefault("fetcher.nav_timeout_seconds", 45)
	v.SetDefault("fetcher.restart_every", 50)
	v.SetDefault("fetcher.delay_seconds", 2)
	v.SetDefault("pipeline.content_type", "web_page")
	v.SetDefault("pipeline.chunk_max_tokens", 512)
	v.SetDefault("pipeline.chunk_overlap", 50)
	v.SetDefault("pipeline.embed_batch_size", 16)
	v.SetDefault("storage.data_dir", "data")
	v.SetDefault("logging.development", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Site.Domain == "" && len(c.Site.Seeds) == 0 {
		return fmt.Errorf("site.domain or site.seeds must be set")
	}
	if c.Site.CrawlFrequencyDays <= 0 {
		return fmt.Errorf("site.crawl_frequency_days must be > 0")
	}
	if c.Fetcher.Mode != "headless" && c.Fetcher.Mode != "http" {
		return fmt.Errorf("fetcher.mode must be \"headless\" or \"http\", got %q", c.Fetcher.Mode)
	}
	if c.Fetcher.NavTimeoutSec <= 0 {
		return fmt.Errorf("fetcher.nav_timeout_seconds must be > 0")
	}
	if c.Fetcher.RestartEvery <= 0 {
		return fmt.Errorf("fetcher.restart_every must be > 0")
	}
	if c.Pipeline.ChunkOverlap >= c.Pipeline.ChunkMaxTokens {
		return fmt.Errorf("pipeline.chunk_overlap must be smaller than pipeline.chunk_max_tokens")
	}
	if c.Schedule.ActiveHours != "" {
		if _, err := schedule.ParseWindow(c.Schedule.ActiveHours); err != nil {
			return fmt.Errorf("schedule.active_hours: %w", err)
		}
	}
	for _, pattern := range c.Site.SkipPatterns {
		if _, err := regexp.Compile(pattern); err != nil {
			return fmt.Errorf("site.skip_patterns %q: %w", pattern, err)
		}
	}
	return nil
}

// CompileSkipPatterns compiles site.skip_patterns; Validate has already
// rejected malformed ones.
func (c Config) CompileSkipPatterns() []*regexp.Regexp {
	patterns := make([]*regexp.Regexp, 0, len(c.Site.SkipPatterns))
	for _, p := range c.Site.SkipPatterns {
		patterns = append(patterns, regexp.MustCompile(p))
	}
	return patterns
}

// NavTimeout converts the navigation timeout config into a duration.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Fetcher.NavTimeoutSec) * time.Second
}

// Delay converts the per-page politeness delay into a duration.
func (c Config) Delay() time.Duration {
	return time.Duration(c.Fetcher.DelaySeconds) * time.Second
}
