package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitecrawl/internal/frontier"
)

// newReportCmd creates and configures the 'report' subcommand.
func newReportCmd() *cobra.Command {
	flags := &crawlFlags{}
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Prints frontier statistics and permanently failed URLs",
		Long: `Opens the frontier database read-only style and prints record counts by
status plus every permanently failed URL with its last error. No crawling
happens.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReport(cmd, flags)
		},
	}

	cmd.Flags().StringVar(&flags.site, "site", "", "site to report on, e.g. example.com (overrides config)")

	return cmd
}

func runReport(cmd *cobra.Command, flags *crawlFlags) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	domain, _, err := resolveSite(cfg)
	if err != nil {
		return err
	}

	store, err := frontier.Open(cfg.Storage.DataDir, domain, frontier.Options{
		DefaultFrequencyDays: cfg.Site.CrawlFrequencyDays,
	}, zap.NewNop())
	if err != nil {
		return fmt.Errorf("open frontier: %w", err)
	}
	defer store.Close() //nolint:errcheck // read-only usage

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	stats, err := store.Stats(ctx)
	if err != nil {
		return fmt.Errorf("frontier stats: %w", err)
	}
	fmt.Fprintf(out, "Frontier for %s (%s)\n", domain, store.Path())
	fmt.Fprintf(out, "  pending: %d\n  visited: %d\n  failed:  %d\n  total:   %d\n\n",
		stats.Pending, stats.Visited, stats.Failed, stats.Total())

	failed, err := store.ListFailed(ctx)
	if err != nil {
		return fmt.Errorf("list failed: %w", err)
	}
	if len(failed) == 0 {
		fmt.Fprintln(out, "No permanently failed URLs.")
		return nil
	}

	fmt.Fprintf(out, "Permanently failed URLs (%d):\n", len(failed))
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "URL\tRETRIES\tLAST ERROR")
	for _, record := range failed {
		fmt.Fprintf(w, "%s\t%d\t%s\n", record.URL, record.RetryCount, record.LastError)
	}
	return w.Flush()
}
