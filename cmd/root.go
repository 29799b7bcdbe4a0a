// Package cmd defines the CLI commands for the sitecrawl executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/sitecrawl/internal/daemon"
)

// Exit codes. A requested shutdown is not a failure, but it is distinguishable
// from a clean exit so supervisors can tell "operator stopped it" from "done".
const (
	exitOK       = 0
	exitError    = 1
	exitShutdown = 3
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sitecrawl",
		Short: "A polite, resumable single-site crawler feeding a retrieval index.",
		Long: `sitecrawl crawls one domain on a schedule, persisting every known URL and
its crawl state in a local SQLite frontier. Successful pages are cleaned,
chunked, embedded and upserted into a vector store; failures are classified
and retried with backoff. The crawl can be stopped and resumed at any time
without losing progress.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ./config.yaml)")

	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newReportCmd())

	return cmd
}

// Execute runs the CLI and returns the process exit code. SIGINT and SIGTERM
// cancel the command context; the crawl loop reports that as a requested
// shutdown, mapped here to its own exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		if errors.Is(err, daemon.ErrShutdownRequested) {
			return exitShutdown
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		return exitError
	}
	return exitOK
}
