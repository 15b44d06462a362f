// jobctl runs the ingestion pipeline from the command line: detect sources,
// preview a posting URL or import a GitHub README table without a server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"jobmate/job-ingest/internal/extract"
	"jobmate/job-ingest/internal/importer"
	"jobmate/job-ingest/internal/logging"
	"jobmate/job-ingest/internal/ratelimit"
	"jobmate/job-ingest/internal/scraper"
	"jobmate/job-ingest/internal/table"
)

type rootOptions struct {
	logLevel   string
	timeout    time.Duration
	maxRetries int
	jsonOutput bool
}

// deps builds an importer wired the same way the service wires it.
func (o *rootOptions) deps() (*importer.JobImporter, *zap.Logger) {
	logger := logging.New(o.logLevel)
	fetcher := scraper.NewContentFetcher(scraper.FetcherConfig{
		Timeout:    o.timeout,
		MaxRetries: o.maxRetries,
		RetryDelay: time.Second,
	}, logger)
	imp := importer.New(fetcher, extract.NewRegistry(), ratelimit.New(), table.NewImporter(), importer.Config{}, logger)
	return imp, logger
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "jobctl",
		Short:         "Import and inspect job postings",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "per-request fetch timeout")
	cmd.PersistentFlags().IntVar(&opts.maxRetries, "retries", 3, "fetch attempts for recoverable failures")
	cmd.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "print JSON instead of a table")

	cmd.AddCommand(
		newSourcesCommand(opts),
		newDetectCommand(opts),
		newPreviewCommand(opts),
		newImportRepoCommand(opts),
	)
	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}
