package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/site-discovery-crawler/internal/crawler"
	"github.com/JakeFAU/site-discovery-crawler/internal/frontier"
	"github.com/JakeFAU/site-discovery-crawler/internal/server"
	"github.com/JakeFAU/site-discovery-crawler/internal/urlnorm"
)

type crawlOptions struct {
	exclusions []string
	maxPages   int
	budget     time.Duration
	output     string
}

// newCrawlCmd creates the 'crawl' subcommand, which runs one crawl in the
// foreground and prints the discovered pages.
func newCrawlCmd() *cobra.Command {
	opts := &crawlOptions{}
	cmd := &cobra.Command{
		Use:   "crawl HOMEPAGE_URL",
		Short: "Crawls one site and prints its key pages",
		Long: `Runs a single crawl without the HTTP service or any persistence and
prints the classified pages as JSON or as a table.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrawlCommand(cmd, args[0], opts)
		},
	}
	cmd.Flags().StringArrayVar(&opts.exclusions, "exclude", nil, "glob pattern of URLs to skip (repeatable)")
	cmd.Flags().IntVar(&opts.maxPages, "max-pages", 0, "maximum pages to fetch (default from config)")
	cmd.Flags().DurationVar(&opts.budget, "budget", 0, "wall-clock limit for the crawl (default from config)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "table", "output format: table or json")
	return cmd
}

func runCrawlCommand(cmd *cobra.Command, homepage string, opts *crawlOptions) error {
	if opts.output != "table" && opts.output != "json" {
		return fmt.Errorf("unknown output format %q", opts.output)
	}
	e, err := resolveEnv(cmd.Context())
	if err != nil {
		return err
	}
	site, err := urlnorm.SiteOf(homepage)
	if err != nil {
		return fmt.Errorf("invalid homepage: %w", err)
	}
	if site.Scheme != "http" && site.Scheme != "https" {
		return fmt.Errorf("invalid homepage: unsupported scheme %q", site.Scheme)
	}
	if opts.maxPages < 0 || opts.maxPages > e.cfg.Crawler.MaxPagesLimit {
		return fmt.Errorf("--max-pages must be between 1 and %d", e.cfg.Crawler.MaxPagesLimit)
	}

	stack := server.NewCrawlStack(e.cfg, e.logger)
	defer stack.Close()

	result, err := stack.Scheduler.Run(cmd.Context(), frontier.Request{
		JobID:      "cli",
		Homepage:   homepage,
		Exclusions: opts.exclusions,
		MaxPages:   opts.maxPages,
		Budget:     opts.budget,
	}, nil, nil)
	if err != nil {
		return fmt.Errorf("crawl %s: %w", homepage, err)
	}
	e.logger.Info("crawl finished",
		zap.Int("pages_crawled", result.TotalPagesCrawled),
		zap.Duration("duration", result.Stats.Duration),
	)

	if opts.output == "json" {
		return writeResultJSON(cmd.OutOrStdout(), result)
	}
	writeResultTable(cmd.OutOrStdout(), result)
	return nil
}

func writeResultJSON(w io.Writer, result crawler.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return nil
}

func writeResultTable(w io.Writer, result crawler.Result) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Bucket", "URL"})
	if result.HomePage != "" {
		t.AppendRow(table.Row{"home", result.HomePage})
	}
	if result.AboutPage != "" {
		t.AppendRow(table.Row{"about", result.AboutPage})
	}
	for _, u := range result.ServicePages {
		t.AppendRow(table.Row{"service", u})
	}
	for _, u := range result.BlogArticles {
		t.AppendRow(table.Row{"blog", u})
	}
	t.AppendFooter(table.Row{"pages crawled", fmt.Sprintf("%d (limit reached: %t)", result.TotalPagesCrawled, result.ReachedLimit)})
	t.Render()
}
