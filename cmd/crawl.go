package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/hybrid-search/internal/config"
	"github.com/JakeFAU/hybrid-search/internal/crawler"
	collyfetcher "github.com/JakeFAU/hybrid-search/internal/fetcher/colly"
	"github.com/JakeFAU/hybrid-search/internal/id/uuid"
	"github.com/JakeFAU/hybrid-search/internal/policy/politeness"
	"github.com/JakeFAU/hybrid-search/internal/storage"
)

// newCrawlCmd creates the 'crawl' subcommand. Seeds come from the arguments
// or, when none are given, from crawler.seeds.
func newCrawlCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "crawl [seed-url...]",
		Short: "Crawl from seed URLs into the raw page store",
		Long: `Runs a bounded breadth-first crawl. robots.txt rules and crawl delays
are honored per domain, and every fetched HTML page is written to the raw
store with its metadata sidecar.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			if limit > 0 {
				e.cfg.Crawler.Limit = limit
			}
			if len(args) > 0 {
				e.cfg.Crawler.Seeds = args
			}
			raw, closeRaw, err := openRawStore(cmd.Context(), e.cfg, e.logger)
			if err != nil {
				return err
			}
			defer closeRaw()
			_, err = runCrawl(cmd.Context(), e.cfg, raw, e.logger)
			return err
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum pages to visit (overrides crawler.limit)")
	return cmd
}

func runCrawl(ctx context.Context, cfg config.Config, raw storage.RawStore, logger *zap.Logger) ([]string, error) {
	if len(cfg.Crawler.Seeds) == 0 {
		return nil, errors.New("no seeds: pass URLs or set crawler.seeds")
	}

	retrievals, closeRetrievals, err := openRetrievalLog(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	defer closeRetrievals()

	publisher, topic, closePublisher, err := openPublisher(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	defer closePublisher()

	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:    cfg.Crawler.UserAgent,
		Timeout:      cfg.FetchTimeout(),
		MaxBodyBytes: cfg.Crawler.MaxBodyBytes,
	})
	registry := politeness.NewRegistry(politeness.Config{
		UserAgent:     cfg.Crawler.UserAgent,
		DefaultDelay:  cfg.DefaultDelay(),
		RobotsTimeout: cfg.RobotsTimeout(),
		AgentGroups:   cfg.Politeness.AgentGroups,
	}, logger)

	c, err := crawler.New(
		crawler.Config{MaxConcurrency: cfg.Crawler.MaxConcurrency, Topic: topic},
		fetcher,
		registry,
		raw,
		crawler.WithLogger(logger),
		crawler.WithIDGenerator(uuid.New()),
		crawler.WithRetrievalLog(retrievals),
		crawler.WithPublisher(publisher),
	)
	if err != nil {
		return nil, fmt.Errorf("init crawler: %w", err)
	}

	visited, err := c.Crawl(ctx, cfg.Crawler.Seeds, cfg.Crawler.Limit)
	if err != nil {
		return visited, fmt.Errorf("run crawler: %w", err)
	}
	logger.Info("Crawl command finished.", zap.Int("visited", len(visited)))
	return visited, nil
}
