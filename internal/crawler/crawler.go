package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/hybrid-search/internal/clock/system"
	"github.com/JakeFAU/hybrid-search/internal/document"
	"github.com/JakeFAU/hybrid-search/internal/frontier"
	"github.com/JakeFAU/hybrid-search/internal/hash/sha256"
	"github.com/JakeFAU/hybrid-search/internal/metrics"
)

// Config controls crawl concurrency.
type Config struct {
	MaxConcurrency int
	Topic          string
}

// Crawler fans out a fixed pool of workers over one frontier per run.
type Crawler struct {
	cfg        Config
	fetcher    Fetcher
	politeness Politeness
	store      RawStore
	retrievals RetrievalLog
	publisher  Publisher
	hasher     Hasher
	clock      Clock
	ids        IDGenerator
	logger     *zap.Logger
}

// Option customizes a Crawler.
type Option func(*Crawler)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Crawler) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRetrievalLog records a row per stored page.
func WithRetrievalLog(log RetrievalLog) Option {
	return func(c *Crawler) { c.retrievals = log }
}

// WithPublisher emits a PageEvent per stored page.
func WithPublisher(p Publisher) Option {
	return func(c *Crawler) { c.publisher = p }
}

// WithClock overrides the fetch-time source.
func WithClock(clock Clock) Option {
	return func(c *Crawler) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithHasher overrides the content hasher.
func WithHasher(h Hasher) Option {
	return func(c *Crawler) {
		if h != nil {
			c.hasher = h
		}
	}
}

// WithIDGenerator supplies run and retrieval IDs.
func WithIDGenerator(ids IDGenerator) Option {
	return func(c *Crawler) { c.ids = ids }
}

// New constructs a Crawler.
func New(cfg Config, fetcher Fetcher, politeness Politeness, store RawStore, opts ...Option) (*Crawler, error) {
	if fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if politeness == nil {
		return nil, errors.New("politeness registry is required")
	}
	if store == nil {
		return nil, errors.New("raw store is required")
	}
	if cfg.MaxConcurrency <= 0 {
		return nil, fmt.Errorf("max concurrency must be > 0, got %d", cfg.MaxConcurrency)
	}
	c := &Crawler{
		cfg:        cfg,
		fetcher:    fetcher,
		politeness: politeness,
		store:      store,
		hasher:     sha256.New(),
		clock:      system.New(),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("crawler")
	return c, nil
}

// Crawl visits at most limit URLs reachable from seeds and returns the visited set.
// Cancelling ctx stops workers from claiming new URLs; the URLs visited so far
// are returned together with the context error.
func (c *Crawler) Crawl(ctx context.Context, seeds []string, limit int) ([]string, error) {
	seeds = normalizeSeeds(seeds)
	f, err := frontier.New(seeds, limit)
	if err != nil {
		return nil, fmt.Errorf("new frontier: %w", err)
	}
	runID := c.newID()
	logger := c.logger.With(zap.String("run_id", runID))
	logger.Info("crawl started",
		zap.Int("seeds", len(seeds)),
		zap.Int("limit", limit),
		zap.Int("workers", c.cfg.MaxConcurrency))

	stop := context.AfterFunc(ctx, f.Stop)
	defer stop()

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < c.cfg.MaxConcurrency; i++ {
		workerID := i
		g.Go(func() error {
			c.work(gctx, f, runID, logger.With(zap.Int("worker", workerID)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return f.Visited(), fmt.Errorf("crawl workers: %w", err)
	}

	visited := f.Visited()
	stats := f.Stats()
	logger.Info("crawl finished",
		zap.Int("visited", stats.Visited),
		zap.Int("dropped", stats.Dropped),
		zap.Int("pending", stats.Pending),
		zap.Duration("elapsed", time.Since(start)))
	if err := ctx.Err(); err != nil {
		return visited, fmt.Errorf("crawl canceled: %w", err)
	}
	return visited, nil
}

// normalizeSeeds applies the same normalization as discovered links so a seed
// and a link to the same page share one frontier entry. Unparsable seeds are
// kept as given and fail at fetch time.
func normalizeSeeds(seeds []string) []string {
	out := make([]string, 0, len(seeds))
	for _, seed := range seeds {
		u, err := url.Parse(strings.TrimSpace(seed))
		if err != nil || u.Host == "" {
			out = append(out, seed)
			continue
		}
		out = append(out, NormalizeURL(u))
	}
	return out
}

func (c *Crawler) work(ctx context.Context, f *frontier.Frontier, runID string, logger *zap.Logger) {
	for {
		target, ok := f.Next(ctx)
		if !ok {
			return
		}
		metrics.IncActiveWorkers()
		links, size, err := c.visit(ctx, runID, target)
		metrics.DecActiveWorkers()
		if err != nil {
			f.Fail(target)
			metrics.ObserveCrawl(target, failureStatus(err), 0)
			logger.Debug("url dropped", zap.String("url", target), zap.Error(err))
			continue
		}
		f.Complete(target, links)
		metrics.ObserveCrawl(target, "ok", size)
		logger.Debug("url visited", zap.String("url", target), zap.Int("links", len(links)))
	}
}

func (c *Crawler) visit(ctx context.Context, runID, target string) ([]string, int, error) {
	if !c.politeness.Allowed(ctx, target) {
		return nil, 0, ErrDisallowed
	}
	if err := c.politeness.WaitIfNeeded(ctx, target); err != nil {
		return nil, 0, fmt.Errorf("politeness wait: %w", err)
	}
	resp, err := c.fetcher.Fetch(ctx, target)
	if err != nil {
		return nil, 0, fmt.Errorf("fetch: %w", err)
	}
	if resp.StatusCode != 200 {
		return nil, 0, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}
	if !isHTML(resp.ContentType) {
		return nil, 0, fmt.Errorf("%w: %q", ErrNotHTML, resp.ContentType)
	}

	contentHash, err := c.hasher.Hash(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("hash content: %w", err)
	}
	key := document.IDForURL(target)
	fetchTime := c.clock.Now()
	meta := document.RawMetadata{
		URL:         target,
		FetchTime:   fetchTime,
		ContentHash: contentHash,
		ContentType: resp.ContentType,
		StatusCode:  resp.StatusCode,
		RunID:       runID,
	}
	uri, err := c.store.PutRaw(ctx, key, resp.Body, meta)
	if err != nil {
		return nil, 0, fmt.Errorf("store raw page: %w", err)
	}

	links, err := ExtractLinks(target, resp.Body)
	if err != nil {
		c.logger.Warn("link extraction failed", zap.String("url", target), zap.Error(err))
	}

	c.recordRetrieval(ctx, RetrievalRecord{
		ID:          c.newID(),
		RunID:       runID,
		URL:         target,
		StorageKey:  key,
		ContentHash: contentHash,
		BlobURI:     uri,
		StatusCode:  resp.StatusCode,
		ContentType: resp.ContentType,
		Bytes:       len(resp.Body),
		RetrievedAt: fetchTime,
	})
	c.publish(ctx, PageEvent{
		RunID:       runID,
		URL:         target,
		StorageKey:  key,
		BlobURI:     uri,
		ContentHash: contentHash,
		FetchTime:   fetchTime,
		Links:       len(links),
	})
	return links, len(resp.Body), nil
}

func (c *Crawler) recordRetrieval(ctx context.Context, record RetrievalRecord) {
	if c.retrievals == nil {
		return
	}
	if err := c.retrievals.StoreRetrieval(ctx, record); err != nil {
		c.logger.Warn("retrieval log write failed", zap.String("url", record.URL), zap.Error(err))
	}
}

func (c *Crawler) publish(ctx context.Context, event PageEvent) {
	if c.publisher == nil {
		return
	}
	if _, err := c.publisher.Publish(ctx, c.cfg.Topic, event); err != nil {
		c.logger.Warn("page event publish failed", zap.String("url", event.URL), zap.Error(err))
	}
}

func (c *Crawler) newID() string {
	if c.ids == nil {
		return ""
	}
	id, err := c.ids.NewID()
	if err != nil {
		c.logger.Warn("id generation failed", zap.Error(err))
		return ""
	}
	return id
}

func failureStatus(err error) string {
	switch {
	case errors.Is(err, ErrDisallowed):
		return "disallowed"
	case errors.Is(err, ErrUnexpectedStatus):
		return "bad_status"
	case errors.Is(err, ErrNotHTML):
		return "not_html"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
