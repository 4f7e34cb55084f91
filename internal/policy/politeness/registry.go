// Package politeness tracks robots.txt rules and crawl delays per domain.
package politeness

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/hybrid-search/internal/metrics"
)

const (
	defaultCrawlDelay    = time.Second
	defaultRobotsTimeout = 5 * time.Second
	maxRobotsBytes       = 1 << 20
)

// Config controls robots.txt fetching and the fallback delay.
type Config struct {
	UserAgent     string
	DefaultDelay  time.Duration
	RobotsTimeout time.Duration
	// AgentGroups additionally enforces the user-agent group rules of robots.txt.
	AgentGroups bool
}

// Snapshot is a read-only view of one domain's state.
type Snapshot struct {
	Domain           string
	DisallowPrefixes []string
	CrawlDelay       time.Duration
	LastAccess       time.Time
}

// Registry owns the per-domain politeness entries. The registry lock only
// guards lookup and insertion; each entry serializes its own state.
type Registry struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	domains map[string]*domainEntry
}

type domainEntry struct {
	mu         sync.Mutex
	domain     string
	loaded     bool
	rules      Rules
	group      *robotstxt.Group
	limiter    *rate.Limiter
	lastAccess time.Time
}

// Option customizes a Registry.
type Option func(*Registry)

// WithHTTPClient overrides the client used for robots.txt.
func WithHTTPClient(client *http.Client) Option {
	return func(r *Registry) {
		if client != nil {
			r.client = client
		}
	}
}

// WithNow overrides the time source.
func WithNow(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRegistry builds an empty registry. Domains are populated lazily.
func NewRegistry(cfg Config, logger *zap.Logger, opts ...Option) *Registry {
	if cfg.DefaultDelay < 0 {
		cfg.DefaultDelay = defaultCrawlDelay
	}
	if cfg.RobotsTimeout <= 0 {
		cfg.RobotsTimeout = defaultRobotsTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.RobotsTimeout},
		logger:  logger.Named("politeness"),
		now:     time.Now,
		domains: make(map[string]*domainEntry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Allowed reports whether rawURL may be fetched under its domain's robots rules.
// Unparseable URLs are never allowed.
func (r *Registry) Allowed(ctx context.Context, rawURL string) bool {
	parsed, err := parseTarget(rawURL)
	if err != nil {
		return false
	}
	entry := r.entry(parsed)
	entry.mu.Lock()
	defer entry.mu.Unlock()
	r.ensureLoaded(ctx, entry, parsed)

	if !entry.rules.Allows(parsed.EscapedPath()) {
		return false
	}
	if entry.group != nil && !entry.group.Test(parsed.EscapedPath()) {
		return false
	}
	return true
}

// WaitIfNeeded blocks until the domain's crawl delay has elapsed since its last
// access and records the new access time. Slot reservation happens under the
// domain lock, so concurrent callers for one domain are spaced by at least the delay.
func (r *Registry) WaitIfNeeded(ctx context.Context, rawURL string) error {
	parsed, err := parseTarget(rawURL)
	if err != nil {
		return err
	}
	entry := r.entry(parsed)

	entry.mu.Lock()
	r.ensureLoaded(ctx, entry, parsed)
	now := r.now()
	reservation := entry.limiter.ReserveN(now, 1)
	if !reservation.OK() {
		entry.mu.Unlock()
		return fmt.Errorf("politeness reserve for %s: burst exceeded", entry.domain)
	}
	wait := reservation.DelayFrom(now)
	if !entry.lastAccess.IsZero() {
		if floor := entry.lastAccess.Add(entry.rules.CrawlDelay).Sub(now); floor > wait {
			wait = floor
		}
	}
	if wait < 0 {
		wait = 0
	}
	entry.lastAccess = now.Add(wait)
	domain := entry.domain
	entry.mu.Unlock()

	if wait == 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("politeness wait for %s: %w", domain, ctx.Err())
	case <-timer.C:
	}
	if wait > time.Millisecond {
		metrics.ObservePolitenessWait(domain, wait)
	}
	return nil
}

// Domain returns the current state for rawURL's domain, if it has been seen.
func (r *Registry) Domain(rawURL string) (Snapshot, bool) {
	parsed, err := parseTarget(rawURL)
	if err != nil {
		return Snapshot{}, false
	}
	r.mu.Lock()
	entry, ok := r.domains[domainKey(parsed)]
	r.mu.Unlock()
	if !ok {
		return Snapshot{}, false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return Snapshot{
		Domain:           entry.domain,
		DisallowPrefixes: append([]string(nil), entry.rules.DisallowPrefixes...),
		CrawlDelay:       entry.rules.CrawlDelay,
		LastAccess:       entry.lastAccess,
	}, true
}

func (r *Registry) entry(parsed *url.URL) *domainEntry {
	key := domainKey(parsed)
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.domains[key]
	if !ok {
		entry = &domainEntry{domain: strings.ToLower(parsed.Host)}
		r.domains[key] = entry
	}
	return entry
}

// ensureLoaded fetches robots.txt once per domain. The caller holds entry.mu.
func (r *Registry) ensureLoaded(ctx context.Context, entry *domainEntry, parsed *url.URL) {
	if entry.loaded {
		return
	}
	entry.loaded = true
	entry.rules = Rules{CrawlDelay: r.cfg.DefaultDelay}

	body, err := r.fetchRobots(ctx, parsed)
	if err != nil {
		r.logger.Debug("robots unavailable; using default policy",
			zap.String("domain", entry.domain), zap.Error(err))
		metrics.ObserveRobotsFetch("fallback")
	} else {
		entry.rules = ParseRules(string(body), r.cfg.DefaultDelay)
		if r.cfg.AgentGroups {
			if data, perr := robotstxt.FromBytes(body); perr == nil {
				entry.group = data.FindGroup(r.cfg.UserAgent)
			} else {
				r.logger.Warn("robots agent groups unparsable", zap.String("domain", entry.domain), zap.Error(perr))
			}
		}
		metrics.ObserveRobotsFetch("ok")
	}
	entry.limiter = newLimiter(entry.rules.CrawlDelay)
	r.logger.Debug("domain registered",
		zap.String("domain", entry.domain),
		zap.Duration("crawl_delay", entry.rules.CrawlDelay),
		zap.Int("disallow_rules", len(entry.rules.DisallowPrefixes)))
}

func (r *Registry) fetchRobots(ctx context.Context, parsed *url.URL) ([]byte, error) {
	robotsURL := url.URL{Scheme: parsed.Scheme, Host: parsed.Host, Path: "/robots.txt"}
	ctx, cancel := context.WithTimeout(ctx, r.cfg.RobotsTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("new robots request: %w", err)
	}
	if r.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", r.cfg.UserAgent)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			r.logger.Debug("Failed to close robots response body", zap.Error(cerr))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch robots: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBytes))
	if err != nil {
		return nil, fmt.Errorf("read robots body: %w", err)
	}
	return body, nil
}

func newLimiter(delay time.Duration) *rate.Limiter {
	if delay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(delay), 1)
}

func parseTarget(rawURL string) (*url.URL, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("parse url: %q is not absolute", rawURL)
	}
	return parsed, nil
}

func domainKey(parsed *url.URL) string {
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host)
}
