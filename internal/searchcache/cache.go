// Package searchcache caches search responses in Redis and collapses
// concurrent identical requests into one computation.
package searchcache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/JakeFAU/hybrid-search/internal/metrics"
	"github.com/JakeFAU/hybrid-search/internal/ranking"
)

const (
	keyPrefix             = "search:"
	defaultTTL            = 5 * time.Minute
	defaultComputeTimeout = 60 * time.Second
)

// ErrMiss is returned by a Backend when the key is absent.
var ErrMiss = errors.New("cache miss")

// Backend is the key/value store behind the cache.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Cache wraps a Backend with JSON encoding and singleflight.
type Cache struct {
	backend        Backend
	ttl            time.Duration
	computeTimeout time.Duration
	group          singleflight.Group
	logger         *zap.Logger
}

// Option customizes a Cache.
type Option func(*Cache)

// WithComputeTimeout bounds a shared computation. It runs detached from any
// single caller, so this is its only deadline.
func WithComputeTimeout(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.computeTimeout = d
		}
	}
}

// New returns a cache. A non-positive ttl uses five minutes.
func New(backend Backend, ttl time.Duration, logger *zap.Logger, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Cache{
		backend:        backend,
		ttl:            ttl,
		computeTimeout: defaultComputeTimeout,
		logger:         logger.Named("searchcache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key returns the cache key for req. Query and site are hashed verbatim:
// the site filter matches URLs case-sensitively and embedders see the raw query.
func Key(req ranking.Request) string {
	normalized := fmt.Sprintf("q=%q|k=%d|sem=%t|site=%q|date=%q",
		req.Query, req.TopK, req.UseSemantic, req.Site, req.DateRange)
	sum := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%s%x", keyPrefix, sum)
}

// Get returns a cached response. Backend and decode errors count as misses.
func (c *Cache) Get(ctx context.Context, req ranking.Request) (ranking.Response, bool) {
	key := Key(req)
	data, err := c.backend.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			c.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		}
		metrics.ObserveCache("miss")
		return ranking.Response{}, false
	}
	var resp ranking.Response
	if err := json.Unmarshal(data, &resp); err != nil {
		c.logger.Warn("cache decode failed", zap.String("key", key), zap.Error(err))
		metrics.ObserveCache("miss")
		return ranking.Response{}, false
	}
	metrics.ObserveCache("hit")
	return resp, true
}

// Set stores resp. Failures are logged and otherwise ignored.
func (c *Cache) Set(ctx context.Context, req ranking.Request, resp ranking.Response) {
	key := Key(req)
	data, err := json.Marshal(resp)
	if err != nil {
		c.logger.Warn("cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.backend.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

// GetOrCompute returns the cached response or runs compute once per key
// across concurrent callers. Errors from compute are not cached. The shared
// computation does not inherit any caller's cancellation; each caller stops
// waiting when its own ctx is done.
func (c *Cache) GetOrCompute(ctx context.Context, req ranking.Request,
	compute func(context.Context) (ranking.Response, error),
) (ranking.Response, bool, error) {
	if resp, ok := c.Get(ctx, req); ok {
		return resp, true, nil
	}
	ch := c.group.DoChan(Key(req), func() (any, error) {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.computeTimeout)
		defer cancel()
		resp, err := compute(cctx)
		if err != nil {
			return ranking.Response{}, err
		}
		c.Set(cctx, req, resp)
		return resp, nil
	})
	select {
	case <-ctx.Done():
		return ranking.Response{}, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return ranking.Response{}, false, res.Err
		}
		return res.Val.(ranking.Response), false, nil
	}
}
