package searchcache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/hybrid-search/internal/ranking"
)

type mapBackend struct {
	mu     sync.Mutex
	data   map[string][]byte
	ttls   map[string]time.Duration
	getErr error
	gets   atomic.Int32
}

func newMapBackend() *mapBackend {
	return &mapBackend{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *mapBackend) Get(_ context.Context, key string) ([]byte, error) {
	m.gets.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return nil, ErrMiss
	}
	return v, nil
}

func (m *mapBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	m.ttls[key] = ttl
	return nil
}

func sampleResponse() ranking.Response {
	return ranking.Response{Hits: []ranking.Hit{{
		DocID:      "abc",
		Title:      "Title",
		URL:        "https://example.com/",
		Snippet:    "body",
		Score:      1.25,
		Highlights: []string{"titl"},
	}}}
}

func TestKeyDistinguishesRequests(t *testing.T) {
	t.Parallel()

	base := ranking.Request{Query: "Hello World", TopK: 10, UseSemantic: true, Site: "/Docs/"}
	same := base
	lowerQuery := base
	lowerQuery.Query = "hello world"
	spaced := base
	spaced.Query = " Hello World"
	lowerSite := base
	lowerSite.Site = "/docs/"
	otherK := base
	otherK.TopK = 5
	lexical := base
	lexical.UseSemantic = false

	a := Key(base)
	assert.Equal(t, a, Key(same))
	for _, other := range []ranking.Request{lowerQuery, spaced, lowerSite, otherK, lexical} {
		assert.NotEqual(t, a, Key(other), "%+v", other)
	}
	assert.Len(t, a, len(keyPrefix)+64)
}

func TestGetOrComputeSeparatesSitesDifferingInCase(t *testing.T) {
	t.Parallel()

	cache := New(newMapBackend(), time.Minute, nil)
	search := func(site string) func(context.Context) (ranking.Response, error) {
		return func(context.Context) (ranking.Response, error) {
			return ranking.Response{Hits: []ranking.Hit{{URL: "https://x.test" + site + "a"}}}, nil
		}
	}

	upper := ranking.Request{Query: "guide", Site: "/Docs/"}
	resp, hit, err := cache.GetOrCompute(context.Background(), upper, search(upper.Site))
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "https://x.test/Docs/a", resp.Hits[0].URL)

	lower := ranking.Request{Query: "guide", Site: "/docs/"}
	resp, hit, err = cache.GetOrCompute(context.Background(), lower, search(lower.Site))
	require.NoError(t, err)
	assert.False(t, hit)
	require.Len(t, resp.Hits, 1)
	assert.Contains(t, resp.Hits[0].URL, "/docs/")

	resp, hit, err = cache.GetOrCompute(context.Background(), upper, search(upper.Site))
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "https://x.test/Docs/a", resp.Hits[0].URL)
}

func TestGetOrComputeCachesResult(t *testing.T) {
	t.Parallel()

	backend := newMapBackend()
	cache := New(backend, time.Minute, nil)
	req := ranking.Request{Query: "q", TopK: 3}

	var calls atomic.Int32
	compute := func(context.Context) (ranking.Response, error) {
		calls.Add(1)
		return sampleResponse(), nil
	}

	resp, hit, err := cache.GetOrCompute(context.Background(), req, compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, sampleResponse(), resp)

	resp, hit, err = cache.GetOrCompute(context.Background(), req, compute)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, sampleResponse(), resp)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, time.Minute, backend.ttls[Key(req)])
}

func TestGetOrComputeDoesNotCacheErrors(t *testing.T) {
	t.Parallel()

	backend := newMapBackend()
	cache := New(backend, 0, nil)
	boom := errors.New("boom")

	_, _, err := cache.GetOrCompute(context.Background(), ranking.Request{Query: "q"},
		func(context.Context) (ranking.Response, error) { return ranking.Response{}, boom })
	require.ErrorIs(t, err, boom)
	assert.Empty(t, backend.data)
}

func TestGetOrComputeFollowerSurvivesLeaderCancel(t *testing.T) {
	t.Parallel()

	backend := newMapBackend()
	cache := New(backend, time.Minute, nil)
	req := ranking.Request{Query: "shared"}

	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	compute := func(ctx context.Context) (ranking.Response, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		select {
		case <-release:
			return sampleResponse(), nil
		case <-ctx.Done():
			return ranking.Response{}, ctx.Err()
		}
	}

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, _, err := cache.GetOrCompute(leaderCtx, req, compute)
		leaderErr <- err
	}()
	<-started

	type result struct {
		resp ranking.Response
		err  error
	}
	follower := make(chan result, 1)
	go func() {
		resp, _, err := cache.GetOrCompute(context.Background(), req, compute)
		follower <- result{resp: resp, err: err}
	}()
	require.Eventually(t, func() bool { return backend.gets.Load() == 2 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	cancelLeader()
	require.ErrorIs(t, <-leaderErr, context.Canceled)

	close(release)
	res := <-follower
	require.NoError(t, res.err)
	assert.Equal(t, sampleResponse(), res.resp)
	assert.Equal(t, int32(1), calls.Load())

	cached, ok := cache.Get(context.Background(), req)
	require.True(t, ok)
	assert.Equal(t, sampleResponse(), cached)
}

func TestGetOrComputeBoundsSharedComputation(t *testing.T) {
	t.Parallel()

	cache := New(newMapBackend(), time.Minute, nil, WithComputeTimeout(20*time.Millisecond))
	_, _, err := cache.GetOrCompute(context.Background(), ranking.Request{Query: "slow"},
		func(ctx context.Context) (ranking.Response, error) {
			<-ctx.Done()
			return ranking.Response{}, ctx.Err()
		})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBackendErrorsAreMisses(t *testing.T) {
	t.Parallel()

	backend := newMapBackend()
	backend.getErr = errors.New("connection refused")
	cache := New(backend, time.Second, nil)

	resp, hit, err := cache.GetOrCompute(context.Background(), ranking.Request{Query: "q"},
		func(context.Context) (ranking.Response, error) { return sampleResponse(), nil })
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, sampleResponse(), resp)
}

func TestCorruptEntryIsMiss(t *testing.T) {
	t.Parallel()

	backend := newMapBackend()
	req := ranking.Request{Query: "q"}
	backend.data[Key(req)] = []byte("{not json")
	cache := New(backend, time.Second, nil)

	_, ok := cache.Get(context.Background(), req)
	assert.False(t, ok)
}

func TestNewRedisRequiresAddr(t *testing.T) {
	t.Parallel()

	_, err := NewRedis(context.Background(), RedisConfig{})
	require.Error(t, err)
}

func TestNewRedisFailsWhenUnreachable(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := NewRedis(ctx, RedisConfig{Addr: "127.0.0.1:1"})
	require.Error(t, err)
}
