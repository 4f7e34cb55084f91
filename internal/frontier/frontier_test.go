package frontier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsInvalidLimit(t *testing.T) {
	t.Parallel()

	_, err := New([]string{"https://example.com"}, 0)
	require.True(t, errors.Is(err, ErrInvalidLimit))
}

func TestNextIsFIFOAndDeduplicatesSeeds(t *testing.T) {
	t.Parallel()

	f, err := New([]string{"https://a.test/", " https://b.test/ ", "https://a.test/", ""}, 10)
	require.NoError(t, err)
	require.Equal(t, 2, f.Stats().Pending)

	ctx := context.Background()
	first, ok := f.Next(ctx)
	require.True(t, ok)
	assert.Equal(t, "https://a.test/", first)
	second, ok := f.Next(ctx)
	require.True(t, ok)
	assert.Equal(t, "https://b.test/", second)
	assert.Equal(t, Stats{InFlight: 2}, f.Stats())
}

func TestVisitedURLIsNeverReadded(t *testing.T) {
	t.Parallel()

	f, err := New([]string{"https://a.test/"}, 10)
	require.NoError(t, err)
	ctx := context.Background()

	u, ok := f.Next(ctx)
	require.True(t, ok)
	require.True(t, f.Complete(u, []string{"https://a.test/", "https://a.test/x", "https://a.test/x"}))

	assert.True(t, f.IsVisited("https://a.test/"))
	assert.False(t, f.IsPending("https://a.test/"))
	assert.True(t, f.IsPending("https://a.test/x"))

	x, ok := f.Next(ctx)
	require.True(t, ok)
	require.True(t, f.Complete(x, []string{"https://a.test/", "https://a.test/x"}))
	assert.Equal(t, Stats{Visited: 2}, f.Stats())

	_, ok = f.Next(ctx)
	assert.False(t, ok, "frontier should be exhausted")
}

func TestFailedURLIsDroppedAndNotRetried(t *testing.T) {
	t.Parallel()

	f, err := New([]string{"https://a.test/", "https://b.test/"}, 10)
	require.NoError(t, err)
	ctx := context.Background()

	a, _ := f.Next(ctx)
	require.True(t, f.Fail(a))
	assert.False(t, f.Fail(a), "second release should be rejected")

	b, _ := f.Next(ctx)
	require.True(t, f.Complete(b, []string{a}))
	assert.False(t, f.IsPending(a))
	assert.Equal(t, Stats{Visited: 1, Dropped: 1}, f.Stats())
}

func TestCompleteRejectsUnclaimedURL(t *testing.T) {
	t.Parallel()

	f, err := New(nil, 3)
	require.NoError(t, err)
	assert.False(t, f.Complete("https://never.test/", nil))
	assert.Empty(t, f.Visited())
}

func TestNextStopsAtLimit(t *testing.T) {
	t.Parallel()

	f, err := New([]string{"https://a.test/1", "https://a.test/2", "https://a.test/3"}, 2)
	require.NoError(t, err)
	ctx := context.Background()

	one, ok := f.Next(ctx)
	require.True(t, ok)
	two, ok := f.Next(ctx)
	require.True(t, ok)

	done := make(chan bool, 1)
	go func() {
		_, ok := f.Next(ctx)
		done <- ok
	}()

	f.Complete(one, nil)
	f.Complete(two, nil)

	select {
	case ok := <-done:
		assert.False(t, ok, "no URL should be claimed past the limit")
	case <-time.After(2 * time.Second):
		t.Fatal("Next did not return after limit was reached")
	}
	assert.Len(t, f.Visited(), 2)
}

func TestFailureFreesCapacityBelowLimit(t *testing.T) {
	t.Parallel()

	f, err := New([]string{"https://a.test/1", "https://a.test/2"}, 1)
	require.NoError(t, err)
	ctx := context.Background()

	first, ok := f.Next(ctx)
	require.True(t, ok)

	next := make(chan string, 1)
	go func() {
		u, _ := f.Next(ctx)
		next <- u
	}()

	f.Fail(first)
	select {
	case u := <-next:
		assert.Equal(t, "https://a.test/2", u)
	case <-time.After(2 * time.Second):
		t.Fatal("waiting worker was not woken by the failure")
	}
}

func TestNextWaitsForInFlightDiscoveries(t *testing.T) {
	t.Parallel()

	f, err := New([]string{"https://a.test/"}, 10)
	require.NoError(t, err)
	ctx := context.Background()

	root, _ := f.Next(ctx)
	got := make(chan string, 1)
	go func() {
		u, _ := f.Next(ctx)
		got <- u
	}()

	time.Sleep(20 * time.Millisecond)
	f.Complete(root, []string{"https://a.test/child"})

	select {
	case u := <-got:
		assert.Equal(t, "https://a.test/child", u)
	case <-time.After(2 * time.Second):
		t.Fatal("waiting worker never received the discovered link")
	}
}

func TestNextReturnsOnStopAndCancel(t *testing.T) {
	t.Parallel()

	f, err := New([]string{"https://a.test/"}, 10)
	require.NoError(t, err)
	_, _ = f.Next(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	res := make(chan bool, 1)
	go func() {
		_, ok := f.Next(ctx)
		res <- ok
	}()
	cancel()
	select {
	case ok := <-res:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("Next ignored context cancellation")
	}

	f.Stop()
	_, ok := f.Next(context.Background())
	assert.False(t, ok)
}

func TestConcurrentWorkersRespectLimitAndNeverDoubleClaim(t *testing.T) {
	t.Parallel()

	const limit = 25
	f, err := New([]string{"https://a.test/0"}, limit)
	require.NoError(t, err)
	ctx := context.Background()

	var (
		mu      sync.Mutex
		claimed = make(map[string]int)
		wg      sync.WaitGroup
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				u, ok := f.Next(ctx)
				if !ok {
					return
				}
				mu.Lock()
				claimed[u]++
				n := len(claimed)
				mu.Unlock()
				links := []string{
					fmt.Sprintf("https://a.test/%d", n*2),
					fmt.Sprintf("https://a.test/%d", n*2+1),
					"https://a.test/0",
				}
				if n%5 == 0 {
					f.Fail(u)
					continue
				}
				f.Complete(u, links)
			}
		}()
	}
	wg.Wait()

	visited := f.Visited()
	assert.LessOrEqual(t, len(visited), limit)
	assert.Equal(t, limit, len(visited))
	for u, n := range claimed {
		assert.Equal(t, 1, n, "url %s claimed %d times", u, n)
	}
	for _, u := range visited {
		assert.False(t, f.IsPending(u))
	}
}
