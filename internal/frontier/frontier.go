// Package frontier owns the crawl frontier: the pending queue, the visited set
// and the URLs currently claimed by workers.
package frontier

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
)

// ErrInvalidLimit is returned when the visit limit is not positive.
var ErrInvalidLimit = errors.New("frontier limit must be > 0")

// Stats is a point-in-time view of the frontier sizes.
type Stats struct {
	Pending  int
	Visited  int
	InFlight int
	Dropped  int
}

// Frontier is safe for concurrent use. A URL is in at most one of pending,
// in-flight, visited or dropped, and visited URLs never return to pending.
type Frontier struct {
	mu    sync.Mutex
	cond  *sync.Cond
	limit int

	queue    []string
	pending  map[string]struct{}
	inFlight map[string]struct{}
	visited  map[string]struct{}
	dropped  map[string]struct{}
	stopped  bool
}

// New seeds a frontier that will visit at most limit URLs.
func New(seeds []string, limit int) (*Frontier, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	f := &Frontier{
		limit:    limit,
		pending:  make(map[string]struct{}),
		inFlight: make(map[string]struct{}),
		visited:  make(map[string]struct{}),
		dropped:  make(map[string]struct{}),
	}
	f.cond = sync.NewCond(&f.mu)
	for _, seed := range seeds {
		f.enqueueLocked(seed)
	}
	return f, nil
}

// Next claims the next pending URL. It blocks while the queue is empty but
// other claims are still in flight, since those may discover new links.
// It returns false once the crawl is finished: nothing pending and nothing in
// flight, the visit limit is reached, Stop was called, or ctx is done.
// A claim is only granted while visited+in-flight is below the limit.
func (f *Frontier) Next(ctx context.Context) (string, bool) {
	stop := context.AfterFunc(ctx, func() {
		f.mu.Lock()
		f.cond.Broadcast()
		f.mu.Unlock()
	})
	defer stop()

	f.mu.Lock()
	defer f.mu.Unlock()
	for {
		if f.stopped || ctx.Err() != nil {
			return "", false
		}
		if len(f.visited)+len(f.inFlight) >= f.limit {
			if len(f.inFlight) == 0 {
				f.cond.Broadcast()
				return "", false
			}
			f.cond.Wait()
			continue
		}
		if len(f.queue) > 0 {
			next := f.queue[0]
			f.queue[0] = ""
			f.queue = f.queue[1:]
			delete(f.pending, next)
			f.inFlight[next] = struct{}{}
			return next, true
		}
		if len(f.inFlight) == 0 {
			f.cond.Broadcast()
			return "", false
		}
		f.cond.Wait()
	}
}

// Complete marks a claimed URL visited and enqueues the newly discovered links
// that are not already known. It returns false if url was not claimed.
func (f *Frontier) Complete(url string, links []string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.inFlight[url]; !ok {
		return false
	}
	delete(f.inFlight, url)
	f.visited[url] = struct{}{}
	for _, link := range links {
		f.enqueueLocked(link)
	}
	f.cond.Broadcast()
	return true
}

// Fail releases a claimed URL without visiting it. Failed URLs are not retried.
func (f *Frontier) Fail(url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.inFlight[url]; !ok {
		return false
	}
	delete(f.inFlight, url)
	f.dropped[url] = struct{}{}
	f.cond.Broadcast()
	return true
}

// Stop makes every current and future Next call return false.
func (f *Frontier) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
	f.cond.Broadcast()
}

// Visited returns the visited URLs in sorted order.
func (f *Frontier) Visited() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.visited))
	for u := range f.visited {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// IsVisited reports whether url has been visited.
func (f *Frontier) IsVisited(url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.visited[url]
	return ok
}

// IsPending reports whether url is waiting in the queue.
func (f *Frontier) IsPending(url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.pending[url]
	return ok
}

// Stats returns the current sizes.
func (f *Frontier) Stats() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Stats{
		Pending:  len(f.pending),
		Visited:  len(f.visited),
		InFlight: len(f.inFlight),
		Dropped:  len(f.dropped),
	}
}

func (f *Frontier) enqueueLocked(url string) {
	url = strings.TrimSpace(url)
	if url == "" {
		return
	}
	if _, ok := f.pending[url]; ok {
		return
	}
	if _, ok := f.visited[url]; ok {
		return
	}
	if _, ok := f.inFlight[url]; ok {
		return
	}
	if _, ok := f.dropped[url]; ok {
		return
	}
	f.pending[url] = struct{}{}
	f.queue = append(f.queue, url)
}
