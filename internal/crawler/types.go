package crawler

import (
	"context"
	"errors"
	"time"

	"github.com/JakeFAU/hybrid-search/internal/document"
)

var (
	// ErrDisallowed marks URLs blocked by robots rules.
	ErrDisallowed       = errors.New("disallowed by robots rules")
	// ErrUnexpectedStatus marks responses other than 200.
	ErrUnexpectedStatus = errors.New("unexpected status code")
	// ErrNotHTML marks responses without an HTML content type.
	ErrNotHTML          = errors.New("content type is not html")
)

// FetchResponse is the outcome of one HTTP GET.
type FetchResponse struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
	Duration    time.Duration
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (FetchResponse, error)
}

// Politeness gates and spaces requests per domain.
type Politeness interface {
	Allowed(ctx context.Context, url string) bool
	WaitIfNeeded(ctx context.Context, url string) error
}

// RawStore persists a fetched page and its metadata under key and returns a URI.
type RawStore interface {
	PutRaw(ctx context.Context, key string, body []byte, meta document.RawMetadata) (string, error)
}

// RetrievalLog records one row per persisted page.
type RetrievalLog interface {
	StoreRetrieval(ctx context.Context, record RetrievalRecord) error
}

// Publisher pushes page events to Pub/Sub, Kafka or similar.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes content digests.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run and record IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// RetrievalRecord is the row written to the retrieval log.
type RetrievalRecord struct {
	ID          string
	RunID       string
	URL         string
	StorageKey  string
	ContentHash string
	BlobURI     string
	StatusCode  int
	ContentType string
	Bytes       int
	RetrievedAt time.Time
}

// PageEvent is published after a page has been persisted.
type PageEvent struct {
	RunID       string    `json:"run_id"`
	URL         string    `json:"url"`
	StorageKey  string    `json:"storage_key"`
	BlobURI     string    `json:"blob_uri"`
	ContentHash string    `json:"content_hash"`
	FetchTime   time.Time `json:"fetch_time"`
	Links       int       `json:"links"`
}

// EventKey returns the partition key for the event.
func (e PageEvent) EventKey() string {
	return e.StorageKey
}
