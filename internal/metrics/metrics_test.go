package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestObserveCrawlCountsPagesAndBytes(t *testing.T) {
	Init()
	Init()

	before := testutil.ToFloat64(crawlerPagesTotal.WithLabelValues("crawl-test.example", "ok"))
	ObserveCrawl("https://crawl-test.example/a", "ok", 512)
	after := testutil.ToFloat64(crawlerPagesTotal.WithLabelValues("crawl-test.example", "ok"))
	if after-before != 1 {
		t.Errorf("expected pages counter to increase by 1, got %f", after-before)
	}
	if got := testutil.ToFloat64(crawlerBytesTotal.WithLabelValues("crawl-test.example")); got < 512 {
		t.Errorf("expected at least 512 bytes recorded, got %f", got)
	}
}

func TestSearchAndIndexMetrics(t *testing.T) {
	Init()

	SetIndexSize(3, 7)
	if got := testutil.ToFloat64(indexDocuments); got != 3 {
		t.Errorf("expected 3 indexed documents, got %f", got)
	}
	if got := testutil.ToFloat64(indexTerms); got != 7 {
		t.Errorf("expected 7 indexed terms, got %f", got)
	}

	before := testutil.ToFloat64(searchRequestsTotal.WithLabelValues("hybrid-test", "ok"))
	ObserveSearch("hybrid-test", "ok", 5*time.Millisecond)
	if got := testutil.ToFloat64(searchRequestsTotal.WithLabelValues("hybrid-test", "ok")); got-before != 1 {
		t.Errorf("expected search counter to increase by 1, got %f", got-before)
	}

	ObserveDedup("kept")
	ObserveCache("miss")
	ObservePolitenessWait("example.com", time.Second)
	ObserveRobotsFetch("fallback")
	ObserveEmbedding("ok")
	if val := testutil.CollectAndCount(crawlerPolitenessWait); val <= 0 {
		t.Errorf("expected politeness histogram to be observed, got %d", val)
	}
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://google.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
