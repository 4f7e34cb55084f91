// Package document defines the records that flow between pipeline stages.
package document

import (
	"strings"
	"time"

	"github.com/JakeFAU/hybrid-search/internal/hash/sha256"
)

// Metadata carries page-level attributes extracted by the parser.
type Metadata struct {
	Language      string    `json:"language"`
	CanonicalURL  string    `json:"canonical_url"`
	OutboundLinks []string  `json:"outbound_links"`
	FetchTime     time.Time `json:"fetch_time"`
	ContentHash   string    `json:"content_hash"`
}

// ParsedDocument is the normalized form of one fetched page.
// Values are treated as immutable once produced by the parser.
type ParsedDocument struct {
	URL      string   `json:"url"`
	Title    string   `json:"title"`
	Headings []string `json:"headings"`
	Body     string   `json:"body"`
	Tokens   []string `json:"tokens"`
	Metadata Metadata `json:"metadata"`
}

// DocID returns the stable document identifier: the hex SHA-256 of the
// canonical URL, or of the fetch URL when no canonical link was declared.
func (d ParsedDocument) DocID() string {
	return IDForURL(d.CanonicalURL())
}

// CanonicalURL returns the declared canonical URL, falling back to URL.
func (d ParsedDocument) CanonicalURL() string {
	if c := strings.TrimSpace(d.Metadata.CanonicalURL); c != "" {
		return c
	}
	return d.URL
}

// EmbeddingText is the text handed to the embedding model: title, headings, then body.
func (d ParsedDocument) EmbeddingText() string {
	parts := make([]string, 0, len(d.Headings)+2)
	parts = append(parts, d.Title)
	parts = append(parts, d.Headings...)
	parts = append(parts, d.Body)
	return strings.Join(parts, " ")
}

// TokenSet returns the distinct tokens of the document.
func (d ParsedDocument) TokenSet() map[string]struct{} {
	set := make(map[string]struct{}, len(d.Tokens))
	for _, tok := range d.Tokens {
		set[tok] = struct{}{}
	}
	return set
}

// IDForURL hashes a URL into a document or storage key.
func IDForURL(rawURL string) string {
	return sha256.String(rawURL)
}
