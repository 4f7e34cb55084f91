package parser

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/hybrid-search/internal/document"
)

const samplePage = `<!doctype html>
<html lang="fr">
<head>
  <title> Cats   and Dogs </title>
  <link rel="canonical" href="/animals">
</head>
<body>
  <h1>Pets</h1>
  <div><h2>Cats</h2><p>The quick brown cats are jumping.</p></div>
  <h3>Dogs</h3>
  <p>Over 3 sleeping dogs!</p>
  <p>   </p>
  <h4>Ignored</h4>
  <a href="/cats#top">cats</a>
  <a href="https://other.test/x">x</a>
  <a href="mailto:me@example.com">mail</a>
</body>
</html>`

func TestTokenize(t *testing.T) {
	t.Parallel()

	got := Tokenize("The quick brown cats are jumping over 3 sleeping dogs!")
	assert.Equal(t, []string{"quick", "brown", "cat", "jump", "sleep", "dog"}, got)
	assert.Empty(t, Tokenize("the and of 42 ..."))
	assert.Equal(t, Tokenize("Searching"), Tokenize("search"))
}

func TestParseExtractsFields(t *testing.T) {
	t.Parallel()

	meta := document.RawMetadata{
		URL:         "https://example.com/pets/index.html",
		FetchTime:   time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC),
		ContentHash: strings.Repeat("a", 64),
	}
	doc, err := Parse(meta, []byte(samplePage))
	require.NoError(t, err)

	assert.Equal(t, meta.URL, doc.URL)
	assert.Equal(t, "Cats and Dogs", doc.Title)
	assert.Equal(t, []string{"Pets", "Cats", "Dogs"}, doc.Headings)
	assert.Equal(t, "The quick brown cats are jumping. Over 3 sleeping dogs!", doc.Body)
	assert.Equal(t, []string{"quick", "brown", "cat", "jump", "sleep", "dog"}, doc.Tokens)
	assert.Equal(t, "fr", doc.Metadata.Language)
	assert.Equal(t, "https://example.com/animals", doc.Metadata.CanonicalURL)
	assert.Equal(t, []string{"https://example.com/cats", "https://other.test/x"}, doc.Metadata.OutboundLinks)
	assert.Equal(t, meta.FetchTime, doc.Metadata.FetchTime)
	assert.Equal(t, meta.ContentHash, doc.Metadata.ContentHash)
	assert.Equal(t, document.IDForURL("https://example.com/animals"), doc.DocID())
}

func TestParseDefaults(t *testing.T) {
	t.Parallel()

	meta := document.RawMetadata{URL: "https://example.com/plain"}
	doc, err := Parse(meta, []byte("<p>hello world</p>"))
	require.NoError(t, err)

	assert.Empty(t, doc.Title)
	assert.Empty(t, doc.Headings)
	assert.Equal(t, "en", doc.Metadata.Language)
	assert.Equal(t, meta.URL, doc.Metadata.CanonicalURL)
	assert.Equal(t, document.IDForURL(meta.URL), doc.DocID())
}

func TestParseRejectsBadURL(t *testing.T) {
	t.Parallel()

	_, err := Parse(document.RawMetadata{URL: "://nope"}, []byte("<p>x</p>"))
	require.Error(t, err)
}
