package document

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validHash = "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"

func TestDecodeRawMetadataAcceptsValidRecord(t *testing.T) {
	t.Parallel()

	fetched := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	in := RawMetadata{URL: "https://example.com/a", FetchTime: fetched, ContentHash: validHash, StatusCode: 200}
	payload, err := in.Encode()
	require.NoError(t, err)

	out, err := DecodeRawMetadata("k", payload)
	require.NoError(t, err)
	assert.Equal(t, in.URL, out.URL)
	assert.True(t, fetched.Equal(out.FetchTime))
	assert.Equal(t, validHash, out.ContentHash)
}

func TestDecodeRawMetadataRejectsMalformedInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		field string
	}{
		{name: "python dict literal", input: `{'url': 'https://example.com', 'fetch_time': 1.0}`},
		{name: "unknown field", input: `{"url":"https://example.com","fetch_time":"2024-01-01T00:00:00Z","content_hash":"` + validHash + `","cmd":"rm"}`},
		{name: "missing url", input: `{"fetch_time":"2024-01-01T00:00:00Z","content_hash":"` + validHash + `"}`, field: "url"},
		{name: "relative url", input: `{"url":"/a","fetch_time":"2024-01-01T00:00:00Z","content_hash":"` + validHash + `"}`, field: "url"},
		{name: "missing fetch time", input: `{"url":"https://example.com","content_hash":"` + validHash + `"}`, field: "fetch_time"},
		{name: "bad hash", input: `{"url":"https://example.com","fetch_time":"2024-01-01T00:00:00Z","content_hash":"xyz"}`, field: "content_hash"},
		{name: "wrong type", input: `{"url":42}`, field: "url"},
		{name: "trailing data", input: `{"url":"https://example.com","fetch_time":"2024-01-01T00:00:00Z","content_hash":"` + validHash + `"} {}`},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := DecodeRawMetadata("key-1", []byte(tt.input))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedMetadata), "expected ErrMalformedMetadata, got %v", err)
			var me *MetadataError
			require.True(t, errors.As(err, &me))
			assert.Equal(t, "key-1", me.Key)
			if tt.field != "" {
				assert.Equal(t, tt.field, me.Field)
			}
		})
	}
}

func TestParsedDocumentDocIDUsesCanonical(t *testing.T) {
	t.Parallel()

	plain := ParsedDocument{URL: "https://example.com/a?utm=1"}
	canon := ParsedDocument{URL: "https://example.com/a?utm=1", Metadata: Metadata{CanonicalURL: "https://example.com/a"}}

	assert.Equal(t, IDForURL("https://example.com/a?utm=1"), plain.DocID())
	assert.Equal(t, IDForURL("https://example.com/a"), canon.DocID())
}

func TestParsedDocumentEmbeddingText(t *testing.T) {
	t.Parallel()

	doc := ParsedDocument{Title: "Title", Headings: []string{"H1", "H2"}, Body: "body text"}
	assert.Equal(t, "Title H1 H2 body text", doc.EmbeddingText())
	assert.Len(t, ParsedDocument{Tokens: []string{"a", "b", "a"}}.TokenSet(), 2)
}
