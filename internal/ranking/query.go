// Package ranking scores indexed documents against a query with BM25, embedding
// cosine similarity, or a weighted blend of the two.
package ranking

import (
	"context"
	"sync"

	"github.com/JakeFAU/hybrid-search/internal/embedding"
	"github.com/JakeFAU/hybrid-search/internal/parser"
)

// Query is one search query. Tokens are produced by the document tokenizer so
// they match index terms. The query embedding is computed at most once.
type Query struct {
	Text   string
	Tokens []string

	once sync.Once
	vec  []float32
	err  error
}

// NewQuery tokenizes text.
func NewQuery(text string) *Query {
	return &Query{Text: text, Tokens: parser.Tokenize(text)}
}

// Embedding returns the query vector from e, calling it only on first use.
func (q *Query) Embedding(ctx context.Context, e embedding.Embedder) ([]float32, error) {
	q.once.Do(func() {
		q.vec, q.err = e.EmbedQuery(ctx, q.Text)
	})
	return q.vec, q.err
}
