package ranking

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/JakeFAU/hybrid-search/internal/embedding"
	"github.com/JakeFAU/hybrid-search/internal/index"
)

const (
	// DefaultK1 is the BM25 term frequency saturation.
	DefaultK1    = 1.5
	// DefaultB is the BM25 length normalization.
	DefaultB     = 0.75
	// DefaultAlpha weights the lexical score in the hybrid blend.
	DefaultAlpha = 0.7
)

// ErrMissingEmbedding is returned when a scored document has no stored vector.
var ErrMissingEmbedding = errors.New("missing embedding")

// MissingEmbeddingError names the document without a vector.
type MissingEmbeddingError struct {
	DocID string
}

func (e *MissingEmbeddingError) Error() string {
	return fmt.Sprintf("missing embedding for document %s", e.DocID)
}

func (e *MissingEmbeddingError) Unwrap() error {
	return ErrMissingEmbedding
}

// Scorer assigns a relevance score to one document for a query.
type Scorer interface {
	Score(ctx context.Context, q *Query, docID string) (float64, error)
}

// BM25 is the Okapi BM25 lexical scorer over an index.
type BM25 struct {
	idx *index.Index
	k1  float64
	b   float64
}

// NewBM25 builds a BM25 scorer. Non-positive k1 and negative b fall back to the defaults.
func NewBM25(idx *index.Index, k1, b float64) *BM25 {
	if k1 <= 0 {
		k1 = DefaultK1
	}
	if b < 0 {
		b = DefaultB
	}
	return &BM25{idx: idx, k1: k1, b: b}
}

// IDF returns ln(1 + (N - df + 0.5) / (df + 0.5)).
func (s *BM25) IDF(term string) float64 {
	n := float64(s.idx.N)
	df := float64(s.idx.DocFrequency(term))
	return math.Log(1 + (n-df+0.5)/(df+0.5))
}

// Score sums the BM25 contribution of every query token, repeats included.
func (s *BM25) Score(_ context.Context, q *Query, docID string) (float64, error) {
	avgdl := s.idx.AvgDocLength()
	if avgdl == 0 {
		avgdl = 1
	}
	dl := float64(s.idx.DocLength(docID))
	norm := s.k1 * (1 - s.b + s.b*dl/avgdl)

	var score float64
	for _, term := range q.Tokens {
		tf := float64(s.idx.TermFrequency(term, docID))
		denom := tf + norm
		if denom == 0 {
			continue
		}
		score += s.IDF(term) * tf * (s.k1 + 1) / denom
	}
	return score, nil
}

// Semantic scores by cosine similarity between the query and document vectors.
type Semantic struct {
	embedder embedding.Embedder
	store    *embedding.Store
}

// NewSemantic builds a semantic scorer over a loaded embedding store.
func NewSemantic(e embedding.Embedder, store *embedding.Store) *Semantic {
	return &Semantic{embedder: e, store: store}
}

// Score returns the cosine similarity. A document without a vector is an error.
func (s *Semantic) Score(ctx context.Context, q *Query, docID string) (float64, error) {
	docVec, ok := s.store.Get(docID)
	if !ok {
		return 0, &MissingEmbeddingError{DocID: docID}
	}
	qVec, err := q.Embedding(ctx, s.embedder)
	if err != nil {
		return 0, fmt.Errorf("embed query: %w", err)
	}
	return embedding.Cosine(qVec, docVec)
}

// Hybrid blends a lexical and a semantic score: alpha*lexical + (1-alpha)*semantic.
type Hybrid struct {
	lexical  Scorer
	semantic Scorer
	alpha    float64
}

// NewHybrid builds the blend. alpha outside [0,1] falls back to DefaultAlpha.
func NewHybrid(lexical, semantic Scorer, alpha float64) *Hybrid {
	if alpha < 0 || alpha > 1 {
		alpha = DefaultAlpha
	}
	return &Hybrid{lexical: lexical, semantic: semantic, alpha: alpha}
}

// Score calls both scorers and returns the weighted sum.
func (h *Hybrid) Score(ctx context.Context, q *Query, docID string) (float64, error) {
	lex, err := h.lexical.Score(ctx, q, docID)
	if err != nil {
		return 0, err
	}
	sem, err := h.semantic.Score(ctx, q, docID)
	if err != nil {
		return 0, err
	}
	return h.alpha*lex + (1-h.alpha)*sem, nil
}
