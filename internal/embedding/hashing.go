package embedding

import (
	"context"

	"github.com/cespare/xxhash/v2"

	"github.com/JakeFAU/hybrid-search/internal/parser"
)

// Hashing is a deterministic feature-hashing embedder. Each token adds ±1 to
// one bucket chosen by its hash and the result is L2-normalized. It needs no
// network and gives identical vectors for identical token bags.
type Hashing struct {
	dim int
}

// NewHashing returns a Hashing embedder producing dim-sized vectors.
func NewHashing(dim int) *Hashing {
	if dim <= 0 {
		dim = 384
	}
	return &Hashing{dim: dim}
}

// Dimensions reports the vector size.
func (h *Hashing) Dimensions() int {
	return h.dim
}

// EmbedDocuments embeds each text independently.
func (h *Hashing) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.embed(text)
	}
	return out, nil
}

// EmbedQuery embeds a single query text.
func (h *Hashing) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return h.embed(text), nil
}

func (h *Hashing) embed(text string) []float32 {
	vec := make([]float32, h.dim)
	for _, tok := range parser.Tokenize(text) {
		sum := xxhash.Sum64String(tok)
		bucket := sum % uint64(h.dim)
		if sum>>63 == 1 {
			vec[bucket]--
		} else {
			vec[bucket]++
		}
	}
	normalize(vec)
	return vec
}
