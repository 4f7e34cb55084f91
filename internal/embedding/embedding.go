// Package embedding maps text to fixed-size vectors and persists the vectors
// of indexed documents.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// ErrDimensionMismatch is returned when a vector does not match the store dimension.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Embedder is the embedding collaborator. It matches langchaingo's
// embeddings.Embedder so either side can stand in for the other.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Cosine returns the cosine similarity of a and b. Zero-norm vectors score 0.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), nil
}

func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := 1 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
}
