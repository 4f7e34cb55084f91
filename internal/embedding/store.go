package embedding

import (
	"context"
	"fmt"
	"sort"

	"github.com/JakeFAU/hybrid-search/internal/document"
	"github.com/JakeFAU/hybrid-search/internal/snapshot"
)

// Store maps document ids to vectors of one fixed dimension. It is filled
// during the build and read-only once loaded for serving.
type Store struct {
	Dim     int                  `json:"dim"`
	Vectors map[string][]float32 `json:"vectors"`
}

// NewStore returns an empty store for dim-sized vectors.
func NewStore(dim int) *Store {
	return &Store{Dim: dim, Vectors: make(map[string][]float32)}
}

// Put stores vec under docID. The first vector fixes the dimension when Dim is 0.
func (s *Store) Put(docID string, vec []float32) error {
	if s.Dim == 0 {
		s.Dim = len(vec)
	}
	if len(vec) != s.Dim {
		return fmt.Errorf("%w: %s has %d, store has %d", ErrDimensionMismatch, docID, len(vec), s.Dim)
	}
	s.Vectors[docID] = vec
	return nil
}

// Get returns the vector for docID.
func (s *Store) Get(docID string) ([]float32, bool) {
	vec, ok := s.Vectors[docID]
	return vec, ok
}

// Len reports how many vectors are stored.
func (s *Store) Len() int {
	return len(s.Vectors)
}

// IDs returns the stored document ids in sorted order.
func (s *Store) IDs() []string {
	ids := make([]string, 0, len(s.Vectors))
	for id := range s.Vectors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Save writes the store as one atomic snapshot.
func (s *Store) Save(path string) error {
	if err := snapshot.WriteFile(path, snapshot.KindEmbeddings, s); err != nil {
		return fmt.Errorf("save embeddings: %w", err)
	}
	return nil
}

// LoadStore reads a snapshot written by Save and checks every dimension.
func LoadStore(path string) (*Store, error) {
	s := NewStore(0)
	if err := snapshot.ReadFile(path, snapshot.KindEmbeddings, s); err != nil {
		return nil, fmt.Errorf("load embeddings: %w", err)
	}
	if s.Vectors == nil {
		s.Vectors = make(map[string][]float32)
	}
	for id, vec := range s.Vectors {
		if len(vec) != s.Dim {
			return nil, fmt.Errorf("load embeddings: %w: %s has %d, store has %d",
				snapshot.ErrCorrupt, id, len(vec), s.Dim)
		}
	}
	return s, nil
}

// EmbedDocuments embeds the embedding text of docs in batches of batchSize and
// returns a store keyed by DocID.
func EmbedDocuments(ctx context.Context, e Embedder, docs []document.ParsedDocument, batchSize int) (*Store, error) {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	store := NewStore(0)
	for start := 0; start < len(docs); start += batchSize {
		end := min(start+batchSize, len(docs))
		if err := EmbedBatch(ctx, e, docs[start:end], store); err != nil {
			return nil, err
		}
	}
	return store, nil
}

// EmbedBatch embeds one batch of docs into store. Callers running batches
// concurrently must serialize access to store.
func EmbedBatch(ctx context.Context, e Embedder, docs []document.ParsedDocument, store *Store) error {
	vecs, err := Vectors(ctx, e, docs)
	if err != nil {
		return err
	}
	for i, doc := range docs {
		if err := store.Put(doc.DocID(), vecs[i]); err != nil {
			return err
		}
	}
	return nil
}

// Vectors embeds the embedding text of docs, one vector per document.
func Vectors(ctx context.Context, e Embedder, docs []document.ParsedDocument) ([][]float32, error) {
	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.EmbeddingText()
	}
	vecs, err := e.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed %d documents: %w", len(docs), err)
	}
	if len(vecs) != len(docs) {
		return nil, fmt.Errorf("embed %d documents: got %d vectors", len(docs), len(vecs))
	}
	return vecs, nil
}
