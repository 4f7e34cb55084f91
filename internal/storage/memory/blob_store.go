// Package memory keeps raw pages and retrieval rows in-memory for development
// and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/JakeFAU/hybrid-search/internal/document"
	"github.com/JakeFAU/hybrid-search/internal/storage"
)

type page struct {
	body []byte
	meta document.RawMetadata
}

// BlobStore stores pages in-memory and returns pseudo URIs.
type BlobStore struct {
	mu    sync.RWMutex
	pages map[string]page
}

// NewBlobStore creates a new in-memory store.
func NewBlobStore() *BlobStore {
	return &BlobStore{pages: make(map[string]page)}
}

// PutRaw persists a copy of the body and returns a memory:// URI.
func (s *BlobStore) PutRaw(_ context.Context, key string, body []byte, meta document.RawMetadata) (string, error) {
	if err := storage.ValidateKey(key); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[key] = page{body: append([]byte(nil), body...), meta: meta}
	return fmt.Sprintf("memory://%s", storage.BodyName(key)), nil
}

// GetRaw returns a copy of the stored body and its metadata.
func (s *BlobStore) GetRaw(_ context.Context, key string) ([]byte, document.RawMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pages[key]
	if !ok {
		return nil, document.RawMetadata{}, fmt.Errorf("%w: %s", storage.ErrNotFound, key)
	}
	return append([]byte(nil), p.body...), p.meta, nil
}

// Keys lists the stored keys in sorted order.
func (s *BlobStore) Keys(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.pages))
	for key := range s.pages {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

// Len reports how many pages are stored.
func (s *BlobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pages)
}
