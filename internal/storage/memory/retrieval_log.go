package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/JakeFAU/hybrid-search/internal/crawler"
)

// RetrievalLog records retrieval rows in-memory, grouped by crawl run.
type RetrievalLog struct {
	mu   sync.RWMutex
	runs map[string][]crawler.RetrievalRecord
	ids  map[string]struct{}
}

// NewRetrievalLog constructs a RetrievalLog.
func NewRetrievalLog() *RetrievalLog {
	return &RetrievalLog{
		runs: make(map[string][]crawler.RetrievalRecord),
		ids:  make(map[string]struct{}),
	}
}

// StoreRetrieval appends a row. Duplicate record IDs are rejected.
func (l *RetrievalLog) StoreRetrieval(_ context.Context, record crawler.RetrievalRecord) error {
	if record.ID == "" {
		return errors.New("record id is required")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.ids[record.ID]; exists {
		return errors.New("record already exists")
	}
	l.ids[record.ID] = struct{}{}
	l.runs[record.RunID] = append(l.runs[record.RunID], record)
	return nil
}

// Records returns a copy of the rows stored for runID in insertion order.
func (l *RetrievalLog) Records(runID string) []crawler.RetrievalRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]crawler.RetrievalRecord(nil), l.runs[runID]...)
}

// Len reports how many rows are stored across all runs.
func (l *RetrievalLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.ids)
}
