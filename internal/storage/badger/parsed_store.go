// Package badgerstore persists parsed documents in BadgerDB between the parse
// and index stages of the build.
package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"go.uber.org/zap"

	"github.com/JakeFAU/hybrid-search/internal/document"
)

const docPrefix = "doc:"

// ErrNotFound is returned when no parsed document is stored for a URL.
var ErrNotFound = errors.New("parsed document not found")

// Config controls where the store lives.
type Config struct {
	Dir      string
	InMemory bool
}

// ParsedStore holds one JSON record per document keyed doc:<sha256(url)>.
type ParsedStore struct {
	db     *badger.DB
	logger *zap.Logger
}

// zapAdapter routes badger's logger through zap.
type zapAdapter struct {
	logger *zap.SugaredLogger
}

var _ badger.Logger = (*zapAdapter)(nil)

func (a *zapAdapter) Errorf(msg string, items ...any)   { a.logger.Errorf(msg, items...) }
func (a *zapAdapter) Warningf(msg string, items ...any) { a.logger.Warnf(msg, items...) }
func (a *zapAdapter) Infof(msg string, items ...any)    { a.logger.Debugf(msg, items...) }
func (a *zapAdapter) Debugf(msg string, items ...any)   { a.logger.Debugf(msg, items...) }

// Open opens (or creates) the store.
func Open(cfg Config, logger *zap.Logger) (*ParsedStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("parsed_store")

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Dir == "" {
			return nil, fmt.Errorf("parsed store directory is required")
		}
		if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
			return nil, fmt.Errorf("create parsed store directory: %w", err)
		}
		opts = badger.DefaultOptions(cfg.Dir)
	}
	opts.Logger = &zapAdapter{logger: logger.Sugar()}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &ParsedStore{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (s *ParsedStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close badger: %w", err)
	}
	return nil
}

// Key returns the storage key for a document URL.
func Key(rawURL string) []byte {
	return []byte(docPrefix + document.IDForURL(rawURL))
}

// Put stores doc, replacing any previous record for its URL.
func (s *ParsedStore) Put(_ context.Context, doc document.ParsedDocument) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(Key(doc.URL), payload)
	})
	if err != nil {
		return fmt.Errorf("put document %s: %w", doc.URL, err)
	}
	return nil
}

// PutBatch stores docs through a single write batch.
func (s *ParsedStore) PutBatch(_ context.Context, docs []document.ParsedDocument) error {
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, doc := range docs {
		payload, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("marshal document %s: %w", doc.URL, err)
		}
		if err := wb.Set(Key(doc.URL), payload); err != nil {
			return fmt.Errorf("batch set %s: %w", doc.URL, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("flush batch: %w", err)
	}
	return nil
}

// Get returns the document stored for rawURL.
func (s *ParsedStore) Get(_ context.Context, rawURL string) (document.ParsedDocument, error) {
	var doc document.ParsedDocument
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(Key(rawURL))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &doc)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return document.ParsedDocument{}, fmt.Errorf("%w: %s", ErrNotFound, rawURL)
	}
	if err != nil {
		return document.ParsedDocument{}, fmt.Errorf("get document %s: %w", rawURL, err)
	}
	return doc, nil
}

// All returns every stored document in key order.
func (s *ParsedStore) All(ctx context.Context) ([]document.ParsedDocument, error) {
	var docs []document.ParsedDocument
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(docPrefix)
		iter := txn.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := iter.Item()
			var doc document.ParsedDocument
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &doc)
			})
			if err != nil {
				return fmt.Errorf("decode %s: %w", item.Key(), err)
			}
			docs = append(docs, doc)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}

// Count reports how many documents are stored.
func (s *ParsedStore) Count() (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(docPrefix)
		opts.PrefetchValues = false
		iter := txn.NewIterator(opts)
		defer iter.Close()
		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return count, nil
}

// DropAll removes every stored document.
func (s *ParsedStore) DropAll() error {
	if err := s.db.DropPrefix([]byte(docPrefix)); err != nil {
		return fmt.Errorf("drop documents: %w", err)
	}
	s.logger.Debug("parsed store cleared")
	return nil
}
