// Package pipeline runs the offline build: raw pages are parsed, stored,
// deduplicated, indexed and embedded, and the index and embedding snapshots
// are written for the search server.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/JakeFAU/hybrid-search/internal/dedup"
	"github.com/JakeFAU/hybrid-search/internal/document"
	"github.com/JakeFAU/hybrid-search/internal/embedding"
	"github.com/JakeFAU/hybrid-search/internal/index"
	"github.com/JakeFAU/hybrid-search/internal/parser"
	"github.com/JakeFAU/hybrid-search/internal/storage"
	"github.com/JakeFAU/hybrid-search/internal/telemetry"
)

const defaultEmbedBatch = 32

// ParsedStore holds parsed documents between the parse and index stages.
type ParsedStore interface {
	PutBatch(ctx context.Context, docs []document.ParsedDocument) error
	All(ctx context.Context) ([]document.ParsedDocument, error)
	DropAll() error
}

// Config names the snapshot outputs and sizes the worker pool.
type Config struct {
	IndexPath      string
	EmbeddingsPath string
	PoolSize       int
	EmbedBatchSize int
}

// Result summarizes one build.
type Result struct {
	RawPages   int
	Parsed     int
	Skipped    int
	Unique     int
	Indexed    int
	Embedded   int
	Terms      int
	Duration   time.Duration
	IndexPath  string
	VectorPath string
}

// Builder owns the goroutine pool shared by the parse and embed stages.
type Builder struct {
	cfg      Config
	raw      storage.RawStore
	parsed   ParsedStore
	detector *dedup.Detector
	embedder embedding.Embedder
	pool     *ants.Pool
	logger   *zap.Logger
}

// New validates the collaborators and starts the pool. A nil embedder skips
// the embedding stage.
func New(cfg Config, raw storage.RawStore, parsed ParsedStore, detector *dedup.Detector,
	embedder embedding.Embedder, logger *zap.Logger,
) (*Builder, error) {
	if raw == nil {
		return nil, errors.New("raw store is required")
	}
	if parsed == nil {
		return nil, errors.New("parsed store is required")
	}
	if detector == nil {
		return nil, errors.New("dedup detector is required")
	}
	if cfg.IndexPath == "" {
		return nil, errors.New("index path is required")
	}
	if embedder != nil && cfg.EmbeddingsPath == "" {
		return nil, errors.New("embeddings path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	size := cfg.PoolSize
	if size < 1 {
		size = max(runtime.NumCPU()/2, 1)
	}
	if cfg.EmbedBatchSize <= 0 {
		cfg.EmbedBatchSize = defaultEmbedBatch
	}
	pool, err := ants.NewPool(size)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	return &Builder{
		cfg:      cfg,
		raw:      raw,
		parsed:   parsed,
		detector: detector,
		embedder: embedder,
		pool:     pool,
		logger:   logger.Named("pipeline"),
	}, nil
}

// Release stops the worker pool.
func (b *Builder) Release() {
	b.pool.Release()
}

// Run executes every stage in order and writes both snapshots.
func (b *Builder) Run(ctx context.Context) (res Result, err error) {
	ctx, span := telemetry.StartSpan(ctx, "pipeline.Run")
	defer func() {
		span.SetAttributes(
			attribute.Int("pipeline.parsed", res.Parsed),
			attribute.Int("pipeline.indexed", res.Indexed),
			attribute.Int("pipeline.embedded", res.Embedded))
		telemetry.EndSpan(span, err)
	}()
	return b.run(ctx)
}

func (b *Builder) run(ctx context.Context) (Result, error) {
	start := time.Now()
	var res Result

	raw, parsed, err := b.ParseAll(ctx)
	if err != nil {
		return res, err
	}
	res.RawPages = raw
	res.Parsed = parsed
	res.Skipped = raw - parsed

	docs, err := b.parsed.All(ctx)
	if err != nil {
		return res, fmt.Errorf("load parsed documents: %w", err)
	}
	unique := b.detector.FilterDuplicates(docs)
	res.Unique = len(unique)
	b.logger.Info("dedup complete", zap.Int("input", len(docs)), zap.Int("kept", len(unique)))

	idx, err := b.BuildIndex(unique)
	if err != nil {
		return res, err
	}
	res.Indexed = idx.N
	res.Terms = len(idx.Postings)
	if err := idx.Save(b.cfg.IndexPath); err != nil {
		return res, err
	}
	res.IndexPath = b.cfg.IndexPath

	if b.embedder != nil {
		indexed := make([]document.ParsedDocument, 0, idx.N)
		for _, id := range idx.DocIDs() {
			doc, _ := idx.Doc(id)
			indexed = append(indexed, doc)
		}
		store, err := b.EmbedAll(ctx, indexed)
		if err != nil {
			return res, err
		}
		if err := store.Save(b.cfg.EmbeddingsPath); err != nil {
			return res, err
		}
		res.Embedded = store.Len()
		res.VectorPath = b.cfg.EmbeddingsPath
	}

	res.Duration = time.Since(start)
	b.logger.Info("build complete",
		zap.Int("raw_pages", res.RawPages),
		zap.Int("parsed", res.Parsed),
		zap.Int("indexed", res.Indexed),
		zap.Int("embedded", res.Embedded),
		zap.Duration("elapsed", res.Duration))
	return res, nil
}

// ParseAll replaces the parsed store contents with a fresh parse of every raw
// page. Pages that fail to load or parse are logged and skipped.
func (b *Builder) ParseAll(ctx context.Context) (raw, parsed int, err error) {
	keys, err := b.raw.Keys(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("list raw pages: %w", err)
	}
	if err := b.parsed.DropAll(); err != nil {
		return 0, 0, fmt.Errorf("reset parsed store: %w", err)
	}

	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		docs = make([]document.ParsedDocument, 0, len(keys))
	)
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			wg.Wait()
			return len(keys), 0, err
		}
		wg.Add(1)
		submitErr := b.pool.Submit(func() {
			defer wg.Done()
			doc, ok := b.parseOne(ctx, key)
			if !ok {
				return
			}
			mu.Lock()
			docs = append(docs, doc)
			mu.Unlock()
		})
		if submitErr != nil {
			wg.Done()
			wg.Wait()
			return len(keys), 0, fmt.Errorf("submit parse task: %w", submitErr)
		}
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return len(keys), 0, err
	}

	if err := b.parsed.PutBatch(ctx, docs); err != nil {
		return len(keys), 0, fmt.Errorf("store parsed documents: %w", err)
	}
	b.logger.Info("parse complete", zap.Int("raw_pages", len(keys)), zap.Int("parsed", len(docs)))
	return len(keys), len(docs), nil
}

func (b *Builder) parseOne(ctx context.Context, key string) (document.ParsedDocument, bool) {
	body, meta, err := b.raw.GetRaw(ctx, key)
	if err != nil {
		b.logger.Warn("skipping raw page", zap.String("key", key), zap.Error(err))
		return document.ParsedDocument{}, false
	}
	doc, err := parser.Parse(meta, body)
	if err != nil {
		b.logger.Warn("skipping unparsable page", zap.String("key", key), zap.String("url", meta.URL), zap.Error(err))
		return document.ParsedDocument{}, false
	}
	return doc, true
}

// BuildIndex adds docs in order. A document whose DocID is already indexed is
// logged and skipped.
func (b *Builder) BuildIndex(docs []document.ParsedDocument) (*index.Index, error) {
	builder := index.NewBuilder()
	for _, doc := range docs {
		err := builder.AddDocument(doc)
		switch {
		case err == nil:
		case errors.Is(err, index.ErrDuplicateDocument):
			b.logger.Warn("skipping document with duplicate id",
				zap.String("url", doc.URL), zap.String("doc_id", doc.DocID()))
		default:
			return nil, fmt.Errorf("index %s: %w", doc.URL, err)
		}
	}
	return builder.Build(), nil
}

// EmbedAll embeds docs in batches on the pool. Any batch failure fails the stage.
func (b *Builder) EmbedAll(ctx context.Context, docs []document.ParsedDocument) (*embedding.Store, error) {
	if b.embedder == nil {
		return nil, errors.New("no embedder configured")
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		firstErr error
		store    = embedding.NewStore(0)
	)
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		mu.Unlock()
	}

	for start := 0; start < len(docs); start += b.cfg.EmbedBatchSize {
		batch := docs[start:min(start+b.cfg.EmbedBatchSize, len(docs))]
		wg.Add(1)
		submitErr := b.pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			vecs, err := embedding.Vectors(ctx, b.embedder, batch)
			if err != nil {
				fail(err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			for i, doc := range batch {
				if err := store.Put(doc.DocID(), vecs[i]); err != nil && firstErr == nil {
					firstErr = err
					cancel()
					return
				}
			}
		})
		if submitErr != nil {
			wg.Done()
			fail(fmt.Errorf("submit embed task: %w", submitErr))
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		return nil, fmt.Errorf("embed documents: %w", firstErr)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.logger.Info("embedding complete", zap.Int("documents", store.Len()), zap.Int("dim", store.Dim))
	return store, nil
}
