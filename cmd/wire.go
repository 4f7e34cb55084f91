package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	gcs "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/hybrid-search/internal/config"
	"github.com/JakeFAU/hybrid-search/internal/crawler"
	"github.com/JakeFAU/hybrid-search/internal/dedup"
	"github.com/JakeFAU/hybrid-search/internal/embedding"
	"github.com/JakeFAU/hybrid-search/internal/index"
	kafkapublisher "github.com/JakeFAU/hybrid-search/internal/publisher/kafka"
	memorypublisher "github.com/JakeFAU/hybrid-search/internal/publisher/memory"
	pubsubpublisher "github.com/JakeFAU/hybrid-search/internal/publisher/pubsub"
	"github.com/JakeFAU/hybrid-search/internal/ranking"
	"github.com/JakeFAU/hybrid-search/internal/storage"
	gcsstore "github.com/JakeFAU/hybrid-search/internal/storage/gcs"
	"github.com/JakeFAU/hybrid-search/internal/storage/local"
	"github.com/JakeFAU/hybrid-search/internal/storage/memory"
	"github.com/JakeFAU/hybrid-search/internal/storage/postgres"
)

type closeFunc func()

func noopClose() {}

func indexPath(cfg config.Config) string {
	return filepath.Join(cfg.Storage.SnapshotDir, cfg.Index.File)
}

func embeddingsPath(cfg config.Config) string {
	return filepath.Join(cfg.Storage.SnapshotDir, cfg.Embedding.File)
}

// openRawStore selects the raw page backend named by storage.backend.
func openRawStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (storage.RawStore, closeFunc, error) {
	switch cfg.Storage.Backend {
	case "memory":
		return memory.NewBlobStore(), noopClose, nil
	case "gcs":
		client, err := gcs.NewClient(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("create gcs client: %w", err)
		}
		store, err := gcsstore.New(client, gcsstore.Config{Bucket: cfg.Storage.GCSBucket, Prefix: cfg.Storage.Prefix})
		if err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("init gcs store: %w", err)
		}
		return store, func() {
			if err := client.Close(); err != nil {
				logger.Warn("gcs client close failed", zap.Error(err))
			}
		}, nil
	default:
		store, err := local.New(local.Config{BaseDir: cfg.Storage.RawDir})
		if err != nil {
			return nil, nil, fmt.Errorf("init local store: %w", err)
		}
		return store, noopClose, nil
	}
}

// openRetrievalLog returns a Postgres log when db.dsn is set, otherwise an in-memory one.
func openRetrievalLog(ctx context.Context, cfg config.Config, logger *zap.Logger) (crawler.RetrievalLog, closeFunc, error) {
	if cfg.DB.DSN == "" {
		return memory.NewRetrievalLog(), noopClose, nil
	}
	store, err := postgres.NewRetrievalStore(ctx, postgres.RetrievalStoreConfig{
		DSN:      cfg.DB.DSN,
		Table:    cfg.DB.Table,
		MaxConns: cfg.DB.MaxConns,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("init retrieval store: %w", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, nil, err
	}
	logger.Info("retrieval rows go to postgres", zap.String("table", cfg.DB.Table))
	return store, store.Close, nil
}

// openPublisher prefers Kafka, then Pub/Sub, then the in-memory publisher.
func openPublisher(ctx context.Context, cfg config.Config, logger *zap.Logger) (crawler.Publisher, string, closeFunc, error) {
	switch {
	case len(cfg.Kafka.Brokers) > 0:
		p, err := kafkapublisher.New(kafkapublisher.Config{Brokers: cfg.Kafka.Brokers, Topic: cfg.Kafka.Topic}, logger)
		if err != nil {
			return nil, "", nil, fmt.Errorf("init kafka publisher: %w", err)
		}
		return p, cfg.Kafka.Topic, func() {
			if err := p.Close(); err != nil {
				logger.Warn("kafka publisher close failed", zap.Error(err))
			}
		}, nil
	case cfg.PubSub.ProjectID != "":
		p, err := pubsubpublisher.New(ctx, cfg.PubSub.ProjectID, cfg.PubSub.TopicName, logger)
		if err != nil {
			return nil, "", nil, fmt.Errorf("init pubsub publisher: %w", err)
		}
		return p, cfg.PubSub.TopicName, func() {
			if err := p.Close(); err != nil {
				logger.Warn("pubsub publisher close failed", zap.Error(err))
			}
		}, nil
	default:
		return memorypublisher.New(), "pages", noopClose, nil
	}
}

func newDetector(cfg config.Config, logger *zap.Logger) (*dedup.Detector, error) {
	return dedup.New(dedup.Options{
		Threshold:      cfg.Dedup.Threshold,
		NumPerm:        cfg.Dedup.NumPerm,
		Seed:           uint64(cfg.Dedup.Seed),
		CanonicalOrder: cfg.Dedup.CanonicalOrder,
	}, logger)
}

// newEmbedder builds the embedding collaborator named by embedding.provider.
func newEmbedder(cfg config.Config, logger *zap.Logger) (embedding.Embedder, error) {
	switch cfg.Embedding.Provider {
	case "openai":
		return embedding.NewOpenAI(embedding.OpenAIConfig{
			BaseURL:    cfg.Embedding.BaseURL,
			Model:      cfg.Embedding.Model,
			Token:      cfg.Embedding.Token,
			Dimensions: cfg.Embedding.Dimensions,
		}, logger)
	case "hashing":
		return embedding.NewHashing(cfg.Embedding.Dimensions), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Embedding.Provider)
	}
}

// loadEngine reads both snapshots eagerly. The semantic scorer is only built
// when withSemantic is set, and then a missing or corrupt embedding snapshot
// is an error.
func loadEngine(cfg config.Config, logger *zap.Logger, withSemantic bool) (*ranking.Engine, error) {
	idx, err := index.Load(indexPath(cfg))
	if err != nil {
		return nil, err
	}
	bm25 := ranking.NewBM25(idx, cfg.Ranking.K1, cfg.Ranking.B)
	opts := []ranking.Option{ranking.WithDefaultTopK(cfg.Ranking.DefaultTopK)}

	if withSemantic {
		store, err := embedding.LoadStore(embeddingsPath(cfg))
		if err != nil {
			return nil, err
		}
		embedder, err := newEmbedder(cfg, logger)
		if err != nil {
			return nil, err
		}
		semantic := ranking.NewSemantic(embedder, store)
		opts = append(opts, ranking.WithHybrid(ranking.NewHybrid(bm25, semantic, cfg.Ranking.Alpha)))
		logger.Info("embeddings loaded", zap.Int("vectors", store.Len()), zap.Int("dim", store.Dim))
	}

	logger.Info("index loaded", zap.Int("documents", idx.N), zap.Int("terms", len(idx.Postings)))
	return ranking.NewEngine(idx, bm25, logger, opts...), nil
}
