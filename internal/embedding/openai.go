package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"github.com/JakeFAU/hybrid-search/internal/metrics"
)

const defaultBatchSize = 32

// OpenAIConfig points at an OpenAI-compatible embeddings endpoint.
type OpenAIConfig struct {
	BaseURL    string
	Model      string
	Token      string
	Dimensions int
	BatchSize  int
}

// OpenAI embeds text through langchaingo's OpenAI client.
type OpenAI struct {
	embedder embeddings.Embedder
	logger   *zap.Logger
}

// NewOpenAI builds the client. An empty token is sent as "none" for local
// OpenAI-compatible servers that do not authenticate.
func NewOpenAI(cfg OpenAIConfig, logger *zap.Logger) (*OpenAI, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("embedding.base_url is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	token := cfg.Token
	if token == "" {
		token = "none"
	}
	opts := []openai.Option{
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithToken(token),
		openai.WithEmbeddingModel(cfg.Model),
	}
	if cfg.Dimensions > 0 {
		opts = append(opts, openai.WithEmbeddingDimensions(cfg.Dimensions))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	embedder, err := embeddings.NewEmbedder(client,
		embeddings.WithStripNewLines(true),
		embeddings.WithBatchSize(batch))
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	return &OpenAI{embedder: embedder, logger: logger.Named("openai_embedder")}, nil
}

// EmbedDocuments embeds texts in batches.
func (o *OpenAI) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	o.logger.Debug("generating embeddings", zap.Int("count", len(texts)))
	vecs, err := o.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		metrics.ObserveEmbedding("error")
		return nil, fmt.Errorf("embed documents: %w", err)
	}
	if len(vecs) != len(texts) {
		metrics.ObserveEmbedding("error")
		return nil, fmt.Errorf("embed documents: got %d vectors for %d texts", len(vecs), len(texts))
	}
	metrics.ObserveEmbedding("ok")
	return vecs, nil
}

// EmbedQuery embeds one query.
func (o *OpenAI) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vec, err := o.embedder.EmbedQuery(ctx, text)
	if err != nil {
		metrics.ObserveEmbedding("error")
		return nil, fmt.Errorf("embed query: %w", err)
	}
	metrics.ObserveEmbedding("ok")
	return vec, nil
}
