package ranking

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/JakeFAU/hybrid-search/internal/index"
	"github.com/JakeFAU/hybrid-search/internal/metrics"
	"github.com/JakeFAU/hybrid-search/internal/telemetry"
)

const (
	// DefaultTopK is used when a request asks for zero or fewer hits.
	DefaultTopK  = 10
	snippetRunes = 300
)

// ErrEmptyQuery is returned for a blank query string.
var ErrEmptyQuery = errors.New("query must not be empty")

// Request is one search call.
type Request struct {
	Query       string `json:"query"`
	TopK        int    `json:"topK"`
	UseSemantic bool   `json:"useSemantic"`
	Site        string `json:"site,omitempty"`
	// DateRange is accepted for compatibility and not applied.
	DateRange string `json:"dateRange,omitempty"`
}

// Hit is one ranked document.
type Hit struct {
	DocID      string   `json:"docId"`
	Title      string   `json:"title"`
	URL        string   `json:"url"`
	Snippet    string   `json:"snippet"`
	Score      float64  `json:"score"`
	Highlights []string `json:"highlights"`
}

// Response holds hits in descending score order.
type Response struct {
	Hits []Hit `json:"hits"`
}

// Engine ranks every indexed document per request. It holds read-only state
// and is safe for concurrent use.
type Engine struct {
	idx         *index.Index
	lexical     Scorer
	hybrid      Scorer
	defaultTopK int
	logger      *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithHybrid enables semantic ranking through s.
func WithHybrid(s Scorer) Option {
	return func(e *Engine) {
		e.hybrid = s
	}
}

// WithDefaultTopK overrides DefaultTopK.
func WithDefaultTopK(k int) Option {
	return func(e *Engine) {
		if k > 0 {
			e.defaultTopK = k
		}
	}
}

// NewEngine builds an engine that ranks lexically with lexical.
func NewEngine(idx *index.Index, lexical Scorer, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		idx:         idx,
		lexical:     lexical,
		defaultTopK: DefaultTopK,
		logger:      logger.Named("ranking"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SemanticEnabled reports whether a hybrid scorer is configured.
func (e *Engine) SemanticEnabled() bool {
	return e.hybrid != nil
}

type scored struct {
	docID string
	score float64
}

// Search scores every document that passes the site filter. The semantic
// blend is used when requested and configured; otherwise BM25 alone.
func (e *Engine) Search(ctx context.Context, req Request) (resp Response, err error) {
	ctx, span := telemetry.StartSpan(ctx, "ranking.Search",
		attribute.Int("search.top_k", req.TopK),
		attribute.Bool("search.semantic", req.UseSemantic))
	defer func() {
		span.SetAttributes(attribute.Int("search.hits", len(resp.Hits)))
		telemetry.EndSpan(span, err)
	}()
	return e.search(ctx, req)
}

func (e *Engine) search(ctx context.Context, req Request) (Response, error) {
	start := time.Now()
	if strings.TrimSpace(req.Query) == "" {
		return Response{}, ErrEmptyQuery
	}
	scorer, mode := e.lexical, "lexical"
	if req.UseSemantic && e.hybrid != nil {
		scorer, mode = e.hybrid, "hybrid"
	}
	topK := req.TopK
	if topK <= 0 {
		topK = e.defaultTopK
	}

	q := NewQuery(req.Query)
	ids := e.idx.DocIDs()
	candidates := make([]scored, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			metrics.ObserveSearch(mode, "canceled", time.Since(start))
			return Response{}, err
		}
		doc, ok := e.idx.Doc(id)
		if !ok {
			continue
		}
		if req.Site != "" && !strings.Contains(doc.URL, req.Site) {
			continue
		}
		s, err := scorer.Score(ctx, q, id)
		if err != nil {
			metrics.ObserveSearch(mode, "error", time.Since(start))
			e.logger.Error("scoring failed", zap.String("doc_id", id), zap.Error(err))
			return Response{}, err
		}
		candidates = append(candidates, scored{docID: id, score: s})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	hits := make([]Hit, 0, len(candidates))
	for _, c := range candidates {
		doc, _ := e.idx.Doc(c.docID)
		hits = append(hits, Hit{
			DocID:      c.docID,
			Title:      doc.Title,
			URL:        doc.URL,
			Snippet:    snippet(doc.Body),
			Score:      c.score,
			Highlights: e.highlights(q.Tokens, c.docID),
		})
	}
	metrics.ObserveSearch(mode, "ok", time.Since(start))
	e.logger.Debug("search complete",
		zap.String("mode", mode),
		zap.Int("candidates", len(ids)),
		zap.Int("hits", len(hits)),
		zap.Duration("elapsed", time.Since(start)))
	return Response{Hits: hits}, nil
}

func (e *Engine) highlights(tokens []string, docID string) []string {
	out := make([]string, 0, len(tokens))
	seen := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		if e.idx.TermFrequency(tok, docID) > 0 {
			out = append(out, tok)
		}
	}
	return out
}

func snippet(body string) string {
	n := 0
	for i := range body {
		if n == snippetRunes {
			return body[:i]
		}
		n++
	}
	return body
}
