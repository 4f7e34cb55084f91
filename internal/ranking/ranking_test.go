package ranking

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/hybrid-search/internal/document"
	"github.com/JakeFAU/hybrid-search/internal/embedding"
	"github.com/JakeFAU/hybrid-search/internal/index"
)

func doc(url, title string, tokens ...string) document.ParsedDocument {
	return document.ParsedDocument{
		URL:    url,
		Title:  title,
		Body:   title + " body",
		Tokens: tokens,
	}
}

func buildIndex(t *testing.T, docs ...document.ParsedDocument) *index.Index {
	t.Helper()
	b := index.NewBuilder()
	for _, d := range docs {
		require.NoError(t, b.AddDocument(d))
	}
	return b.Build()
}

var threeDocs = []document.ParsedDocument{
	doc("https://a.example/engines", "Engines", "search", "engin", "rank"),
	doc("https://b.example/search", "Search twice", "search", "search", "databas"),
	doc("https://c.example/cooking", "Cooking", "cook", "recip", "kitchen"),
}

func TestBM25ThreeDocumentScenario(t *testing.T) {
	t.Parallel()

	idx := buildIndex(t, threeDocs...)
	engine := NewEngine(idx, NewBM25(idx, DefaultK1, DefaultB), nil)

	resp, err := engine.Search(context.Background(), Request{Query: "search"})
	require.NoError(t, err)
	require.Len(t, resp.Hits, 3)
	assert.Equal(t, "https://b.example/search", resp.Hits[0].URL)
	assert.Equal(t, "https://a.example/engines", resp.Hits[1].URL)
	assert.Equal(t, "https://c.example/cooking", resp.Hits[2].URL)
	assert.Greater(t, resp.Hits[0].Score, resp.Hits[1].Score)
	assert.Greater(t, resp.Hits[1].Score, 0.0)
	assert.Zero(t, resp.Hits[2].Score)
	assert.Equal(t, []string{"search"}, resp.Hits[0].Highlights)
	assert.Empty(t, resp.Hits[2].Highlights)
}

func TestBM25KnownValue(t *testing.T) {
	t.Parallel()

	idx := buildIndex(t, threeDocs...)
	bm := NewBM25(idx, DefaultK1, DefaultB)
	got, err := bm.Score(context.Background(), &Query{Tokens: []string{"search"}}, threeDocs[0].DocID())
	require.NoError(t, err)

	// N=3, df=2, avgdl=3, dl=3, tf=1.
	idf := math.Log(1 + 1.5/2.5)
	want := idf * 1 * 2.5 / (1 + 1.5)
	assert.InDelta(t, want, got, 1e-9)
}

func TestBM25LiteralTokenCorpus(t *testing.T) {
	t.Parallel()

	d1 := doc("https://t.example/1", "one", "a", "b", "a")
	d2 := doc("https://t.example/2", "two", "b", "c")
	d3 := doc("https://t.example/3", "three", "a", "a", "a")
	idx := buildIndex(t, d1, d2, d3)
	bm := NewBM25(idx, DefaultK1, DefaultB)
	q := &Query{Text: "a", Tokens: []string{"a"}}

	s1, err := bm.Score(context.Background(), q, d1.DocID())
	require.NoError(t, err)
	s2, err := bm.Score(context.Background(), q, d2.DocID())
	require.NoError(t, err)
	s3, err := bm.Score(context.Background(), q, d3.DocID())
	require.NoError(t, err)

	// N=3, df(a)=2, avgdl=8/3.
	idf := math.Log(1 + 1.5/2.5)
	norm := 1 - DefaultB + DefaultB*3/(8.0/3)
	want1 := idf * 2 * (DefaultK1 + 1) / (2 + DefaultK1*norm)
	want3 := idf * 3 * (DefaultK1 + 1) / (3 + DefaultK1*norm)
	assert.InDelta(t, want1, s1, 1e-9)
	assert.InDelta(t, want3, s3, 1e-9)
	assert.InDelta(t, 0.645, s1, 1e-3)
	assert.InDelta(t, 0.760, s3, 1e-3)
	assert.Zero(t, s2)
	assert.Greater(t, s3, s1)
	assert.Greater(t, s1, s2)
}

func TestBM25MonotonicInTermFrequency(t *testing.T) {
	t.Parallel()

	docs := []document.ParsedDocument{
		doc("https://x.example/1", "one", "go", "pad", "pad", "pad"),
		doc("https://x.example/2", "two", "go", "go", "pad", "pad"),
		doc("https://x.example/3", "three", "go", "go", "go", "pad"),
		doc("https://x.example/4", "four", "other", "pad", "pad", "pad"),
	}
	idx := buildIndex(t, docs...)
	bm := NewBM25(idx, 0, DefaultB)
	q := &Query{Tokens: []string{"go"}}

	prev := -1.0
	for _, d := range docs[:3] {
		s, err := bm.Score(context.Background(), q, d.DocID())
		require.NoError(t, err)
		assert.Greater(t, s, prev)
		prev = s
	}
}

func TestBM25EmptyIndex(t *testing.T) {
	t.Parallel()

	idx := buildIndex(t)
	got, err := NewBM25(idx, DefaultK1, DefaultB).Score(context.Background(), &Query{Tokens: []string{"x"}}, "missing")
	require.NoError(t, err)
	assert.Zero(t, got)
}

type constScorer struct {
	score float64
	calls atomic.Int32
}

func (c *constScorer) Score(context.Context, *Query, string) (float64, error) {
	c.calls.Add(1)
	return c.score, nil
}

func TestHybridFusionIsExact(t *testing.T) {
	t.Parallel()

	lex := &constScorer{score: 2}
	sem := &constScorer{score: 0.5}
	h := NewHybrid(lex, sem, 0.7)

	got, err := h.Score(context.Background(), &Query{}, "d")
	require.NoError(t, err)
	assert.InDelta(t, 0.7*2+0.3*0.5, got, 1e-12)
	assert.Equal(t, int32(1), lex.calls.Load())
	assert.Equal(t, int32(1), sem.calls.Load())

	h = NewHybrid(lex, sem, 1.5)
	got, err = h.Score(context.Background(), &Query{}, "d")
	require.NoError(t, err)
	assert.InDelta(t, DefaultAlpha*2+(1-DefaultAlpha)*0.5, got, 1e-12)
}

type countingEmbedder struct {
	vec   []float32
	calls atomic.Int32
}

func (c *countingEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = c.vec
	}
	return out, nil
}

func (c *countingEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	c.calls.Add(1)
	return c.vec, nil
}

func TestSemanticScoresCosineAndEmbedsQueryOnce(t *testing.T) {
	t.Parallel()

	store := embedding.NewStore(2)
	require.NoError(t, store.Put("same", []float32{1, 0}))
	require.NoError(t, store.Put("orthogonal", []float32{0, 3}))
	require.NoError(t, store.Put("zero", []float32{0, 0}))

	emb := &countingEmbedder{vec: []float32{2, 0}}
	sem := NewSemantic(emb, store)
	q := NewQuery("anything")

	got, err := sem.Score(context.Background(), q, "same")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, got, 1e-9)

	got, err = sem.Score(context.Background(), q, "orthogonal")
	require.NoError(t, err)
	assert.InDelta(t, 0.0, got, 1e-9)

	got, err = sem.Score(context.Background(), q, "zero")
	require.NoError(t, err)
	assert.Zero(t, got)

	assert.Equal(t, int32(1), emb.calls.Load())
}

func TestSemanticMissingEmbedding(t *testing.T) {
	t.Parallel()

	sem := NewSemantic(&countingEmbedder{vec: []float32{1}}, embedding.NewStore(1))
	_, err := sem.Score(context.Background(), NewQuery("q"), "absent")
	require.ErrorIs(t, err, ErrMissingEmbedding)

	var missing *MissingEmbeddingError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "absent", missing.DocID)
}

func TestEngineSemanticRequestFailsOnMissingEmbedding(t *testing.T) {
	t.Parallel()

	idx := buildIndex(t, threeDocs...)
	store := embedding.NewStore(1)
	require.NoError(t, store.Put(threeDocs[0].DocID(), []float32{1}))

	bm := NewBM25(idx, DefaultK1, DefaultB)
	hybrid := NewHybrid(bm, NewSemantic(&countingEmbedder{vec: []float32{1}}, store), DefaultAlpha)
	engine := NewEngine(idx, bm, nil, WithHybrid(hybrid))
	require.True(t, engine.SemanticEnabled())

	_, err := engine.Search(context.Background(), Request{Query: "search", UseSemantic: true})
	require.ErrorIs(t, err, ErrMissingEmbedding)

	resp, err := engine.Search(context.Background(), Request{Query: "search", UseSemantic: false})
	require.NoError(t, err)
	assert.Len(t, resp.Hits, 3)
}

func TestEngineHybridRanking(t *testing.T) {
	t.Parallel()

	idx := buildIndex(t, threeDocs...)
	store := embedding.NewStore(2)
	require.NoError(t, store.Put(threeDocs[0].DocID(), []float32{0, 1}))
	require.NoError(t, store.Put(threeDocs[1].DocID(), []float32{1, 0}))
	require.NoError(t, store.Put(threeDocs[2].DocID(), []float32{0, 1}))

	bm := NewBM25(idx, DefaultK1, DefaultB)
	emb := &countingEmbedder{vec: []float32{0, 1}}
	engine := NewEngine(idx, bm, nil, WithHybrid(NewHybrid(bm, NewSemantic(emb, store), 0)))

	resp, err := engine.Search(context.Background(), Request{Query: "search", UseSemantic: true, TopK: 2})
	require.NoError(t, err)
	require.Len(t, resp.Hits, 2)
	// alpha 0 ranks purely by cosine; ties keep DocID order.
	assert.InDelta(t, 1.0, resp.Hits[0].Score, 1e-9)
	assert.InDelta(t, 1.0, resp.Hits[1].Score, 1e-9)
	assert.NotEqual(t, threeDocs[1].URL, resp.Hits[0].URL)
	assert.NotEqual(t, threeDocs[1].URL, resp.Hits[1].URL)
	assert.Less(t, resp.Hits[0].DocID, resp.Hits[1].DocID)
	assert.Equal(t, int32(1), emb.calls.Load())
}

func TestEngineSiteFilter(t *testing.T) {
	t.Parallel()

	idx := buildIndex(t, threeDocs...)
	engine := NewEngine(idx, NewBM25(idx, DefaultK1, DefaultB), nil)

	resp, err := engine.Search(context.Background(), Request{Query: "search", Site: "c.example"})
	require.NoError(t, err)
	require.Len(t, resp.Hits, 1)
	assert.Equal(t, "https://c.example/cooking", resp.Hits[0].URL)

	resp, err = engine.Search(context.Background(), Request{Query: "search", Site: "nowhere.example"})
	require.NoError(t, err)
	assert.Empty(t, resp.Hits)
}

func TestEngineTopKDefaultsAndTruncates(t *testing.T) {
	t.Parallel()

	var docs []document.ParsedDocument
	for i := 0; i < 15; i++ {
		docs = append(docs, doc("https://t.example/"+strings.Repeat("p", i+1), "page", "word"))
	}
	idx := buildIndex(t, docs...)
	engine := NewEngine(idx, NewBM25(idx, DefaultK1, DefaultB), nil)

	resp, err := engine.Search(context.Background(), Request{Query: "word", TopK: -1})
	require.NoError(t, err)
	assert.Len(t, resp.Hits, DefaultTopK)

	engine = NewEngine(idx, NewBM25(idx, DefaultK1, DefaultB), nil, WithDefaultTopK(4))
	resp, err = engine.Search(context.Background(), Request{Query: "word"})
	require.NoError(t, err)
	assert.Len(t, resp.Hits, 4)

	resp, err = engine.Search(context.Background(), Request{Query: "word", TopK: 20})
	require.NoError(t, err)
	assert.Len(t, resp.Hits, 15)
}

func TestEngineRejectsEmptyQuery(t *testing.T) {
	t.Parallel()

	idx := buildIndex(t, threeDocs...)
	engine := NewEngine(idx, NewBM25(idx, DefaultK1, DefaultB), nil)
	_, err := engine.Search(context.Background(), Request{Query: "   "})
	require.ErrorIs(t, err, ErrEmptyQuery)
}

func TestEngineCanceledContext(t *testing.T) {
	t.Parallel()

	idx := buildIndex(t, threeDocs...)
	engine := NewEngine(idx, NewBM25(idx, DefaultK1, DefaultB), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := engine.Search(ctx, Request{Query: "search"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestHighlightsAreDedupedInQueryOrder(t *testing.T) {
	t.Parallel()

	d := doc("https://h.example/", "h", "cook", "search", "rank")
	idx := buildIndex(t, d)
	engine := NewEngine(idx, NewBM25(idx, DefaultK1, DefaultB), nil)

	resp, err := engine.Search(context.Background(), Request{Query: "rank search rank missing cook"})
	require.NoError(t, err)
	require.Len(t, resp.Hits, 1)
	assert.Equal(t, []string{"rank", "search", "cook"}, resp.Hits[0].Highlights)
}

func TestSnippetCutsOnRunes(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("é", 400)
	got := snippet(long)
	assert.Equal(t, 300, len([]rune(got)))
	assert.Equal(t, "short", snippet("short"))
}
