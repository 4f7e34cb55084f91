// Package index builds and persists the positional inverted index.
package index

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/JakeFAU/hybrid-search/internal/document"
	"github.com/JakeFAU/hybrid-search/internal/metrics"
	"github.com/JakeFAU/hybrid-search/internal/snapshot"
)

var (
	// ErrDuplicateDocument is returned when a DocID is added twice.
	ErrDuplicateDocument = errors.New("document already indexed")
	// ErrBuilt is returned when a builder is used after Build.
	ErrBuilt             = errors.New("index already built")
)

// Posting lists the token positions of one term in one document.
type Posting struct {
	DocID     string `json:"doc_id"`
	Positions []int  `json:"positions"`
}

// DocStat holds the per-document numbers the ranker needs.
type DocStat struct {
	Length int    `json:"length"`
	Title  string `json:"title"`
	URL    string `json:"url"`
}

// Index is an immutable inverted index. Postings are in insertion order.
type Index struct {
	Postings    map[string][]Posting               `json:"postings"`
	DocStats    map[string]DocStat                 `json:"doc_stats"`
	TermDocFreq map[string]int                     `json:"term_doc_freq"`
	DocTable    map[string]document.ParsedDocument `json:"doc_table"`
	N           int                                `json:"n"`

	tf       map[string]map[string]int
	avgdl    float64
	docOrder []string
}

func newIndex() *Index {
	return &Index{
		Postings:    make(map[string][]Posting),
		DocStats:    make(map[string]DocStat),
		TermDocFreq: make(map[string]int),
		DocTable:    make(map[string]document.ParsedDocument),
	}
}

// Builder accumulates documents. AddDocument is safe for concurrent use.
type Builder struct {
	mu    sync.Mutex
	idx   *Index
	built bool
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{idx: newIndex()}
}

// AddDocument appends one posting per distinct token of doc and records its
// stats. Positions are token offsets in doc.Tokens.
func (b *Builder) AddDocument(doc document.ParsedDocument) error {
	docID := doc.DocID()

	positions := make(map[string][]int)
	var order []string
	for pos, tok := range doc.Tokens {
		if _, ok := positions[tok]; !ok {
			order = append(order, tok)
		}
		positions[tok] = append(positions[tok], pos)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.built {
		return ErrBuilt
	}
	if _, exists := b.idx.DocTable[docID]; exists {
		return fmt.Errorf("%w: %s (%s)", ErrDuplicateDocument, docID, doc.URL)
	}
	for _, tok := range order {
		b.idx.Postings[tok] = append(b.idx.Postings[tok], Posting{DocID: docID, Positions: positions[tok]})
		b.idx.TermDocFreq[tok]++
	}
	b.idx.DocStats[docID] = DocStat{Length: len(doc.Tokens), Title: doc.Title, URL: doc.URL}
	b.idx.DocTable[docID] = doc
	b.idx.N++
	return nil
}

// Build finalizes the index. Later calls to AddDocument fail with ErrBuilt.
func (b *Builder) Build() *Index {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.built = true
	b.idx.finalize()
	metrics.SetIndexSize(b.idx.N, len(b.idx.Postings))
	return b.idx
}

func (i *Index) finalize() {
	if i.Postings == nil {
		i.Postings = make(map[string][]Posting)
	}
	if i.DocStats == nil {
		i.DocStats = make(map[string]DocStat)
	}
	if i.TermDocFreq == nil {
		i.TermDocFreq = make(map[string]int)
	}
	if i.DocTable == nil {
		i.DocTable = make(map[string]document.ParsedDocument)
	}
	i.tf = make(map[string]map[string]int, len(i.Postings))
	for term, postings := range i.Postings {
		m := make(map[string]int, len(postings))
		for _, p := range postings {
			m[p.DocID] = len(p.Positions)
		}
		i.tf[term] = m
	}
	total := 0
	i.docOrder = make([]string, 0, len(i.DocStats))
	for id, st := range i.DocStats {
		total += st.Length
		i.docOrder = append(i.docOrder, id)
	}
	sort.Strings(i.docOrder)
	i.avgdl = 0
	if len(i.DocStats) > 0 {
		i.avgdl = float64(total) / float64(len(i.DocStats))
	}
}

// TermFrequency returns how often term occurs in docID.
func (i *Index) TermFrequency(term, docID string) int {
	return i.tf[term][docID]
}

// DocFrequency returns the number of documents containing term.
func (i *Index) DocFrequency(term string) int {
	return i.TermDocFreq[term]
}

// DocLength returns the token count of docID.
func (i *Index) DocLength(docID string) int {
	return i.DocStats[docID].Length
}

// AvgDocLength returns the mean token count, or 0 for an empty index.
func (i *Index) AvgDocLength() float64 {
	return i.avgdl
}

// Doc returns the stored document for docID.
func (i *Index) Doc(docID string) (document.ParsedDocument, bool) {
	doc, ok := i.DocTable[docID]
	return doc, ok
}

// DocIDs returns every document id in sorted order. The slice is shared.
func (i *Index) DocIDs() []string {
	return i.docOrder
}

// SortedPostings returns a copy of the postings for term sorted by DocID.
func (i *Index) SortedPostings(term string) []Posting {
	out := slices.Clone(i.Postings[term])
	slices.SortFunc(out, func(a, b Posting) int {
		return strings.Compare(a.DocID, b.DocID)
	})
	return out
}

// Save writes the index as one atomic snapshot.
func (i *Index) Save(path string) error {
	if err := snapshot.WriteFile(path, snapshot.KindIndex, i); err != nil {
		return fmt.Errorf("save index: %w", err)
	}
	return nil
}

// Load reads an index snapshot written by Save.
func Load(path string) (*Index, error) {
	idx := newIndex()
	if err := snapshot.ReadFile(path, snapshot.KindIndex, idx); err != nil {
		return nil, fmt.Errorf("load index: %w", err)
	}
	if idx.N != len(idx.DocTable) {
		return nil, fmt.Errorf("load index: %w: n=%d but %d documents", snapshot.ErrCorrupt, idx.N, len(idx.DocTable))
	}
	idx.finalize()
	metrics.SetIndexSize(idx.N, len(idx.Postings))
	return idx, nil
}
