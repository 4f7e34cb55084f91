// Package dedup drops near-duplicate documents with MinHash signatures and
// LSH banding. The first document seen from each similarity cluster survives.
package dedup

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/hybrid-search/internal/document"
	"github.com/JakeFAU/hybrid-search/internal/metrics"
)

// Options controls the detector.
type Options struct {
	Threshold float64
	NumPerm   int
	Seed      uint64
	// CanonicalOrder sorts input by DocID so the surviving representative does
	// not depend on how the input was enumerated.
	CanonicalOrder bool
}

// DefaultOptions returns threshold 0.9 with 128 permutations in canonical order.
func DefaultOptions() Options {
	return Options{Threshold: 0.9, NumPerm: 128, Seed: 1, CanonicalOrder: true}
}

// Detector is configured once and may run FilterDuplicates many times.
type Detector struct {
	opts   Options
	hasher *Hasher
	bands  int
	rows   int
	logger *zap.Logger
}

// New validates opts and precomputes the permutations and band layout.
func New(opts Options, logger *zap.Logger) (*Detector, error) {
	if opts.Threshold <= 0 || opts.Threshold > 1 {
		return nil, fmt.Errorf("dedup.threshold must be in (0, 1], got %v", opts.Threshold)
	}
	if opts.NumPerm < 2 {
		return nil, errors.New("dedup.num_perm must be >= 2")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	bands, rows := Bands(opts.Threshold, opts.NumPerm)
	return &Detector{
		opts:   opts,
		hasher: NewHasher(opts.NumPerm, opts.Seed),
		bands:  bands,
		rows:   rows,
		logger: logger.Named("dedup"),
	}, nil
}

// Layout returns the LSH band count and rows per band.
func (d *Detector) Layout() (bands, rows int) {
	return d.bands, d.rows
}

// FilterDuplicates streams docs through a fresh LSH index. A document whose
// signature collides in any band with an accepted one, and whose estimated
// Jaccard similarity with it reaches the threshold, is dropped. Documents
// without tokens always survive.
func (d *Detector) FilterDuplicates(docs []document.ParsedDocument) []document.ParsedDocument {
	input := docs
	if d.opts.CanonicalOrder {
		input = slices.Clone(docs)
		slices.SortStableFunc(input, func(a, b document.ParsedDocument) int {
			return strings.Compare(a.DocID(), b.DocID())
		})
	}

	index := newLSHIndex(d.bands, d.rows)
	kept := make([]document.ParsedDocument, 0, len(input))
	for _, doc := range input {
		tokens := doc.TokenSet()
		if len(tokens) == 0 {
			kept = append(kept, doc)
			metrics.ObserveDedup("empty")
			continue
		}
		sig := d.hasher.Sign(tokens)
		if match, ok := d.findMatch(index, sig); ok {
			metrics.ObserveDedup("duplicate")
			d.logger.Debug("near duplicate dropped",
				zap.String("url", doc.URL),
				zap.String("representative", kept[match].URL))
			continue
		}
		index.insert(sig, len(kept))
		kept = append(kept, doc)
		metrics.ObserveDedup("kept")
	}
	d.logger.Info("dedup finished",
		zap.Int("input", len(docs)),
		zap.Int("kept", len(kept)),
		zap.Int("bands", d.bands),
		zap.Int("rows", d.rows))
	return kept
}

// findMatch returns the kept position of the first accepted signature similar to sig.
func (d *Detector) findMatch(index *lshIndex, sig Signature) (int, bool) {
	for _, id := range index.candidates(sig) {
		if Jaccard(sig, index.sigs[id]) >= d.opts.Threshold {
			return index.refs[id], true
		}
	}
	return 0, false
}
