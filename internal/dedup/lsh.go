package dedup

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"
)

const integrationStep = 0.001

// Bands picks the (bands, rows) split of numPerm that minimizes the equally
// weighted false positive and false negative probability at threshold.
func Bands(threshold float64, numPerm int) (bands, rows int) {
	minErr := math.Inf(1)
	for b := 1; b <= numPerm; b++ {
		for r := 1; r <= numPerm/b; r++ {
			fp := integrate(func(s float64) float64 {
				return 1 - math.Pow(1-math.Pow(s, float64(r)), float64(b))
			}, 0, threshold)
			fn := integrate(func(s float64) float64 {
				return math.Pow(1-math.Pow(s, float64(r)), float64(b))
			}, threshold, 1)
			if e := 0.5*fp + 0.5*fn; e < minErr {
				minErr = e
				bands, rows = b, r
			}
		}
	}
	return bands, rows
}

func integrate(f func(float64) float64, lo, hi float64) float64 {
	if hi <= lo {
		return 0
	}
	area := 0.0
	for x := lo; x < hi; x += integrationStep {
		next := math.Min(x+integrationStep, hi)
		area += (f(x) + f(next)) / 2 * (next - x)
	}
	return area
}

// lshIndex buckets signatures by band. It is not safe for concurrent use.
type lshIndex struct {
	bands   int
	rows    int
	buckets []map[uint64][]int
	sigs    []Signature
	// refs maps an index id to the caller's position for that signature.
	refs []int
}

func newLSHIndex(bands, rows int) *lshIndex {
	buckets := make([]map[uint64][]int, bands)
	for i := range buckets {
		buckets[i] = make(map[uint64][]int)
	}
	return &lshIndex{bands: bands, rows: rows, buckets: buckets}
}

// candidates returns the ids of stored signatures sharing at least one band with sig.
func (l *lshIndex) candidates(sig Signature) []int {
	seen := make(map[int]struct{})
	var out []int
	for band := range l.bands {
		for _, id := range l.buckets[band][l.bandKey(sig, band)] {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

func (l *lshIndex) insert(sig Signature, ref int) int {
	id := len(l.sigs)
	l.sigs = append(l.sigs, sig)
	l.refs = append(l.refs, ref)
	for band := range l.bands {
		key := l.bandKey(sig, band)
		l.buckets[band][key] = append(l.buckets[band][key], id)
	}
	return id
}

func (l *lshIndex) bandKey(sig Signature, band int) uint64 {
	buf := make([]byte, 8*l.rows)
	start := band * l.rows
	for i := range l.rows {
		binary.LittleEndian.PutUint64(buf[i*8:], sig[start+i])
	}
	return xxhash.Sum64(buf)
}
