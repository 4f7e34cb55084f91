package dedup

import (
	"math"
	"math/bits"
	"math/rand/v2"

	"github.com/cespare/xxhash/v2"
)

// mersenne61 is the prime 2^61-1 used by the universal hash family.
const mersenne61 = (1 << 61) - 1

// Signature is a MinHash sketch: the minimum permuted hash per permutation.
type Signature []uint64

// Hasher computes MinHash signatures with a fixed set of permutations.
// It is immutable and safe for concurrent use.
type Hasher struct {
	a []uint64
	b []uint64
}

// NewHasher draws numPerm permutations (a*x + b) mod (2^61-1) from seed.
func NewHasher(numPerm int, seed uint64) *Hasher {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	h := &Hasher{a: make([]uint64, numPerm), b: make([]uint64, numPerm)}
	for i := range numPerm {
		h.a[i] = 1 + rng.Uint64N(mersenne61-1)
		h.b[i] = rng.Uint64N(mersenne61)
	}
	return h
}

// NumPerm reports the signature length.
func (h *Hasher) NumPerm() int {
	return len(h.a)
}

// Sign returns the signature of a token set. The empty set yields a signature
// of MaxUint64 values.
func (h *Hasher) Sign(tokens map[string]struct{}) Signature {
	sig := make(Signature, len(h.a))
	for i := range sig {
		sig[i] = math.MaxUint64
	}
	for tok := range tokens {
		x := xxhash.Sum64String(tok) % mersenne61
		for i := range sig {
			v := addMod(mulMod(h.a[i], x), h.b[i])
			if v < sig[i] {
				sig[i] = v
			}
		}
	}
	return sig
}

// Jaccard estimates the Jaccard similarity of the sets behind two signatures.
func Jaccard(x, y Signature) float64 {
	if len(x) == 0 || len(x) != len(y) {
		return 0
	}
	same := 0
	for i := range x {
		if x[i] == y[i] {
			same++
		}
	}
	return float64(same) / float64(len(x))
}

// mulMod returns a*b mod 2^61-1 for a, b < 2^61-1.
func mulMod(a, b uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	// 2^64 = 8 (mod 2^61-1)
	r := (lo & mersenne61) + (lo >> 61) + (hi << 3)
	r = (r & mersenne61) + (r >> 61)
	if r >= mersenne61 {
		r -= mersenne61
	}
	return r
}

func addMod(a, b uint64) uint64 {
	r := a + b
	if r >= mersenne61 {
		r -= mersenne61
	}
	return r
}
