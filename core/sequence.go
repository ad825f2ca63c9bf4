package core

import (
	"math/rand/v2"
	"slices"
)

// Sequence sizes used by the sorting and searching boards.
const (
	DefaultSortSize   = 40
	DefaultSearchSize = 48
)

// GenerateSequence returns n values drawn uniformly from [10, 90).
func GenerateSequence(rng *rand.Rand, n int) []int {
	out := make([]int, max(n, 0))
	for i := range out {
		out[i] = 10 + rng.IntN(80)
	}
	return out
}

// GenerateSortedSequence returns n values drawn from [1, 81), ascending.
func GenerateSortedSequence(rng *rand.Rand, n int) []int {
	out := make([]int, max(n, 0))
	for i := range out {
		out[i] = 1 + rng.IntN(80)
	}
	slices.Sort(out)
	return out
}

// NewRand returns a PCG-backed generator. Equal seeds give equal sequences.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// IsSorted reports whether values is in non-decreasing order.
func IsSorted(values []int) bool {
	return slices.IsSorted(values)
}
