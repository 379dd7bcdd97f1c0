package combine

import "math/rand/v2"

// sampleIndices draws k distinct indices from [0, n) with a generator seeded
// from seed alone, so the same (n, k, seed) always yields the same indices
// in the same order. When k >= n every index is returned in order.
func sampleIndices(n, k int, seed int64) []int {
	if k >= n {
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out
	}

	rng := rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15))

	// Partial Fisher-Yates over an index permutation.
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	for i := 0; i < k; i++ {
		j := i + rng.IntN(n-i)
		perm[i], perm[j] = perm[j], perm[i]
	}
	return perm[:k]
}

// Picker chooses an index in [0, n). n is always > 0.
type Picker func(n int) int

// unseededPicker draws from the runtime-seeded global source, so repeated
// runs over the same sample surface different candidates.
func unseededPicker(n int) int { return rand.IntN(n) }
