package rpn

import "math/rand"

// Sampler is the seedable random source behind foreground/background
// subsampling.
//
// Each assigner owns its own Sampler so that no process-global random state
// is shared between images; pinning the seed makes assignment fully
// reproducible across runs.
type Sampler struct {
	rng *rand.Rand
}

// NewSampler creates a sampler with an explicit seed.
func NewSampler(seed int64) *Sampler {
	return &Sampler{rng: rand.New(rand.NewSource(seed))}
}

// Subsample returns a uniformly chosen subset of size keep, without
// replacement. The input slice is not modified. When keep >= len(indices)
// the input is returned as-is.
func (s *Sampler) Subsample(indices []int, keep int) []int {
	if keep >= len(indices) {
		return indices
	}
	if keep <= 0 {
		return nil
	}
	shuffled := make([]int, len(indices))
	copy(shuffled, indices)
	s.rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	return shuffled[:keep]
}

// Choice returns n draws from indices with replacement.
func (s *Sampler) Choice(indices []int, n int) []int {
	if len(indices) == 0 || n <= 0 {
		return nil
	}
	out := make([]int, n)
	for i := range out {
		out[i] = indices[s.rng.Intn(len(indices))]
	}
	return out
}
