package vectorstore

import "github.com/parchment-ai/corpusd/internal/domain"

// DefaultDedupThreshold is the cosine similarity above which two chunks in
// the same write batch are considered redundant.
const DefaultDedupThreshold = 0.95

// DedupBatch returns the indices of vectors that survive greedy in-batch
// near-duplicate suppression. Each vector is compared against the vectors
// already accepted in this batch, not against the whole collection; the first
// occurrence wins. Pairwise comparison is O(n^2) which is acceptable at
// expected batch sizes of tens to low hundreds of chunks.
func DedupBatch(vectors [][]float32, threshold float64) []int {
	if threshold <= 0 {
		threshold = DefaultDedupThreshold
	}

	keep := make([]int, 0, len(vectors))
	for i, v := range vectors {
		dup := false
		for _, j := range keep {
			if domain.CosineSimilarity(v, vectors[j]) >= threshold {
				dup = true
				break
			}
		}
		if !dup {
			keep = append(keep, i)
		}
	}
	return keep
}
