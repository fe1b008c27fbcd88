package usecase

import (
	"math"
	"sort"
)

// Scoring weights for the answer confidence blend. The best hit carries
// most of the signal; the mean of the top hits demotes confidence when a
// single lucky match has no support from the rest of the retrieval.
const (
	topSimilarityWeight  = 0.65
	meanSimilarityWeight = 0.35
	agreementDepth       = 3

	// escalationEpsilon widens the escalation band above the confidence
	// threshold: an answer that barely clears the bar is still worth a
	// human look when budget remains.
	escalationEpsilon = 5
)

// clampUnit clamps a cosine similarity into [0, 1]. Negative similarity
// means anti-correlated content and carries no answering signal.
func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// confidenceScore turns retrieval similarities into a 0..100 confidence.
// Empty retrieval scores zero.
func confidenceScore(similarities []float64) int {
	if len(similarities) == 0 {
		return 0
	}

	sims := make([]float64, len(similarities))
	for i, s := range similarities {
		sims[i] = clampUnit(s)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(sims)))

	depth := agreementDepth
	if depth > len(sims) {
		depth = len(sims)
	}
	var sum float64
	for _, s := range sims[:depth] {
		sum += s
	}
	mean := sum / float64(depth)

	blended := topSimilarityWeight*sims[0] + meanSimilarityWeight*mean
	return int(math.Round(clampUnit(blended) * 100))
}

// noveltyScore turns the best canonical similarity into a 0..100 novelty.
// 100 means nothing similar was ever answered before.
func noveltyScore(bestCanonicalSimilarity float64) int {
	return 100 - int(math.Round(clampUnit(bestCanonicalSimilarity)*100))
}
