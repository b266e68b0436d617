package textutil

import "sort"

// CosineSimilarity computes the cosine similarity between two fingerprints.
// Returns 0 if either fingerprint is nil or has zero norm.
func CosineSimilarity(a, b *Fingerprint) float64 {
	if a == nil || b == nil || a.norm == 0 || b.norm == 0 {
		return 0
	}
	var dot float64
	for token, count := range a.tokens {
		if other, ok := b.tokens[token]; ok {
			dot += count * other
		}
	}
	if dot == 0 {
		return 0
	}
	return dot / (a.norm * b.norm)
}

// RankByQuery returns the indexes of titles ordered by similarity to query,
// best first. Ties keep their original order, so a site's own ranking wins
// when the query does not discriminate.
func RankByQuery(query string, titles []string) []int {
	q := NewFingerprint(query)
	scores := make([]float64, len(titles))
	order := make([]int, len(titles))
	for i, title := range titles {
		order[i] = i
		scores[i] = CosineSimilarity(q, NewFingerprint(title))
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})
	return order
}
