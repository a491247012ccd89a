package vector

import "math"

// CosineSimilarity calculates cosine similarity between two float32
// vectors. Returns a value in [-1, 1]; mismatched lengths and zero
// vectors score 0. Accumulation is done in float64 for precision.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
