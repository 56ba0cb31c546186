package character

import "math"

// CosineSimilarity returns the cosine of the angle between a and b in
// [-1, 1]. Vectors of different length or with zero norm score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	denom := math.Sqrt(na * nb)
	if denom == 0 {
		return 0
	}
	return max(-1, min(1, dot/denom))
}
