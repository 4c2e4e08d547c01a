package vector

import "math"

// L2Distance returns the Euclidean distance between a and b, or +Inf when lengths differ.
func L2Distance(a, b []float32) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// ScoreFromDistance maps a distance to a similarity in (0, 1]: 1 / (1 + d).
func ScoreFromDistance(d float64) float64 {
	if d < 0 {
		d = 0
	}
	return 1 / (1 + d)
}
