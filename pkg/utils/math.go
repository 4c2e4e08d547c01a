package utils

import "math"

// NormalizeL2 normalizes the slice in place to unit L2 norm.
// If the norm is zero, the slice is unchanged.
func NormalizeL2(x []float32) {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := float32(1.0 / math.Sqrt(sum))
	for i := range x {
		x[i] *= norm
	}
}

// Clamp01 limits f to [0, 1].
func Clamp01(f float64) float64 {
	return math.Max(0, math.Min(1, f))
}

// Round3 rounds f to three decimals, the precision scores are reported with.
func Round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
