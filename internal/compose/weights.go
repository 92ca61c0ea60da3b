package compose

import "math"

// Weights turns masked-inference scores into normalized channel weights.
// Each score is compared against the unmasked baseline, negative deltas are
// clamped to zero, and the remainder is min-max normalized to [0, 1].
//
// Two guarded cases: an all-equal delta vector (including all-zero) becomes
// a uniform 1/N vector, and a non-finite maximum collapses the whole vector
// to empty. Callers treat an empty vector as an all-zero heatmap.
func Weights(masked []float32, original float32) []float32 {
	if len(masked) == 0 {
		return nil
	}

	raw := make([]float32, len(masked))
	for i, s := range masked {
		d := s - original
		if d < 0 {
			d = 0
		}
		raw[i] = d
	}

	max := raw[0]
	for _, v := range raw[1:] {
		if math.IsNaN(float64(v)) {
			max = v
			break
		}
		if v > max {
			max = v
		}
	}
	if math.IsNaN(float64(max)) || math.IsInf(float64(max), 0) {
		return nil
	}

	min := raw[0]
	for _, v := range raw[1:] {
		if v < min {
			min = v
		}
	}

	rng := max - min
	if rng == 0 {
		uniform := 1 / float32(len(raw))
		for i := range raw {
			raw[i] = uniform
		}
		return raw
	}

	for i, v := range raw {
		raw[i] = (v - min) / rng
	}
	return raw
}
