package masks

// ActivationPlane writes the ReLU'd, peak-normalized copy of a raw channel
// plane into dst and returns the peak of the result: 1 for any live channel,
// 0 for a dead one. When the post-ReLU maximum is zero the division is
// skipped and the plane stays all zeros.
func ActivationPlane(dst, raw []float32) float32 {
	max := float32(0)
	for i, v := range raw {
		if v < 0 {
			v = 0
		}
		dst[i] = v
		if v > max {
			max = v
		}
	}

	if max <= 0 {
		return 0
	}

	inv := 1 / max
	for i := range dst {
		dst[i] *= inv
	}
	return 1
}
