package selector

import (
	"math"
	"sort"

	"github.com/11ea/xaipneumonia/internal/tensor"
)

// Score pairs a channel index with its mean absolute activation.
type Score struct {
	Index      int
	Activation float64
}

// Select picks the channels worth perturbing. With p >= 1 it takes the
// floor(p) strongest channels, clamped to the channel count. With p < 1 it
// takes the smallest strongest-first prefix whose activation mass reaches
// p of the total.
//
// A fully zero feature map yields an empty selection; callers short-circuit
// that into an all-zero heatmap instead of failing. Ties keep ascending
// channel order, and the returned scores are re-sorted by index so the mask
// and batch layout downstream is deterministic.
func Select(fm *tensor.FeatureMap, p float64) []Score {
	scores := make([]Score, fm.Channels)
	planeLen := float64(fm.PlaneLen())
	total := 0.0

	for c := 0; c < fm.Channels; c++ {
		sum := 0.0
		for _, v := range fm.Plane(c) {
			sum += math.Abs(float64(v))
		}
		scores[c] = Score{Index: c, Activation: sum / planeLen}
		total += scores[c].Activation
	}

	if total == 0 {
		return nil
	}

	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Activation > scores[j].Activation
	})

	var picked []Score
	if p >= 1 {
		k := int(math.Floor(p))
		if k > len(scores) {
			k = len(scores)
		}
		picked = scores[:k]
	} else {
		target := p * total
		cum := 0.0
		for i, s := range scores {
			cum += s.Activation
			if cum >= target {
				picked = scores[:i+1]
				break
			}
		}
		if picked == nil {
			// Rounding left the target unreached, take everything.
			picked = scores
		}
	}

	out := make([]Score, len(picked))
	copy(out, picked)
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// Indices extracts the channel indices of a selection, in order.
func Indices(scores []Score) []int {
	idx := make([]int, len(scores))
	for i, s := range scores {
		idx[i] = s.Index
	}
	return idx
}
