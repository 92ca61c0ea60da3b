package compose

import (
	"fmt"

	"github.com/11ea/xaipneumonia/internal/masks"
	"github.com/11ea/xaipneumonia/internal/system"
	"github.com/11ea/xaipneumonia/internal/tensor"
)

// Heatmap is a square saliency plane with values normalized to [0, 1].
// Channels records how many feature channels contributed.
type Heatmap struct {
	Data     []float32
	Side     int
	Channels int
}

// Zero returns an all-zero heatmap, the documented result for runs where
// no channel carries signal.
func Zero(side int) *Heatmap {
	return &Heatmap{Data: make([]float32, side*side), Side: side}
}

// Compose accumulates the weighted activation planes of the selected
// channels into a single normalized heatmap. The planes are re-derived from
// the raw feature map in float precision; the quantized 8-bit masks exist
// only for the inference pass and never touch the composition.
func Compose(fm *tensor.FeatureMap, indices []int, weights []float32, targetSide int) (*Heatmap, error) {
	if targetSide <= 0 {
		return nil, fmt.Errorf("composition: target side %d", targetSide)
	}
	if len(indices) == 0 || len(weights) == 0 {
		return Zero(targetSide), nil
	}
	if len(weights) != len(indices) {
		return nil, &tensor.ShapeError{Context: "composition weights", Want: len(indices), Got: len(weights)}
	}
	for _, idx := range indices {
		if idx < 0 || idx >= fm.Channels {
			return nil, fmt.Errorf("composition: channel %d outside %d channels", idx, fm.Channels)
		}
	}

	n := targetSide * targetSide
	acc := make([]float32, n)

	norm := system.GetPlane(fm.PlaneLen())
	defer system.PutPlane(norm)
	up := system.GetPlane(n)
	defer system.PutPlane(up)

	for k, idx := range indices {
		w := weights[k]
		if w == 0 {
			continue
		}
		masks.ActivationPlane(norm, fm.Plane(idx))
		masks.ResizePlaneInto(up, norm, fm.Side, targetSide)
		for i, v := range up {
			acc[i] += v * w
		}
	}

	min, max := acc[0], acc[0]
	for _, v := range acc {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	hm := &Heatmap{Data: acc, Side: targetSide, Channels: len(indices)}
	rng := max - min
	if rng == 0 {
		for i := range acc {
			acc[i] = 0
		}
		return hm, nil
	}
	for i, v := range acc {
		acc[i] = (v - min) / rng
	}
	return hm, nil
}
