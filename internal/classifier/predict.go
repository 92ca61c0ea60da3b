package classifier

import (
	"context"
	"fmt"
	"math"

	"github.com/11ea/xaipneumonia/internal/config"
	"github.com/11ea/xaipneumonia/internal/tensor"
)

// Prediction is the result of the unmasked forward pass. Raw keeps every
// output layer exactly as the model produced it; the heatmap pipeline reads
// its baseline scores and feature maps from there instead of running the
// model again.
type Prediction struct {
	ClassIndex    int
	Class         string
	Confidence    float32
	Probabilities map[string]float32
	Raw           map[string][]float32
}

// Classify runs a single sample through the provider and decodes the
// classification head. Every configured feature layer is validated against
// its declared dimensions here, so later stages can trust the shapes.
func Classify(ctx context.Context, p Provider, input []float32, meta *config.ModelMetadata) (*Prediction, error) {
	size := int64(meta.InputSize)
	outputs, err := p.RunInference(ctx, input, [4]int64{1, 3, size, size})
	if err != nil {
		return nil, err
	}

	logits, ok := outputs[meta.ClassificationLayer]
	if !ok || len(logits) == 0 {
		return nil, &InferenceError{
			Op:  "outputs",
			Err: fmt.Errorf("layer %q missing from model outputs", meta.ClassificationLayer),
		}
	}
	for name, d := range meta.FeatureLayers {
		plane, ok := outputs[name]
		if !ok {
			return nil, &InferenceError{
				Op:  "outputs",
				Err: fmt.Errorf("feature layer %q missing from model outputs", name),
			}
		}
		want := d.Channels * d.SideLen * d.SideLen
		if len(plane) != want {
			return nil, &tensor.ShapeError{Context: "feature layer " + name, Want: want, Got: len(plane)}
		}
	}

	probs := softmax(logits)
	maxIdx := 0
	for i, v := range probs {
		if v > probs[maxIdx] {
			maxIdx = i
		}
	}

	className := fmt.Sprintf("class %d", maxIdx)
	if maxIdx < len(meta.Classes) {
		className = meta.Classes[maxIdx]
	}

	probMap := make(map[string]float32, len(meta.Classes))
	for i, name := range meta.Classes {
		if i < len(probs) {
			probMap[name] = probs[i]
		}
	}

	return &Prediction{
		ClassIndex:    maxIdx,
		Class:         className,
		Confidence:    probs[maxIdx],
		Probabilities: probMap,
		Raw:           outputs,
	}, nil
}

// softmax converts logits to probabilities, shifted by the max for
// numerical stability.
func softmax(logits []float32) []float32 {
	max := logits[0]
	for _, v := range logits[1:] {
		if v > max {
			max = v
		}
	}

	out := make([]float32, len(logits))
	sum := float64(0)
	for i, v := range logits {
		e := math.Exp(float64(v - max))
		out[i] = float32(e)
		sum += e
	}
	for i := range out {
		out[i] = float32(float64(out[i]) / sum)
	}
	return out
}
