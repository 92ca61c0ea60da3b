package classifier

import (
	"context"
	"errors"
	"testing"

	"github.com/11ea/xaipneumonia/internal/config"
	"github.com/11ea/xaipneumonia/internal/tensor"
)

type fakeProvider struct {
	fn func(batch []float32, dims [4]int64) (map[string][]float32, error)
}

func (f *fakeProvider) RunInference(ctx context.Context, batch []float32, dims [4]int64) (map[string][]float32, error) {
	return f.fn(batch, dims)
}

func testMeta() *config.ModelMetadata {
	return &config.ModelMetadata{
		InputName:           "input",
		InputSize:           4,
		Classes:             []string{"Normal", "Bacterial Pneumonia", "Viral Pneumonia"},
		ClassificationLayer: "classification",
		FeatureLayers:       map[string]config.LayerDims{"conv5": {SideLen: 2, Channels: 3}},
		BatchSize:           8,
		Normalization:       config.Normalization{Scale: 1.0 / 255, Std: [3]float32{1, 1, 1}},
	}
}

func TestClassify(t *testing.T) {
	meta := testMeta()
	provider := &fakeProvider{fn: func(batch []float32, dims [4]int64) (map[string][]float32, error) {
		if dims != ([4]int64{1, 3, 4, 4}) {
			t.Errorf("unexpected dims %v", dims)
		}
		return map[string][]float32{
			"classification": {1.0, 3.0, 2.0},
			"conv5":          make([]float32, 3*2*2),
		}, nil
	}}

	pred, err := Classify(context.Background(), provider, make([]float32, 3*4*4), meta)
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}

	if pred.ClassIndex != 1 {
		t.Errorf("Expected class index 1, got %d", pred.ClassIndex)
	}
	if pred.Class != "Bacterial Pneumonia" {
		t.Errorf("Expected Bacterial Pneumonia, got %s", pred.Class)
	}

	sum := float32(0)
	for _, p := range pred.Probabilities {
		sum += p
	}
	if sum < 0.999 || sum > 1.001 {
		t.Errorf("probabilities sum to %v, want 1", sum)
	}
	if pred.Confidence <= pred.Probabilities["Normal"] {
		t.Error("winning class must carry the highest probability")
	}
	if pred.Confidence != pred.Probabilities["Bacterial Pneumonia"] {
		t.Error("Confidence must match the winning probability")
	}

	if _, ok := pred.Raw["conv5"]; !ok {
		t.Error("raw outputs must keep the feature layers")
	}
}

func TestClassifyMissingFeatureLayer(t *testing.T) {
	provider := &fakeProvider{fn: func(batch []float32, dims [4]int64) (map[string][]float32, error) {
		return map[string][]float32{"classification": {0.5, 0.2, 0.3}}, nil
	}}

	_, err := Classify(context.Background(), provider, make([]float32, 3*4*4), testMeta())
	if err == nil {
		t.Fatal("expected an error for the missing feature layer")
	}
	var infErr *InferenceError
	if !errors.As(err, &infErr) {
		t.Fatalf("expected InferenceError, got %T", err)
	}
}

func TestClassifyFeatureLayerShape(t *testing.T) {
	provider := &fakeProvider{fn: func(batch []float32, dims [4]int64) (map[string][]float32, error) {
		return map[string][]float32{
			"classification": {0.5, 0.2, 0.3},
			"conv5":          make([]float32, 5), // want 3*2*2 = 12
		}, nil
	}}

	_, err := Classify(context.Background(), provider, make([]float32, 3*4*4), testMeta())
	if err == nil {
		t.Fatal("expected a shape error")
	}
	var shapeErr *tensor.ShapeError
	if !errors.As(err, &shapeErr) {
		t.Fatalf("expected ShapeError, got %T", err)
	}
	if shapeErr.Want != 12 || shapeErr.Got != 5 {
		t.Errorf("Expected want=12 got=5, have want=%d got=%d", shapeErr.Want, shapeErr.Got)
	}
}

func TestSoftmaxStability(t *testing.T) {
	// Large logits must not overflow to NaN.
	probs := softmax([]float32{1000, 1001, 999})
	sum := float32(0)
	for _, p := range probs {
		if p != p {
			t.Fatal("softmax produced NaN")
		}
		sum += p
	}
	if sum < 0.999 || sum > 1.001 {
		t.Errorf("softmax sums to %v", sum)
	}
	if probs[1] <= probs[0] || probs[1] <= probs[2] {
		t.Error("argmax order not preserved")
	}
}
