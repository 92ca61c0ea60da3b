package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LayerDims describes one convolutional layer exposed as a model output:
// a square plane side length and a channel count.
type LayerDims struct {
	SideLen  int `json:"sideLen"`
	Channels int `json:"channels"`
}

// Normalization holds the preprocessing constants baked into the model at
// training time. Pixel values are scaled first, then shifted per channel:
// value = (pixel*Scale - Mean[c]) / Std[c].
type Normalization struct {
	Scale float32    `json:"scale"`
	Mean  [3]float32 `json:"mean"`
	Std   [3]float32 `json:"std"`
}

// ModelMetadata is the sidecar record shipped next to each .onnx file.
// It names the graph inputs and outputs so the pipeline never has to
// introspect the model itself.
type ModelMetadata struct {
	Name                string               `json:"name"`
	InputName           string               `json:"input_name"`
	InputSize           int                  `json:"input_size"`
	Classes             []string             `json:"classes"`
	ClassificationLayer string               `json:"classification_layer"`
	FeatureLayers       map[string]LayerDims `json:"feature_layers"`
	BatchSize           int                  `json:"batch_size"`
	Normalization       Normalization        `json:"normalization"`
}

// LoadMetadata reads and validates a metadata sidecar. Missing optional
// fields get the defaults the training exporter relies on.
func LoadMetadata(path string) (*ModelMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var meta ModelMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	meta.applyDefaults()
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (m *ModelMetadata) applyDefaults() {
	if m.InputName == "" {
		m.InputName = "input"
	}
	if m.InputSize == 0 {
		m.InputSize = 224
	}
	if m.ClassificationLayer == "" {
		m.ClassificationLayer = "classification"
	}
	if m.BatchSize == 0 {
		m.BatchSize = 8
	}
	if m.Normalization.Scale == 0 {
		m.Normalization.Scale = 1.0 / 255.0
	}
	if m.Normalization.Std == ([3]float32{}) {
		m.Normalization.Std = [3]float32{1, 1, 1}
	}
}

// Validate fails fast on anything that would only blow up mid-pipeline:
// zero layer dimensions, an empty class list, a degenerate batch size.
func (m *ModelMetadata) Validate() error {
	if m.InputSize <= 0 {
		return &ValidationError{Field: "input_size", Reason: "must be positive"}
	}
	if m.BatchSize <= 0 {
		return &ValidationError{Field: "batch_size", Reason: "must be positive"}
	}
	if len(m.Classes) == 0 {
		return &ValidationError{Field: "classes", Reason: "class list is empty"}
	}
	if m.ClassificationLayer == "" {
		return &ValidationError{Field: "classification_layer", Reason: "must be named"}
	}
	if len(m.FeatureLayers) == 0 {
		return &ValidationError{Field: "feature_layers", Reason: "at least one layer is required"}
	}
	for name, dims := range m.FeatureLayers {
		if dims.SideLen <= 0 || dims.Channels <= 0 {
			return &ValidationError{
				Field:  "feature_layers." + name,
				Reason: fmt.Sprintf("invalid dims %dx%d", dims.Channels, dims.SideLen),
			}
		}
		if name == m.ClassificationLayer {
			return &ValidationError{
				Field:  "feature_layers." + name,
				Reason: "collides with the classification layer",
			}
		}
	}
	for i, s := range m.Normalization.Std {
		if s == 0 {
			return &ValidationError{
				Field:  "normalization.std",
				Reason: fmt.Sprintf("channel %d is zero", i),
			}
		}
	}
	return nil
}

// FeatureLayerNames returns the configured layer names in a stable order.
func (m *ModelMetadata) FeatureLayerNames() []string {
	names := make([]string, 0, len(m.FeatureLayers))
	for name := range m.FeatureLayers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MetadataPathFor derives the sidecar path for a model file:
// chest_cdn.onnx -> chest_cdn.json.
func MetadataPathFor(modelPath string) string {
	ext := filepath.Ext(modelPath)
	return strings.TrimSuffix(modelPath, ext) + ".json"
}
