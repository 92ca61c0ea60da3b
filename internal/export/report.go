package export

import (
	"encoding/json"
	"os"
	"time"

	"github.com/11ea/xaipneumonia/internal/analyzer"
	"github.com/11ea/xaipneumonia/internal/classifier"
	"github.com/11ea/xaipneumonia/internal/config"
	"github.com/11ea/xaipneumonia/internal/engine"
)

// Report is the machine-readable record of one explanation run, written
// next to the rendered overlays.
type Report struct {
	GeneratedAt string            `json:"generatedAt"`
	Build       string            `json:"build,omitempty"`
	Model       string            `json:"model"`
	Input       string            `json:"input"`
	TargetClass int               `json:"targetClass"`
	Parameters  ParametersReport  `json:"parameters"`
	Prediction  PredictionReport  `json:"prediction"`
	Layers      []LayerReport     `json:"layers"`
	Metrics     MetricsReport     `json:"metrics"`
}

type ParametersReport struct {
	SelectionParam float64 `json:"selectionParam"`
	BatchSize      int     `json:"batchSize"`
	Workers        int     `json:"workers"`
	Colormap       string  `json:"colormap"`
	InputSize      int     `json:"inputSize"`
}

type PredictionReport struct {
	Class         string             `json:"class"`
	ClassIndex    int                `json:"classIndex"`
	Confidence    float32            `json:"confidence"`
	Probabilities map[string]float32 `json:"probabilities"`
}

type LayerReport struct {
	Name     string            `json:"name"`
	Channels int               `json:"channels"`
	Selected int               `json:"selected"`
	Files    map[string]string `json:"files,omitempty"`
	Regions  []RegionReport    `json:"regions,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// RegionReport is one localized finding on the classification heatmap.
type RegionReport struct {
	X    int     `json:"x"`
	Y    int     `json:"y"`
	W    int     `json:"w"`
	H    int     `json:"h"`
	Peak float32 `json:"peak"`
	Mass float64 `json:"mass"`
}

type MetricsReport struct {
	TotalMs              int64 `json:"totalMs"`
	MaskGenerationMs     int64 `json:"maskGenerationMs"`
	HeatmapComputationMs int64 `json:"heatmapComputationMs"`
	InferenceCalls       int   `json:"inferenceCalls"`
	InferenceSamples     int   `json:"inferenceSamples"`
}

// BuildReport assembles the report for a completed run. files maps feature
// layer to output layer to the written overlay path; regions carries the
// localized findings per feature layer.
func BuildReport(res *engine.Result, pred *classifier.Prediction, meta *config.ModelMetadata, cfg *config.Config, input string, files map[string]map[string]string, regions map[string][]analyzer.Region) *Report {
	r := &Report{
		GeneratedAt: time.Now().Format(time.RFC3339),
		Build:       cfg.BuildVersion,
		Model:       meta.Name,
		Input:       input,
		TargetClass: res.TargetClass,
		Parameters: ParametersReport{
			SelectionParam: cfg.SelectionParam,
			BatchSize:      cfg.BatchSize,
			Workers:        cfg.Workers,
			Colormap:       cfg.Colormap,
			InputSize:      meta.InputSize,
		},
		Prediction: PredictionReport{
			Class:         pred.Class,
			ClassIndex:    pred.ClassIndex,
			Confidence:    pred.Confidence,
			Probabilities: pred.Probabilities,
		},
		Metrics: MetricsReport{
			TotalMs:              res.Metrics.Total.Milliseconds(),
			MaskGenerationMs:     res.Metrics.MaskGeneration.Milliseconds(),
			HeatmapComputationMs: res.Metrics.HeatmapComputation.Milliseconds(),
			InferenceCalls:       res.Metrics.InferenceCalls,
			InferenceSamples:     res.Metrics.InferenceSamples,
		},
	}

	for _, name := range meta.FeatureLayerNames() {
		lr := LayerReport{
			Name:     name,
			Channels: meta.FeatureLayers[name].Channels,
		}
		if stats, ok := res.Stats[name]; ok {
			lr.Selected = len(stats)
			lr.Files = files[name]
			for _, reg := range regions[name] {
				lr.Regions = append(lr.Regions, RegionReport{
					X:    reg.Rect.Min.X,
					Y:    reg.Rect.Min.Y,
					W:    reg.Rect.Dx(),
					H:    reg.Rect.Dy(),
					Peak: reg.Peak,
					Mass: reg.Mass,
				})
			}
		} else if err, failed := res.LayerErrors[name]; failed {
			lr.Error = err.Error()
		} else {
			continue // layer not part of this run
		}
		r.Layers = append(r.Layers, lr)
	}
	return r
}

// WriteReport writes the report as indented JSON.
func WriteReport(path string, r *Report) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ReadReport reads a report back, used by tooling that aggregates runs.
func ReadReport(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
