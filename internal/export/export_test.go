package export

import (
	"encoding/csv"
	"image"
	"os"
	"testing"
	"time"

	"github.com/11ea/xaipneumonia/internal/analyzer"
	"github.com/11ea/xaipneumonia/internal/classifier"
	"github.com/11ea/xaipneumonia/internal/config"
	"github.com/11ea/xaipneumonia/internal/engine"
)

func testMetadata() *config.ModelMetadata {
	return &config.ModelMetadata{
		Name:                "chest_cdn",
		InputName:           "input",
		InputSize:           224,
		Classes:             []string{"Normal", "Bacterial Pneumonia", "Viral Pneumonia"},
		ClassificationLayer: "classification",
		FeatureLayers: map[string]config.LayerDims{
			"conv_a": {SideLen: 7, Channels: 4},
			"conv_b": {SideLen: 14, Channels: 8},
		},
		BatchSize:     8,
		Normalization: config.Normalization{Scale: 1.0 / 255.0, Std: [3]float32{1, 1, 1}},
	}
}

func testResult() *engine.Result {
	return &engine.Result{
		Stats: map[string][]engine.ChannelStat{
			"conv_a": {
				{
					Channel:    2,
					Activation: 0.75,
					Importance: 1,
					Score:      map[string]float32{"classification": 0.9},
					Weight:     map[string]float32{"classification": 1},
				},
				{
					Channel:    3,
					Activation: 0.25,
					Importance: 0,
					Score:      map[string]float32{"classification": 0.1},
					Weight:     map[string]float32{"classification": 0},
				},
			},
		},
		LayerErrors: map[string]error{
			"conv_b": os.ErrDeadlineExceeded,
		},
		TargetClass: 1,
		Metrics: engine.Metrics{
			Total:            1500 * time.Millisecond,
			MaskGeneration:   200 * time.Millisecond,
			InferenceCalls:   3,
			InferenceSamples: 20,
			LayersDone:       1,
			LayersFailed:     1,
		},
	}
}

func TestWriteReadReport(t *testing.T) {
	pred := &classifier.Prediction{
		ClassIndex:    1,
		Class:         "Bacterial Pneumonia",
		Confidence:    0.82,
		Probabilities: map[string]float32{"Normal": 0.1, "Bacterial Pneumonia": 0.82, "Viral Pneumonia": 0.08},
	}
	cfg := config.Default()
	cfg.SelectionParam = 0.9
	cfg.BuildVersion = "test"

	files := map[string]map[string]string{
		"conv_a": {"classification": "/tmp/conv_a_classification.png"},
	}
	regions := map[string][]analyzer.Region{
		"conv_a": {{Rect: image.Rect(10, 20, 40, 50), Peak: 1, Mass: 0.8}},
	}
	report := BuildReport(testResult(), pred, testMetadata(), cfg, "chest.png", files, regions)

	path := "/tmp/xai_report_test.json"
	defer os.Remove(path)
	if err := WriteReport(path, report); err != nil {
		t.Fatalf("WriteReport failed: %v", err)
	}

	got, err := ReadReport(path)
	if err != nil {
		t.Fatalf("ReadReport failed: %v", err)
	}
	if got.Model != "chest_cdn" {
		t.Errorf("Expected model chest_cdn, got %q", got.Model)
	}
	if got.Input != "chest.png" {
		t.Errorf("Expected input chest.png, got %q", got.Input)
	}
	if got.TargetClass != 1 {
		t.Errorf("Expected target class 1, got %d", got.TargetClass)
	}
	if got.Prediction.Class != "Bacterial Pneumonia" {
		t.Errorf("Expected predicted class Bacterial Pneumonia, got %q", got.Prediction.Class)
	}
	if got.Parameters.SelectionParam != 0.9 {
		t.Errorf("Expected selection param 0.9, got %v", got.Parameters.SelectionParam)
	}
	if got.Metrics.TotalMs != 1500 {
		t.Errorf("Expected 1500ms total, got %d", got.Metrics.TotalMs)
	}
	if got.Metrics.InferenceSamples != 20 {
		t.Errorf("Expected 20 inference samples, got %d", got.Metrics.InferenceSamples)
	}

	var convA *LayerReport
	for i := range got.Layers {
		if got.Layers[i].Name == "conv_a" {
			convA = &got.Layers[i]
		}
	}
	if convA == nil {
		t.Fatal("Expected a conv_a layer entry")
	}
	if len(convA.Regions) != 1 {
		t.Fatalf("Expected 1 region, got %d", len(convA.Regions))
	}
	reg := convA.Regions[0]
	if reg.X != 10 || reg.Y != 20 || reg.W != 30 || reg.H != 30 {
		t.Errorf("Region geometry lost in the round trip: %+v", reg)
	}
	if reg.Mass != 0.8 {
		t.Errorf("Expected mass 0.8, got %v", reg.Mass)
	}
}

func TestReportLayerEntries(t *testing.T) {
	pred := &classifier.Prediction{Class: "Normal", Probabilities: map[string]float32{}}
	files := map[string]map[string]string{
		"conv_a": {"classification": "/tmp/conv_a.png"},
	}
	report := BuildReport(testResult(), pred, testMetadata(), config.Default(), "x.png", files, nil)

	if len(report.Layers) != 2 {
		t.Fatalf("Expected 2 layer entries, got %d", len(report.Layers))
	}

	byName := map[string]LayerReport{}
	for _, lr := range report.Layers {
		byName[lr.Name] = lr
	}

	a := byName["conv_a"]
	if a.Selected != 2 {
		t.Errorf("Expected 2 selected channels for conv_a, got %d", a.Selected)
	}
	if a.Error != "" {
		t.Errorf("Expected no error for conv_a, got %q", a.Error)
	}
	if a.Files["classification"] != "/tmp/conv_a.png" {
		t.Errorf("Expected overlay path for conv_a, got %v", a.Files)
	}

	b := byName["conv_b"]
	if b.Error == "" {
		t.Error("Expected conv_b to carry its layer error")
	}
	if len(b.Files) != 0 {
		t.Errorf("Expected no files for failed layer, got %v", b.Files)
	}
}

func TestWriteChannelStats(t *testing.T) {
	path := "/tmp/xai_stats_test.csv"
	defer os.Remove(path)

	res := testResult()
	if err := WriteChannelStats(path, res.Stats, []string{"classification"}); err != nil {
		t.Fatalf("WriteChannelStats failed: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Failed to open stats file: %v", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("Failed to parse CSV: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("Expected header plus 2 rows, got %d rows", len(rows))
	}

	header := rows[0]
	want := []string{"layer", "channel", "activation", "importance", "score_classification", "weight_classification"}
	if len(header) != len(want) {
		t.Fatalf("Expected %d columns, got %d", len(want), len(header))
	}
	for i, col := range want {
		if header[i] != col {
			t.Errorf("Expected column %d to be %q, got %q", i, col, header[i])
		}
	}

	first := rows[1]
	if first[0] != "conv_a" || first[1] != "2" {
		t.Errorf("Expected first row conv_a channel 2, got %v", first)
	}
	if first[3] != "1" {
		t.Errorf("Expected importance 1, got %q", first[3])
	}
	second := rows[2]
	if second[1] != "3" || second[5] != "0" {
		t.Errorf("Expected second row channel 3 with zero weight, got %v", second)
	}
}
