package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Metrics aggregates run timing. MaskGeneration and HeatmapComputation are
// summed across feature layers; inference counters cover only the masked
// passes, not the initial classification.
type Metrics struct {
	Total              time.Duration
	MaskGeneration     time.Duration
	HeatmapComputation time.Duration
	InferenceCalls     int
	InferenceSamples   int
	LayersDone         int
	LayersFailed       int
}

// Report formats the on-screen performance block.
func (m Metrics) Report(build string) string {
	return fmt.Sprintf(
		"--- [PERFORMANCE REPORT] ---\n"+
			"Build: %s\n"+
			"Total Time: %.2fs\n"+
			"Mask Generation: %.2fs\n"+
			"Weights & Composition: %.2fs\n"+
			"Inference Calls: %d\n"+
			"Masked Samples: %d\n"+
			"Layers: %d ok / %d failed\n"+
			"----------------------------\n",
		build, m.Total.Seconds(), m.MaskGeneration.Seconds(), m.HeatmapComputation.Seconds(),
		m.InferenceCalls, m.InferenceSamples, m.LayersDone, m.LayersFailed,
	)
}

// LogBenchmark appends a one-line run record to benchmark.log next to the
// binary. Failures only warn, a missing benchmark must never fail a run.
func (m Metrics) LogBenchmark(input, build string) {
	entry := fmt.Sprintf("[%s] Build: %s | Input: %s | Layers: %d/%d | Total: %.2fs | Masks: %.2fs | Compose: %.2fs | Inference: %d calls / %d samples\n",
		time.Now().Format("2006-01-02 15:04:05"),
		build,
		filepath.Base(input),
		m.LayersDone,
		m.LayersDone+m.LayersFailed,
		m.Total.Seconds(),
		m.MaskGeneration.Seconds(),
		m.HeatmapComputation.Seconds(),
		m.InferenceCalls,
		m.InferenceSamples,
	)

	f, err := os.OpenFile("benchmark.log", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err == nil {
		f.WriteString(entry)
		f.Close()
	} else {
		fmt.Printf("[!] Failed to write benchmark.log: %v\n", err)
	}
}
