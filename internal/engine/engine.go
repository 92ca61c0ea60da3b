package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/11ea/xaipneumonia/internal/batcher"
	"github.com/11ea/xaipneumonia/internal/classifier"
	"github.com/11ea/xaipneumonia/internal/compose"
	"github.com/11ea/xaipneumonia/internal/config"
	"github.com/11ea/xaipneumonia/internal/masks"
	"github.com/11ea/xaipneumonia/internal/selector"
	"github.com/11ea/xaipneumonia/internal/system"
	"github.com/11ea/xaipneumonia/internal/tensor"
)

// Request describes one heatmap run over an already classified scan.
type Request struct {
	// Prediction is the unmasked forward pass; its raw outputs supply the
	// feature maps and the baseline scores.
	Prediction *classifier.Prediction
	// Image is the letterboxed RGBA buffer the prediction was made on.
	Image []byte
	// TargetClass overrides the explained class; negative means the
	// predicted class.
	TargetClass int
	// FeatureLayer restricts the run to one configured layer; empty runs
	// all of them.
	FeatureLayer string
	// SelectionParam overrides the configured channel selection parameter
	// when positive.
	SelectionParam float64
	OnProgress     ProgressFunc
}

// ChannelStat records everything measured about one selected channel,
// keyed by output layer where scores are involved.
type ChannelStat struct {
	Channel    int
	Activation float64
	Importance float32
	Score      map[string]float32
	Weight     map[string]float32
}

// Result carries the heatmaps of a completed run, grouped by feature layer
// and then by output layer. A failed feature layer contributes nothing to
// Heatmaps and an entry in LayerErrors instead.
type Result struct {
	Heatmaps    map[string]map[string]*compose.Heatmap
	Stats       map[string][]ChannelStat
	LayerErrors map[string]error
	TargetClass int
	Metrics     Metrics
}

// Pipeline owns one run configuration and the collaborators to execute it.
// It is safe to reuse for sequential runs; the provider underneath
// serializes any overlap.
type Pipeline struct {
	meta      *config.ModelMetadata
	cfg       *config.Config
	pool      *masks.Pool
	batch     *batcher.Batcher
	batchSize int
	layers    []string
	outputs   []string
}

// New validates the configuration pair and assembles the pipeline: a mask
// worker pool sized to the machine and a batcher over the given provider.
func New(meta *config.ModelMetadata, cfg *config.Config, provider classifier.Provider) (*Pipeline, error) {
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	workers := cfg.Workers
	if workers == 0 {
		workers = system.WorkerCount()
	}
	batchSize := cfg.BatchSize
	if batchSize == 0 {
		batchSize = meta.BatchSize
	}

	return &Pipeline{
		meta:      meta,
		cfg:       cfg,
		pool:      masks.NewPool(workers),
		batch:     batcher.New(provider),
		batchSize: batchSize,
		layers:    meta.FeatureLayerNames(),
		outputs:   []string{meta.ClassificationLayer},
	}, nil
}

// ComputeHeatmaps runs the full perturbation pipeline for every requested
// feature layer. Layers fail independently: one broken layer is recorded
// and skipped while the rest complete. Cancellation aborts the whole run.
func (pl *Pipeline) ComputeHeatmaps(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	if req.Prediction == nil {
		return nil, fmt.Errorf("heatmap request without a classification pass")
	}
	planeLen := pl.meta.InputSize * pl.meta.InputSize
	if len(req.Image) != 4*planeLen {
		return nil, &tensor.ShapeError{Context: "request image", Want: 4 * planeLen, Got: len(req.Image)}
	}

	layers := pl.layers
	if req.FeatureLayer != "" {
		if _, ok := pl.meta.FeatureLayers[req.FeatureLayer]; !ok {
			return nil, &config.ValidationError{Field: "layer", Reason: fmt.Sprintf("%q is not a configured feature layer", req.FeatureLayer)}
		}
		layers = []string{req.FeatureLayer}
	}

	p := req.SelectionParam
	if p <= 0 {
		p = pl.cfg.SelectionParam
	}

	baseline, ok := req.Prediction.Raw[pl.meta.ClassificationLayer]
	if !ok || len(baseline) == 0 {
		return nil, &classifier.InferenceError{
			Op:  "outputs",
			Err: fmt.Errorf("layer %q missing from prediction", pl.meta.ClassificationLayer),
		}
	}
	target := req.TargetClass
	if target < 0 {
		target = req.Prediction.ClassIndex
	}
	if target >= len(baseline) {
		return nil, &tensor.ShapeError{Context: "target class", Want: len(baseline), Got: target}
	}

	result := &Result{
		Heatmaps:    make(map[string]map[string]*compose.Heatmap, len(layers)),
		Stats:       make(map[string][]ChannelStat, len(layers)),
		LayerErrors: make(map[string]error),
		TargetClass: target,
	}

	var firstErr error
	for li, layer := range layers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		err := pl.runLayer(ctx, req, layer, li, len(layers), p, target, result)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			result.LayerErrors[layer] = err
			result.Metrics.LayersFailed++
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		result.Metrics.LayersDone++
	}

	result.Metrics.Total = time.Since(start)
	if result.Metrics.LayersDone == 0 && firstErr != nil {
		return nil, fmt.Errorf("all %d feature layers failed: %w", len(layers), firstErr)
	}
	return result, nil
}

// runLayer executes the stage machine for one feature layer. Results are
// committed only after the final stage, so a failure mid-layer leaves no
// partial heatmap behind.
func (pl *Pipeline) runLayer(ctx context.Context, req Request, layer string, li, totalLayers int, p float64, target int, result *Result) error {
	stage := StageSelectingChannels
	emit(req, ProgressEvent{
		Kind:        SelectionStarted,
		Layer:       layer,
		LayerIndex:  li,
		TotalLayers: totalLayers,
	})

	dims := pl.meta.FeatureLayers[layer]
	raw, ok := req.Prediction.Raw[layer]
	if !ok {
		return fmt.Errorf("%s: %w", stage, &classifier.InferenceError{
			Op:  "outputs",
			Err: fmt.Errorf("feature layer %q missing from prediction", layer),
		})
	}
	fm, err := tensor.NewFeatureMap(raw, dims.Channels, dims.SideLen)
	if err != nil {
		return fmt.Errorf("%s: %w", stage, err)
	}

	scores := selector.Select(fm, p)
	if len(scores) == 0 {
		// No discriminative channels. The documented answer is an all-zero
		// heatmap, not an error.
		heatmaps := make(map[string]*compose.Heatmap, len(pl.outputs))
		for _, out := range pl.outputs {
			heatmaps[out] = compose.Zero(pl.meta.InputSize)
			emit(req, ProgressEvent{
				Kind:        HeatmapReady,
				Layer:       layer,
				LayerIndex:  li,
				TotalLayers: totalLayers,
				OutputLayer: out,
			})
		}
		result.Heatmaps[layer] = heatmaps
		result.Stats[layer] = []ChannelStat{}
		return nil
	}
	indices := selector.Indices(scores)

	stage = StageGeneratingMasks
	maskStart := time.Now()
	channelMasks, err := pl.pool.Generate(ctx, fm, indices, pl.meta.InputSize)
	result.Metrics.MaskGeneration += time.Since(maskStart)
	if err != nil {
		return fmt.Errorf("%s: %w", stage, err)
	}
	emit(req, ProgressEvent{
		Kind:        MasksGenerated,
		Layer:       layer,
		LayerIndex:  li,
		TotalLayers: totalLayers,
		MaskCount:   len(channelMasks),
	})

	stage = StageBatchedInference
	prevDone := 0
	masked, err := pl.batch.Run(ctx, channelMasks, req.Image, batcher.Params{
		InputSize:    pl.meta.InputSize,
		BatchSize:    pl.batchSize,
		TargetClass:  target,
		OutputLayers: pl.outputs,
		Norm:         pl.meta.Normalization,
		OnBatch: func(done, total int) {
			result.Metrics.InferenceCalls++
			result.Metrics.InferenceSamples += done - prevDone
			prevDone = done
			layerFrac := float64(done) / float64(total)
			emit(req, ProgressEvent{
				Kind:        BatchCompleted,
				Layer:       layer,
				LayerIndex:  li,
				TotalLayers: totalLayers,
				Processed:   done,
				Total:       total,
				Fraction:    (float64(li) + layerFrac) / float64(totalLayers),
			})
		},
	})
	if err != nil {
		return fmt.Errorf("%s: %w", stage, err)
	}

	heatmaps := make(map[string]*compose.Heatmap, len(pl.outputs))
	stats := make([]ChannelStat, len(scores))
	for k, s := range scores {
		stats[k] = ChannelStat{
			Channel:    s.Index,
			Activation: s.Activation,
			Importance: channelMasks[k].Importance,
			Score:      make(map[string]float32, len(pl.outputs)),
			Weight:     make(map[string]float32, len(pl.outputs)),
		}
	}

	for _, out := range pl.outputs {
		stage = StageComputingWeights
		base, ok := req.Prediction.Raw[out]
		if !ok || target >= len(base) {
			return fmt.Errorf("%s: %w", stage, &tensor.ShapeError{
				Context: "baseline scores " + out,
				Want:    target + 1,
				Got:     len(base),
			})
		}
		composeStart := time.Now()
		weights := compose.Weights(masked[out], base[target])

		stage = StageComposingHeatmap
		hm, err := compose.Compose(fm, indices, weights, pl.meta.InputSize)
		result.Metrics.HeatmapComputation += time.Since(composeStart)
		if err != nil {
			return fmt.Errorf("%s: %w", stage, err)
		}
		heatmaps[out] = hm

		for k := range stats {
			stats[k].Score[out] = masked[out][k]
			if len(weights) == len(stats) {
				stats[k].Weight[out] = weights[k]
			}
		}

		emit(req, ProgressEvent{
			Kind:        HeatmapReady,
			Layer:       layer,
			LayerIndex:  li,
			TotalLayers: totalLayers,
			OutputLayer: out,
		})
	}

	result.Heatmaps[layer] = heatmaps
	result.Stats[layer] = stats
	return nil
}

func emit(req Request, ev ProgressEvent) {
	if req.OnProgress != nil {
		req.OnProgress(ev)
	}
}
