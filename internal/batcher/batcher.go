package batcher

import (
	"context"
	"fmt"

	"github.com/11ea/xaipneumonia/internal/classifier"
	"github.com/11ea/xaipneumonia/internal/config"
	"github.com/11ea/xaipneumonia/internal/masks"
	"github.com/11ea/xaipneumonia/internal/tensor"
)

// Params fixes the preprocessing constants and batch geometry for one run.
type Params struct {
	InputSize   int
	BatchSize   int
	TargetClass int
	// OutputLayers names the score outputs to extract, usually just the
	// classification head.
	OutputLayers []string
	Norm         config.Normalization
	// OnBatch, when set, is called after every completed batch with the
	// number of processed masks and the total.
	OnBatch func(processed, total int)
}

// Batcher turns channel masks into normalized NCHW batches and collects the
// target-class score of every masked sample. Batches are submitted strictly
// in order; the provider serializes execution on its side.
type Batcher struct {
	provider classifier.Provider
}

func New(provider classifier.Provider) *Batcher {
	return &Batcher{provider: provider}
}

// Run perturbs the input once per mask and returns, for every requested
// output layer, one score per mask in mask order.
func (b *Batcher) Run(ctx context.Context, ms []masks.ChannelMask, rgba []byte, p Params) (map[string][]float32, error) {
	if p.InputSize <= 0 || p.BatchSize <= 0 {
		return nil, fmt.Errorf("batcher: invalid geometry size=%d batch=%d", p.InputSize, p.BatchSize)
	}
	if p.TargetClass < 0 {
		return nil, fmt.Errorf("batcher: negative target class %d", p.TargetClass)
	}

	planeLen := p.InputSize * p.InputSize
	if len(rgba) != 4*planeLen {
		return nil, &tensor.ShapeError{Context: "input image", Want: 4 * planeLen, Got: len(rgba)}
	}
	for _, m := range ms {
		if len(m.Mask) != planeLen {
			return nil, &tensor.ShapeError{
				Context: fmt.Sprintf("channel %d mask", m.Channel),
				Want:    planeLen,
				Got:     len(m.Mask),
			}
		}
	}

	total := len(ms)
	scores := make(map[string][]float32, len(p.OutputLayers))
	for _, layer := range p.OutputLayers {
		scores[layer] = make([]float32, 0, total)
	}

	sampleLen := 3 * planeLen
	for start := 0; start < total; start += p.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := start + p.BatchSize
		if end > total {
			end = total
		}
		chunk := ms[start:end]
		n := end - start

		buf := make([]float32, n*sampleLen)
		for i, m := range chunk {
			fillSample(buf[i*sampleLen:(i+1)*sampleLen], rgba, m.Mask, planeLen, p.Norm)
		}

		dims := [4]int64{int64(n), 3, int64(p.InputSize), int64(p.InputSize)}
		out, err := b.provider.RunInference(ctx, buf, dims)
		if err != nil {
			return nil, err
		}

		for _, layer := range p.OutputLayers {
			vals, ok := out[layer]
			if !ok {
				return nil, &classifier.InferenceError{
					Op:  "outputs",
					Err: fmt.Errorf("layer %q missing from batch outputs", layer),
				}
			}
			if len(vals) == 0 || len(vals)%n != 0 {
				return nil, &tensor.ShapeError{
					Context: fmt.Sprintf("layer %s batch output", layer),
					Want:    n,
					Got:     len(vals),
				}
			}
			stride := len(vals) / n
			if p.TargetClass >= stride {
				return nil, &tensor.ShapeError{
					Context: "target class index",
					Want:    stride,
					Got:     p.TargetClass,
				}
			}
			for i := 0; i < n; i++ {
				scores[layer] = append(scores[layer], vals[i*stride+p.TargetClass])
			}
		}

		if p.OnBatch != nil {
			p.OnBatch(end, total)
		}
	}

	return scores, nil
}

// Sample builds the unmasked NCHW sample for the plain classification pass,
// normalized exactly like every masked sample.
func Sample(rgba []byte, size int, norm config.Normalization) ([]float32, error) {
	planeLen := size * size
	if len(rgba) != 4*planeLen {
		return nil, &tensor.ShapeError{Context: "input image", Want: 4 * planeLen, Got: len(rgba)}
	}

	dst := make([]float32, 3*planeLen)
	for px := 0; px < planeLen; px++ {
		dst[px] = (float32(rgba[px*4])*norm.Scale - norm.Mean[0]) / norm.Std[0]
		dst[planeLen+px] = (float32(rgba[px*4+1])*norm.Scale - norm.Mean[1]) / norm.Std[1]
		dst[2*planeLen+px] = (float32(rgba[px*4+2])*norm.Scale - norm.Mean[2]) / norm.Std[2]
	}
	return dst, nil
}

// fillSample writes one masked sample in channel-major order. Mask opacity
// attenuates the pixel before the training-time scale and shift.
func fillSample(dst []float32, rgba []byte, mask []uint8, planeLen int, norm config.Normalization) {
	for px := 0; px < planeLen; px++ {
		opacity := float32(mask[px]) / 255
		r := float32(rgba[px*4]) * opacity
		g := float32(rgba[px*4+1]) * opacity
		b := float32(rgba[px*4+2]) * opacity

		dst[px] = (r*norm.Scale - norm.Mean[0]) / norm.Std[0]
		dst[planeLen+px] = (g*norm.Scale - norm.Mean[1]) / norm.Std[1]
		dst[2*planeLen+px] = (b*norm.Scale - norm.Mean[2]) / norm.Std[2]
	}
}
