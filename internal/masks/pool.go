package masks

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/11ea/xaipneumonia/internal/system"
	"github.com/11ea/xaipneumonia/internal/tensor"
)

// ChannelMask is an 8-bit opacity mask synthesized from one channel plane,
// upsampled to the model input resolution. Importance is the peak of the
// normalized plane before upsampling; it rides along for reporting but no
// downstream computation reads it.
type ChannelMask struct {
	Channel    int
	Mask       []uint8
	Importance float32
}

// GenerationError wraps a failure while synthesizing channel masks.
type GenerationError struct {
	Channel int
	Err     error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("mask generation: channel %d: %v", e.Channel, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Pool generates channel masks on a fixed set of workers. Channel indices
// are dealt round-robin across workers; each worker owns its chunk, so the
// shared feature map is only ever read.
type Pool struct {
	workers int
}

// NewPool returns a pool with the given worker count, minimum 1.
func NewPool(workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{workers: workers}
}

// Generate builds one mask per selected channel, upsampled to
// targetSide x targetSide. Generation is all-or-nothing: if any worker
// fails or the context is canceled, no masks are returned. Results come
// back sorted by channel index regardless of worker scheduling.
func (p *Pool) Generate(ctx context.Context, fm *tensor.FeatureMap, indices []int, targetSide int) ([]ChannelMask, error) {
	if len(indices) == 0 {
		return []ChannelMask{}, nil
	}
	if targetSide <= 0 {
		return nil, &GenerationError{Channel: -1, Err: fmt.Errorf("target side %d", targetSide)}
	}
	for _, idx := range indices {
		if idx < 0 || idx >= fm.Channels {
			return nil, &GenerationError{Channel: idx, Err: fmt.Errorf("index outside %d channels", fm.Channels)}
		}
	}

	workers := p.workers
	if workers > len(indices) {
		workers = len(indices)
	}

	chunks := make([][]ChannelMask, workers)
	g, ctx := errgroup.WithContext(ctx)

	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for j := w; j < len(indices); j += workers {
				if err := ctx.Err(); err != nil {
					return err
				}
				chunks[w] = append(chunks[w], buildMask(fm, indices[j], targetSide))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]ChannelMask, 0, len(indices))
	for _, chunk := range chunks {
		out = append(out, chunk...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Channel < out[j].Channel })
	return out, nil
}

// buildMask runs the per-channel synthesis chain: ReLU, peak-normalize,
// bilinear upsample, then a global min-max quantization to 8 bits.
func buildMask(fm *tensor.FeatureMap, channel, targetSide int) ChannelMask {
	norm := system.GetPlane(fm.PlaneLen())
	defer system.PutPlane(norm)
	importance := ActivationPlane(norm, fm.Plane(channel))

	up := system.GetPlane(targetSide * targetSide)
	defer system.PutPlane(up)
	ResizePlaneInto(up, norm, fm.Side, targetSide)

	min, max := up[0], up[0]
	for _, v := range up {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	mask := make([]uint8, len(up))
	if rng := max - min; rng > 0 {
		for i, v := range up {
			mask[i] = uint8((v-min)/rng*255 + 0.5)
		}
	}

	return ChannelMask{Channel: channel, Mask: mask, Importance: importance}
}
