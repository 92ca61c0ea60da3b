package classifier

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/11ea/xaipneumonia/internal/config"
	"github.com/11ea/xaipneumonia/internal/tensor"
)

var (
	runtimeInitOnce sync.Once
	runtimeInitErr  error
)

// InitRuntime initializes the native ONNX Runtime once per process.
func InitRuntime() error {
	runtimeInitOnce.Do(func() {
		runtimeInitErr = ort.InitializeEnvironment()
	})
	return runtimeInitErr
}

// DestroyRuntime releases the native runtime. Call at program exit, after
// every provider is closed.
func DestroyRuntime() error {
	return ort.DestroyEnvironment()
}

// Options configures the native session.
type Options struct {
	Threads   int // intra-op threads, 0 = runtime default
	UseGPU    bool
	GPUDevice int
}

// ORTProvider serves a single ONNX Runtime session. All mapped outputs of
// the graph (the classification head plus every feature layer) come back
// from one Run call, so a batch never executes the graph twice. Calls are
// funneled through a FIFO queue: one batch on the backend at a time.
type ORTProvider struct {
	session *ort.DynamicAdvancedSession
	meta    *config.ModelMetadata
	outputs []string
	queue   *inferenceQueue
}

// NewORTProvider loads the model at modelPath with the graph names from the
// metadata sidecar.
func NewORTProvider(modelPath string, meta *config.ModelMetadata, opts Options) (*ORTProvider, error) {
	if err := InitRuntime(); err != nil {
		return nil, &InferenceError{Op: "runtime init", Err: err}
	}

	sessOpts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, &InferenceError{Op: "session options", Err: err}
	}
	defer sessOpts.Destroy()

	if opts.Threads > 0 {
		if err := sessOpts.SetIntraOpNumThreads(opts.Threads); err != nil {
			return nil, &InferenceError{Op: "session options", Err: err}
		}
	}
	if opts.UseGPU {
		cudaOpts, err := ort.NewCUDAProviderOptions()
		if err == nil {
			_ = cudaOpts.Update(map[string]string{
				"device_id": fmt.Sprintf("%d", opts.GPUDevice),
			})
			_ = sessOpts.AppendExecutionProviderCUDA(cudaOpts)
			cudaOpts.Destroy()
		}
		// CUDA unavailable falls back to CPU silently.
	}

	outputs := append([]string{meta.ClassificationLayer}, meta.FeatureLayerNames()...)
	session, err := ort.NewDynamicAdvancedSession(
		modelPath,
		[]string{meta.InputName},
		outputs,
		sessOpts,
	)
	if err != nil {
		return nil, &InferenceError{Op: "load model", Err: err}
	}

	p := &ORTProvider{
		session: session,
		meta:    meta,
		outputs: outputs,
	}
	p.queue = newInferenceQueue(p.run)
	return p, nil
}

// RunInference implements Provider.
func (p *ORTProvider) RunInference(ctx context.Context, batch []float32, dims [4]int64) (map[string][]float32, error) {
	want := dims[0] * dims[1] * dims[2] * dims[3]
	if int64(len(batch)) != want {
		return nil, &tensor.ShapeError{Context: "inference input", Want: int(want), Got: len(batch)}
	}
	return p.queue.Submit(ctx, batch, dims)
}

// run executes one committed batch. Only the queue goroutine calls it.
func (p *ORTProvider) run(batch []float32, dims [4]int64) (map[string][]float32, error) {
	inputTensor, err := ort.NewTensor(ort.NewShape(dims[0], dims[1], dims[2], dims[3]), batch)
	if err != nil {
		return nil, &InferenceError{Op: "input tensor", Err: err}
	}
	defer inputTensor.Destroy()

	outTensors := make([]*ort.Tensor[float32], len(p.outputs))
	defer func() {
		for _, t := range outTensors {
			if t != nil {
				t.Destroy()
			}
		}
	}()
	for i, name := range p.outputs {
		outTensors[i], err = ort.NewEmptyTensor[float32](p.outputShape(name, dims[0]))
		if err != nil {
			return nil, &InferenceError{Op: "output tensor " + name, Err: err}
		}
	}

	runOutputs := make([]ort.ArbitraryTensor, len(outTensors))
	for i, t := range outTensors {
		runOutputs[i] = t
	}
	if err := p.session.Run([]ort.ArbitraryTensor{inputTensor}, runOutputs); err != nil {
		return nil, &InferenceError{Op: "run", Err: err}
	}

	out := make(map[string][]float32, len(p.outputs))
	for i, name := range p.outputs {
		data := outTensors[i].GetData()
		cp := make([]float32, len(data))
		copy(cp, data)
		out[name] = cp
	}
	return out, nil
}

func (p *ORTProvider) outputShape(name string, n int64) ort.Shape {
	if name == p.meta.ClassificationLayer {
		return ort.NewShape(n, int64(len(p.meta.Classes)))
	}
	d := p.meta.FeatureLayers[name]
	return ort.NewShape(n, int64(d.Channels), int64(d.SideLen), int64(d.SideLen))
}

// Close drains the queue and releases the session.
func (p *ORTProvider) Close() {
	p.queue.Close()
	if p.session != nil {
		p.session.Destroy()
		p.session = nil
	}
}
