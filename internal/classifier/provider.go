package classifier

import (
	"context"
	"fmt"
)

// Provider runs a batch of preprocessed samples through the model and
// returns every mapped output layer as a flat float32 slice keyed by layer
// name. Implementations own exactly one inference resource; concurrent
// callers are serialized in arrival order.
type Provider interface {
	RunInference(ctx context.Context, batch []float32, dims [4]int64) (map[string][]float32, error)
}

// InferenceError wraps a failure inside the inference backend.
type InferenceError struct {
	Op  string
	Err error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference %s: %v", e.Op, e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }
