package classifier

import (
	"context"
	"errors"
)

var errProviderClosed = errors.New("provider closed")

type runFunc func(batch []float32, dims [4]int64) (map[string][]float32, error)

type inferenceRequest struct {
	batch []float32
	dims  [4]int64
	reply chan inferenceReply
}

type inferenceReply struct {
	outputs map[string][]float32
	err     error
}

// inferenceQueue serializes access to a single inference resource. A lone
// goroutine serves requests in arrival order; callers block until their
// turn completes. An abandoned caller does not cancel a committed request,
// the batch still runs and its reply is dropped.
type inferenceQueue struct {
	requests chan *inferenceRequest
	quit     chan struct{}
	stopped  chan struct{}
}

func newInferenceQueue(run runFunc) *inferenceQueue {
	q := &inferenceQueue{
		requests: make(chan *inferenceRequest),
		quit:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go q.serve(run)
	return q
}

func (q *inferenceQueue) serve(run runFunc) {
	defer close(q.stopped)
	for {
		select {
		case req := <-q.requests:
			outputs, err := run(req.batch, req.dims)
			req.reply <- inferenceReply{outputs: outputs, err: err}
		case <-q.quit:
			return
		}
	}
}

func (q *inferenceQueue) Submit(ctx context.Context, batch []float32, dims [4]int64) (map[string][]float32, error) {
	req := &inferenceRequest{batch: batch, dims: dims, reply: make(chan inferenceReply, 1)}

	select {
	case q.requests <- req:
	case <-q.quit:
		return nil, &InferenceError{Op: "submit", Err: errProviderClosed}
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case rep := <-req.reply:
		return rep.outputs, rep.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops the serving goroutine and waits for it to drain. Must be
// called exactly once, after all submitters are done.
func (q *inferenceQueue) Close() {
	close(q.quit)
	<-q.stopped
}
