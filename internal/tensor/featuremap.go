package tensor

import "fmt"

// ShapeError reports a mismatch between the expected and the actual size of
// a flat tensor buffer. Shape mismatches are never recoverable: they mean
// the model metadata and the model outputs disagree.
type ShapeError struct {
	Context string
	Want    int
	Got     int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s: expected %d values, got %d", e.Context, e.Want, e.Got)
}

// FeatureMap holds the activations of one convolutional layer for a single
// input, laid out channel-major: Data[c*Side*Side : (c+1)*Side*Side] is the
// square plane of channel c.
type FeatureMap struct {
	Data     []float32
	Channels int
	Side     int
}

// NewFeatureMap wraps a flat activation buffer. The buffer is not copied,
// callers must treat it as read-only for the lifetime of the map.
func NewFeatureMap(data []float32, channels, side int) (*FeatureMap, error) {
	if channels <= 0 || side <= 0 {
		return nil, &ShapeError{Context: "feature map dims", Want: 1, Got: channels * side}
	}
	want := channels * side * side
	if len(data) != want {
		return nil, &ShapeError{
			Context: fmt.Sprintf("feature map %dx%dx%d", channels, side, side),
			Want:    want,
			Got:     len(data),
		}
	}
	return &FeatureMap{Data: data, Channels: channels, Side: side}, nil
}

// Plane returns the raw activation plane of one channel as a sub-slice of
// the underlying buffer.
func (m *FeatureMap) Plane(c int) []float32 {
	n := m.Side * m.Side
	return m.Data[c*n : (c+1)*n]
}

// PlaneLen returns the number of values in a single channel plane.
func (m *FeatureMap) PlaneLen() int {
	return m.Side * m.Side
}
