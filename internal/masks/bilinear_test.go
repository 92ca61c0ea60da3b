package masks

import (
	"math"
	"testing"
)

func TestResizeIdentity(t *testing.T) {
	src := []float32{0.1, 0.9, 0.4, 0.7, 0.2, 0.8, 0.3, 0.6, 0.5}
	got := ResizePlane(src, 3, 3)

	for i := range src {
		if got[i] != src[i] {
			t.Fatalf("identity resize altered value at %d: %v != %v", i, got[i], src[i])
		}
	}

	// Must be a copy, not an alias.
	got[0] = 42
	if src[0] == 42 {
		t.Error("identity resize aliases the source")
	}
}

func TestResizeUpsample(t *testing.T) {
	// 2x2 corners interpolated onto a 3x3 grid.
	src := []float32{0, 1, 2, 3}
	want := []float32{
		0, 0.5, 1,
		1, 1.5, 2,
		2, 2.5, 3,
	}

	got := ResizePlane(src, 2, 3)
	for i := range want {
		if abs(got[i]-want[i]) > 1e-6 {
			t.Errorf("pixel %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestResizeFromSinglePixel(t *testing.T) {
	got := ResizePlane([]float32{0.75}, 1, 4)
	for i, v := range got {
		if v != 0.75 {
			t.Fatalf("pixel %d: expected 0.75, got %v", i, v)
		}
	}
}

func TestResizeToSinglePixel(t *testing.T) {
	got := ResizePlane([]float32{1, 2, 3, 4}, 2, 1)
	if len(got) != 1 || got[0] != 1 {
		t.Errorf("expected the top-left corner, got %v", got)
	}
}

func TestResizePreservesRange(t *testing.T) {
	src := make([]float32, 7*7)
	for i := range src {
		src[i] = float32(i%5) / 4
	}

	got := ResizePlane(src, 7, 224)
	for i, v := range got {
		if v < 0 || v > 1 || math.IsNaN(float64(v)) {
			t.Fatalf("interpolated value out of range at %d: %v", i, v)
		}
	}
}

func abs(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}
